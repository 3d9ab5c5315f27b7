package version

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShort(t *testing.T) {
	tests := []struct {
		info Info
		want string
	}{
		{Info{Version: "v1.2.0", GitCommit: "abcdef1234"}, "v1.2.0 (abcdef1)"},
		{Info{Version: "dev", GitCommit: "abcdef1234"}, "dev-abcdef1"},
		{Info{Version: "v1.2.0", GitCommit: "unknown"}, "v1.2.0"},
		{Info{Version: "dev", GitCommit: "abc"}, "dev"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.info.Short())
	}
}

func TestDetailed(t *testing.T) {
	info := Info{
		Version:   "v1.0.0",
		GitCommit: "unknown",
		BuildTime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		GoVersion: "go1.22.0",
		Platform:  "linux/amd64",
	}
	assert.Equal(t,
		"Version: v1.0.0\nBuilt: 2026-01-02T03:04:05Z\nGo: go1.22.0\nPlatform: linux/amd64",
		info.Detailed())
}

func TestIsRelease(t *testing.T) {
	assert.True(t, Info{Version: "v1.0.0"}.IsRelease())
	assert.False(t, Info{Version: "dev"}.IsRelease())
	assert.False(t, Info{Version: "dev-abc1234"}.IsRelease())
}

func TestParseBuildTime(t *testing.T) {
	assert.True(t, parseBuildTime("unknown").IsZero())
	assert.True(t, parseBuildTime("yesterday").IsZero())
	assert.Equal(t, 2026, parseBuildTime("2026-03-01T10:00:00Z").Year())
	assert.Equal(t, 2026, parseBuildTime("2026-03-01 10:00:00").Year())
}

func TestLdflagsOverride(t *testing.T) {
	oldVersion, oldCommit := Version, GitCommit
	defer func() { Version, GitCommit = oldVersion, oldCommit }()

	Version, GitCommit = "v9.9.9", "0123456789"
	info := Get()
	assert.Equal(t, "v9.9.9", info.Version)
	assert.Equal(t, "0123456789", info.GitCommit)
	assert.True(t, strings.HasPrefix(UserAgent(), "reactiveviews/v9.9.9"))
}
