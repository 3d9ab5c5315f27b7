package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elisoncampos/reactive-views-sub000/internal/errors"
	"github.com/elisoncampos/reactive-views-sub000/internal/orchestrator"
)

func TestMain(m *testing.M) {
	v := m.Run()
	snaps.Clean(m)
	os.Exit(v)
}

var islandID = regexp.MustCompile(`rv-[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// greetingBackend answers batch renders with "<p>Hello NAME</p>".
func greetingBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/batch-render" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Components []struct {
				Props map[string]any `json:"props"`
			} `json:"components"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		results := make([]map[string]any, len(req.Components))
		for i, c := range req.Components {
			results[i] = map[string]any{"html": "<p>Hello " + c.Props["name"].(string) + "</p>"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTransformSnapshot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Greeting.tsx"), []byte("export default () => null\n"), 0o644))

	page := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(page,
		[]byte(`<main><Greeting name="Ada"></Greeting><Missing></Missing></main>`), 0o644))

	srv := greetingBackend(t)
	viper.Set("components.search_paths", []string{dir})

	out, report, err := execute(t, "transform", page,
		"--renderer-url", srv.URL,
		"--data", `{"site":"docs","secret":"x"}`,
		"--select", "Greeting=site",
		"--report")
	require.NoError(t, err)

	snaps.MatchSnapshot(t, islandID.ReplaceAllString(out, "rv-ID"))
	snaps.MatchSnapshot(t, strings.TrimSpace(islandID.ReplaceAllString(report, "rv-ID")))
}

func TestTransformWritesOutputFile(t *testing.T) {
	dir := t.TempDir()
	page := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(page, []byte(`<p>no islands</p>`), 0o644))
	target := filepath.Join(dir, "out.html")

	out, _, err := execute(t, "transform", page, "-o", target)
	transformOutput = ""
	require.NoError(t, err)
	assert.Empty(t, out)

	written, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, `<p>no islands</p>`, string(written))

	err = writeOutput(filepath.Join(dir, "missing", "out.html"), "x")
	assert.ErrorContains(t, err, "creating output")
}

func TestPrintReportFlagsUnavailableBackend(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, &orchestrator.Report{
		Strategy: orchestrator.StrategyBatch,
		Err:      errors.NewSupervisionError(errors.ErrCodeHealthTimeout, "backend never became healthy", nil),
	})
	assert.Contains(t, buf.String(), "backend: unavailable")
	assert.Contains(t, buf.String(), "error: [ERR_HEALTH_TIMEOUT] backend never became healthy")

	buf.Reset()
	printReport(&buf, &orchestrator.Report{Strategy: orchestrator.StrategyBatch})
	assert.NotContains(t, buf.String(), "backend:")
}

func TestStartHint(t *testing.T) {
	err := startHint(errors.NewSupervisionError(errors.ErrCodeRuntimeNotFound, `runtime "node" not found`, nil))
	assert.ErrorContains(t, err, "ssr.runtime")
	assert.True(t, errors.HasErrorCode(err, errors.ErrCodeRuntimeNotFound))

	plain := errors.NewSupervisionError(errors.ErrCodeHealthTimeout, "slow", nil)
	assert.Equal(t, error(plain), startHint(plain))
}

func TestVersionShort(t *testing.T) {
	out, _, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))
	versionShort = false
}

func TestVersionRejectsUnknownFormat(t *testing.T) {
	_, _, err := execute(t, "version", "--format", "xml")
	assert.Error(t, err)
	versionFormat = "text"
}

func TestParseData(t *testing.T) {
	data, err := parseData(`{"user":{"name":"Ada"}}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"user": map[string]any{"name": "Ada"}}, data)

	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"n":1}`), 0o644))
	data, err = parseData("@" + path)
	require.NoError(t, err)
	assert.Equal(t, float64(1), data["n"])

	data, err = parseData("  ")
	require.NoError(t, err)
	assert.Nil(t, data)

	_, err = parseData(`[1,2]`)
	assert.Error(t, err)
	_, err = parseData("@" + filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestParseSelect(t *testing.T) {
	sel, err := parseSelect([]string{"Card=user, title", "Empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"Card": {"user", "title"}, "Empty": {}}, sel)

	sel, err = parseSelect(nil)
	require.NoError(t, err)
	assert.Nil(t, sel)

	_, err = parseSelect([]string{"nokeys"})
	assert.Error(t, err)
	_, err = parseSelect([]string{"=a"})
	assert.Error(t, err)
}
