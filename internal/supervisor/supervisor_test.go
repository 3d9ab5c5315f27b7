//go:build unix

package supervisor

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elisoncampos/reactive-views-sub000/internal/client"
	"github.com/elisoncampos/reactive-views-sub000/internal/config"
	"github.com/elisoncampos/reactive-views-sub000/internal/errors"
	"github.com/elisoncampos/reactive-views-sub000/internal/shutdown"
)

const fakeBackendEnv = "RV_FAKE_BACKEND"

// TestMain doubles as the fake backend: when fakeBackendEnv is set the test
// binary behaves like an SSR server instead of running tests.
func TestMain(m *testing.M) {
	switch os.Getenv(fakeBackendEnv) {
	case "":
		os.Exit(m.Run())
	case "serve":
		serveFakeBackend()
	case "stubborn":
		signal.Ignore(syscall.SIGTERM)
		serveFakeBackend()
	case "unhealthy":
		time.Sleep(time.Minute)
	}
	os.Exit(0)
}

func serveFakeBackend() {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/env", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(os.Getenv("NODE_ENV") + "|" + os.Getenv(config.EnvEnvironment)))
	})
	_ = http.ListenAndServe("127.0.0.1:"+os.Getenv("PORT"), mux)
}

func fakeOptions(t *testing.T, mode string) Options {
	t.Helper()
	t.Setenv(fakeBackendEnv, mode)

	exe, err := os.Executable()
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.mjs"), []byte("// ssr entry\n"), 0o644))

	return Options{
		Runtime:        exe,
		Script:         "server.mjs",
		WorkingDir:     dir,
		LogFile:        "log/ssr.log",
		Environment:    "development",
		HealthTimeout:  5 * time.Second,
		HealthInterval: 20 * time.Millisecond,
		StopTimeout:    2 * time.Second,
	}
}

func pidGone(pid int) func() bool {
	return func() bool {
		ok, err := process.PidExists(int32(pid))
		return err == nil && !ok
	}
}

func TestExternalURLNeverSpawns(t *testing.T) {
	s := New(Options{ExternalURL: "http://render.internal:5175", Runtime: "definitely-not-a-runtime"})

	url, err := s.EnsureRunning(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://render.internal:5175", url)
	assert.Equal(t, StateStopped, s.State())

	st := s.Status()
	assert.True(t, st.External)
	assert.Zero(t, st.PID)
}

func TestStopNeverStartedIsNoop(t *testing.T) {
	s := New(Options{})
	assert.NoError(t, s.Stop(context.Background()))
	assert.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, StateStopped, s.State())
	assert.False(t, s.Alive())
}

func TestEnsureRunningStartsOnceAndStops(t *testing.T) {
	opts := fakeOptions(t, "serve")
	opts.Shutdown = shutdown.New(time.Second, nil)
	s := New(opts)
	ctx := context.Background()

	url, err := s.EnsureRunning(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	assert.True(t, s.Alive())
	assert.Equal(t, StateRunning, s.State())
	first := s.Status()
	assert.NotZero(t, first.PID)
	assert.Equal(t, 1, opts.Shutdown.Len())

	again, err := s.EnsureRunning(ctx)
	require.NoError(t, err)
	assert.Equal(t, url, again)
	assert.Equal(t, first.PID, s.Status().PID, "a live backend is reused")

	c := client.New(url, client.Options{})
	defer c.Close()
	assert.NoError(t, c.Health(ctx))

	resp, err := http.Get(url + "/env")
	require.NoError(t, err)
	body := make([]byte, 64)
	n, _ := resp.Body.Read(body)
	resp.Body.Close()
	assert.Equal(t, "development|development", string(body[:n]))

	_, err = os.Stat(filepath.Join(opts.WorkingDir, "log", "ssr.log"))
	assert.NoError(t, err)

	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.Alive())
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, 0, opts.Shutdown.Len())
	assert.Eventually(t, pidGone(first.PID), 3*time.Second, 20*time.Millisecond)

	require.NoError(t, s.Stop(ctx), "stop is idempotent")
}

func TestHealthDeadlineTearsDownChild(t *testing.T) {
	opts := fakeOptions(t, "unhealthy")
	opts.HealthTimeout = 300 * time.Millisecond
	opts.StopTimeout = time.Second
	s := New(opts)

	_, err := s.EnsureRunning(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsSupervision(err))
	assert.True(t, errors.HasErrorCode(err, errors.ErrCodeHealthTimeout))
	assert.Equal(t, StateStopped, s.State())
	assert.False(t, s.Alive())

	pid, ok := errors.GetErrorContext(err)["pid"].(int)
	require.True(t, ok)
	assert.Eventually(t, pidGone(pid), 3*time.Second, 20*time.Millisecond)
}

func TestStartFailures(t *testing.T) {
	t.Run("runtime missing", func(t *testing.T) {
		opts := fakeOptions(t, "serve")
		opts.Runtime = "reactiveviews-no-such-runtime"
		_, err := New(opts).EnsureRunning(context.Background())
		assert.True(t, errors.HasErrorCode(err, errors.ErrCodeRuntimeNotFound))
	})

	t.Run("script missing", func(t *testing.T) {
		opts := fakeOptions(t, "serve")
		opts.Script = "missing.mjs"
		s := New(opts)
		_, err := s.EnsureRunning(context.Background())
		assert.True(t, errors.HasErrorCode(err, errors.ErrCodeScriptNotFound))
		assert.Equal(t, StateStopped, s.State())
	})
}

func TestStubbornChildIsKilled(t *testing.T) {
	opts := fakeOptions(t, "stubborn")
	opts.StopTimeout = 200 * time.Millisecond
	s := New(opts)

	_, err := s.EnsureRunning(context.Background())
	require.NoError(t, err)
	pid := s.Status().PID

	start := time.Now()
	require.NoError(t, s.Stop(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	assert.Eventually(t, pidGone(pid), 3*time.Second, 20*time.Millisecond)
}

func TestPortFromEnvironment(t *testing.T) {
	opts := fakeOptions(t, "serve")
	port, err := freePort()
	require.NoError(t, err)
	t.Setenv(config.EnvSSRPort, strconv.Itoa(port))

	s := New(opts)
	url, err := s.EnsureRunning(context.Background())
	require.NoError(t, err)
	defer s.Stop(context.Background())

	assert.Equal(t, port, s.Status().Port)
	assert.Equal(t, "http://127.0.0.1:"+strconv.Itoa(port), url)
}

func TestRestartsAfterUnexpectedExit(t *testing.T) {
	s := New(fakeOptions(t, "serve"))
	ctx := context.Background()

	_, err := s.EnsureRunning(ctx)
	require.NoError(t, err)
	first := s.Status().PID

	require.NoError(t, killGroup(first))
	assert.Eventually(t, func() bool { return !s.Alive() }, 3*time.Second, 20*time.Millisecond)

	_, err = s.EnsureRunning(ctx)
	require.NoError(t, err)
	defer s.Stop(ctx)

	assert.NotEqual(t, first, s.Status().PID)
	assert.True(t, s.Alive())
}

func TestStateFileAndStopRecorded(t *testing.T) {
	opts := fakeOptions(t, "serve")
	opts.StateFile = "tmp/ssr.json"
	s := New(opts)

	_, err := s.EnsureRunning(context.Background())
	require.NoError(t, err)
	defer s.Stop(context.Background())

	path := filepath.Join(opts.WorkingDir, "tmp", "ssr.json")
	rec, err := ReadState(path)
	require.NoError(t, err)
	assert.Equal(t, s.Status().PID, rec.PID)
	assert.Equal(t, s.Status().Port, rec.Port)
	assert.True(t, rec.Alive())

	stopped, err := StopRecorded(context.Background(), path, time.Second)
	require.NoError(t, err)
	require.NotNil(t, stopped)
	assert.Eventually(t, func() bool { return !s.Alive() }, 3*time.Second, 20*time.Millisecond)

	_, err = ReadState(path)
	assert.ErrorIs(t, err, ErrNoState)

	none, err := StopRecorded(context.Background(), path, time.Second)
	assert.NoError(t, err)
	assert.Nil(t, none)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(9).String())
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{Environment: "production"}
	cfg.Renderer.URL = "http://x:1"
	cfg.SSR.Runtime = "bun"
	cfg.SSR.Port = 5175

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, "http://x:1", opts.ExternalURL)
	assert.Equal(t, "bun", opts.Runtime)
	assert.Equal(t, 5175, opts.Port)
	assert.Equal(t, "production", nodeEnv(opts.Environment))
}
