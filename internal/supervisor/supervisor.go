// Package supervisor starts, health-checks and stops the rendering backend
// when no external endpoint is configured.
//
// A Supervisor moves through Stopped → Starting → Running → Stopped; a start
// whose health check never succeeds goes Starting → Failed → Stopped after
// the child is torn down. Start and stop are serialised by one mutex. Alive
// never takes it, so callers can check liveness while a transition is in
// flight.
package supervisor

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/elisoncampos/reactive-views-sub000/internal/client"
	"github.com/elisoncampos/reactive-views-sub000/internal/config"
	"github.com/elisoncampos/reactive-views-sub000/internal/errors"
	"github.com/elisoncampos/reactive-views-sub000/internal/logging"
	"github.com/elisoncampos/reactive-views-sub000/internal/monitoring"
	"github.com/elisoncampos/reactive-views-sub000/internal/shutdown"
)

// State is the lifecycle state of the supervised backend.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options configures a Supervisor.
type Options struct {
	// ExternalURL, when set, is always used and nothing is spawned
	ExternalURL string
	// Port is the fixed port; REACTIVE_VIEWS_SSR_PORT or a free port when 0
	Port        int
	Runtime     string
	Script      string
	Args        []string
	WorkingDir  string
	LogFile     string
	StateFile   string
	Environment string

	HealthTimeout  time.Duration
	HealthInterval time.Duration
	StopTimeout    time.Duration

	Logger   logging.Logger
	Metrics  *monitoring.Metrics
	Shutdown *shutdown.Manager
}

// OptionsFromConfig maps the loaded configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ExternalURL:    cfg.Renderer.URL,
		Port:           cfg.SSR.Port,
		Runtime:        cfg.SSR.Runtime,
		Script:         cfg.SSR.Script,
		WorkingDir:     cfg.SSR.WorkingDir,
		LogFile:        cfg.SSR.LogFile,
		StateFile:      cfg.SSR.StateFile,
		Environment:    cfg.Environment,
		HealthTimeout:  cfg.SSR.HealthTimeout,
		HealthInterval: cfg.SSR.HealthInterval,
		StopTimeout:    cfg.SSR.StopTimeout,
	}
}

// Process describes a running backend child.
type Process struct {
	PID       int
	Port      int
	URL       string
	StartedAt time.Time

	exited <-chan struct{}
}

// Status is a point-in-time view of the supervisor.
type Status struct {
	State     State
	External  bool
	URL       string
	PID       int
	Port      int
	StartedAt time.Time
	Uptime    time.Duration
}

// Supervisor owns at most one backend child process.
type Supervisor struct {
	opts   Options
	logger logging.Logger

	mu     sync.Mutex
	hookID int

	state   atomic.Int32
	current atomic.Pointer[Process]
}

// New creates a Supervisor. Nothing is started until EnsureRunning.
func New(opts Options) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = 10 * time.Second
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = 100 * time.Millisecond
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}
	return &Supervisor{
		opts:   opts,
		logger: opts.Logger.WithComponent("supervisor"),
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
}

// Alive reports whether a tracked child is running. It does not take the
// start/stop lock.
func (s *Supervisor) Alive() bool {
	if s.State() != StateRunning {
		return false
	}
	p := s.current.Load()
	return p != nil && p.alive()
}

func (p *Process) alive() bool {
	select {
	case <-p.exited:
		return false
	default:
	}
	ok, err := process.PidExists(int32(p.PID))
	return err == nil && ok
}

// EnsureRunning returns the backend URL, starting the child if needed. An
// explicit external URL always wins and never spawns anything.
func (s *Supervisor) EnsureRunning(ctx context.Context) (string, error) {
	if s.opts.ExternalURL != "" {
		return s.opts.ExternalURL, nil
	}
	if s.Alive() {
		return s.current.Load().URL, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Alive() {
		return s.current.Load().URL, nil
	}
	if s.State() == StateRunning {
		s.logger.Warn(ctx, nil, "Backend process exited unexpectedly, restarting",
			"pid", s.current.Load().PID)
		s.forget()
	}

	p, err := s.start(ctx)
	s.opts.Metrics.ObserveBackendStart(err)
	if err != nil {
		return "", err
	}
	return p.URL, nil
}

func (s *Supervisor) start(ctx context.Context) (*Process, error) {
	s.setState(StateStarting)

	fail := func(err error) (*Process, error) {
		s.setState(StateFailed)
		s.logger.Error(ctx, err, "Backend failed to start")
		s.setState(StateStopped)
		return nil, err
	}

	workDir := s.workingDir()

	runtime, err := exec.LookPath(s.opts.Runtime)
	if err != nil {
		return fail(errors.NewSupervisionError(errors.ErrCodeRuntimeNotFound,
			fmt.Sprintf("runtime %q not found", s.opts.Runtime), err))
	}

	script := resolvePath(workDir, s.opts.Script)
	if info, err := os.Stat(script); err != nil || info.IsDir() {
		return fail(errors.NewSupervisionError(errors.ErrCodeScriptNotFound,
			"entry script not found: "+script, err))
	}

	port, err := s.port()
	if err != nil {
		return fail(errors.NewSupervisionError(errors.ErrCodeSpawnFailed, "no port available", err))
	}

	logPath := resolvePath(workDir, s.opts.LogFile)
	if logPath == "" {
		logPath = os.DevNull
	}
	logFile, err := openLog(logPath)
	if err != nil {
		return fail(errors.NewSupervisionError(errors.ErrCodeSpawnFailed, "opening backend log", err))
	}

	cmd := exec.Command(runtime, append([]string{script}, s.opts.Args...)...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		"PORT="+strconv.Itoa(port),
		"NODE_ENV="+nodeEnv(s.opts.Environment),
		config.EnvEnvironment+"="+s.opts.Environment,
	)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	detach(cmd)

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return fail(errors.NewSupervisionError(errors.ErrCodeSpawnFailed, "spawning backend", err))
	}

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		_ = logFile.Close()
		close(exited)
	}()

	p := &Process{
		PID:    cmd.Process.Pid,
		Port:   port,
		URL:    fmt.Sprintf("http://127.0.0.1:%d", port),
		exited: exited,
	}
	s.logger.Info(ctx, "Backend spawned, waiting for health", "pid", p.PID, "port", port, "runtime", runtime)

	if err := s.waitHealthy(ctx, p); err != nil {
		_ = killGroup(p.PID)
		waitExit(exited, s.opts.StopTimeout)
		return fail(err)
	}

	p.StartedAt = time.Now()
	s.current.Store(p)
	s.setState(StateRunning)
	s.opts.Metrics.SetBackendUp(true)

	if s.opts.Shutdown != nil {
		s.hookID = s.opts.Shutdown.Register("ssr-backend", s.Stop)
	}
	if s.opts.StateFile != "" {
		if err := writeState(resolvePath(workDir, s.opts.StateFile), p); err != nil {
			s.logger.Warn(ctx, err, "Could not write backend state file")
		}
	}

	s.logger.Info(ctx, "Backend running", "pid", p.PID, "url", p.URL)
	return p, nil
}

// waitHealthy polls GET /health until it succeeds, the child exits or the
// health deadline passes.
func (s *Supervisor) waitHealthy(ctx context.Context, p *Process) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.HealthTimeout)
	defer cancel()

	checker := client.New(p.URL, client.Options{
		ConnectTimeout: s.opts.HealthInterval,
		ReadTimeout:    s.opts.HealthInterval * 5,
	})
	defer checker.Close()

	ticker := time.NewTicker(s.opts.HealthInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		if lastErr = checker.Health(ctx); lastErr == nil {
			return nil
		}

		select {
		case <-p.exited:
			return errors.NewSupervisionError(errors.ErrCodeSpawnFailed,
				"backend exited before becoming healthy", lastErr).WithContext("pid", p.PID)
		case <-ctx.Done():
			return errors.NewSupervisionError(errors.ErrCodeHealthTimeout,
				fmt.Sprintf("backend not healthy after %s", s.opts.HealthTimeout), lastErr).
				WithContext("pid", p.PID).
				WithContext("port", p.Port)
		case <-ticker.C:
		}
	}
}

// Stop terminates the child: SIGTERM to its group, then SIGKILL once the stop
// timeout passes. Stopping a supervisor that never started is a no-op.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.current.Load()
	if p == nil || s.State() != StateRunning {
		return nil
	}

	s.logger.Info(ctx, "Stopping backend", "pid", p.PID)
	if err := terminateGroup(p.PID); err != nil && p.alive() {
		s.logger.Warn(ctx, err, "SIGTERM failed", "pid", p.PID)
	}

	timeout := s.opts.StopTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	if !waitExit(p.exited, timeout) {
		s.logger.Warn(ctx, nil, "Backend ignored SIGTERM, killing", "pid", p.PID)
		_ = killGroup(p.PID)
		waitExit(p.exited, 2*time.Second)
	}

	s.forget()
	s.logger.Info(ctx, "Backend stopped", "pid", p.PID)
	return nil
}

// forget clears the tracked process. Callers hold mu.
func (s *Supervisor) forget() {
	if s.opts.Shutdown != nil && s.hookID != 0 {
		s.opts.Shutdown.Unregister(s.hookID)
		s.hookID = 0
	}
	if s.opts.StateFile != "" {
		_ = os.Remove(resolvePath(s.workingDir(), s.opts.StateFile))
	}
	s.current.Store(nil)
	s.setState(StateStopped)
	s.opts.Metrics.SetBackendUp(false)
}

// Status returns a snapshot for display.
func (s *Supervisor) Status() Status {
	if s.opts.ExternalURL != "" {
		return Status{State: StateRunning, External: true, URL: s.opts.ExternalURL}
	}

	st := Status{State: s.State()}
	if p := s.current.Load(); p != nil {
		st.URL = p.URL
		st.PID = p.PID
		st.Port = p.Port
		st.StartedAt = p.StartedAt
		if !p.StartedAt.IsZero() {
			st.Uptime = time.Since(p.StartedAt)
		}
	}
	return st
}

// StatePath is the resolved state file location, empty when none is kept.
func (s *Supervisor) StatePath() string {
	if s.opts.StateFile == "" {
		return ""
	}
	return resolvePath(s.workingDir(), s.opts.StateFile)
}

func (s *Supervisor) workingDir() string {
	if dir := os.Getenv(config.EnvWorkingDir); dir != "" {
		return dir
	}
	if s.opts.WorkingDir == "" {
		return "."
	}
	return s.opts.WorkingDir
}

func (s *Supervisor) port() (int, error) {
	if raw := strings.TrimSpace(os.Getenv(config.EnvSSRPort)); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return 0, fmt.Errorf("invalid %s %q", config.EnvSSRPort, raw)
		}
		return port, nil
	}
	if s.opts.Port > 0 {
		return s.opts.Port, nil
	}
	return freePort()
}

// freePort asks the kernel for an unused loopback port.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func resolvePath(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func nodeEnv(environment string) string {
	if strings.EqualFold(environment, "development") {
		return "development"
	}
	return "production"
}

// waitExit waits up to timeout for exited to close.
func waitExit(exited <-chan struct{}, timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-exited:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-exited:
		return true
	case <-timer.C:
		return false
	}
}
