package cmd

import (
	"context"

	"github.com/elisoncampos/reactive-views-sub000/internal/cache"
	"github.com/elisoncampos/reactive-views-sub000/internal/client"
	"github.com/elisoncampos/reactive-views-sub000/internal/config"
	"github.com/elisoncampos/reactive-views-sub000/internal/logging"
	"github.com/elisoncampos/reactive-views-sub000/internal/monitoring"
	"github.com/elisoncampos/reactive-views-sub000/internal/orchestrator"
	"github.com/elisoncampos/reactive-views-sub000/internal/resolver"
	"github.com/elisoncampos/reactive-views-sub000/internal/shutdown"
	"github.com/elisoncampos/reactive-views-sub000/internal/supervisor"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg          *config.Config
	logger       logging.Logger
	fileLogger   *logging.FileLogger
	metrics      *monitoring.Metrics
	store        *cache.MemoryStore
	resolver     *resolver.Resolver
	shutdown     *shutdown.Manager
	supervisor   *supervisor.Supervisor
	pool         *client.Pool
	provider     *client.Provider
	orchestrator *orchestrator.Orchestrator
}

// newApp loads configuration and wires every component. Nothing is started.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(cfg.Log.Level)
	if cfg.Log.Format != "" {
		logCfg.Format = cfg.Log.Format
	}
	var logger logging.Logger = logging.NewLogger(logCfg)
	if cfg.Log.Dir != "" {
		fl, err := logging.NewFileLogger(logCfg, cfg.Log.Dir)
		if err != nil {
			return nil, err
		}
		a.fileLogger = fl
		logger = logging.NewMultiLogger(logger, fl)
	}
	a.logger = logger

	a.metrics = monitoring.NewMetrics()
	a.store = cache.NewMemoryStore(cache.WithMaxEntries(cfg.Cache.MaxEntries))
	a.resolver = resolver.New(resolver.Options{
		Extensions: cfg.Components.Extensions,
		Store:      a.store,
		Logger:     logger,
	})
	a.shutdown = shutdown.New(cfg.SSR.StopTimeout+cfg.Renderer.ReadTimeout, logger)

	supOpts := supervisor.OptionsFromConfig(cfg)
	supOpts.Logger = logger
	supOpts.Metrics = a.metrics
	supOpts.Shutdown = a.shutdown
	a.supervisor = supervisor.New(supOpts)

	a.pool = client.NewPool(client.Options{
		ConnectTimeout: cfg.Renderer.ConnectTimeout,
		ReadTimeout:    cfg.Renderer.ReadTimeout,
		BatchTimeout:   cfg.Renderer.BatchTimeout,
		Logger:         logger,
		Metrics:        a.metrics,
	})
	a.provider = client.NewProvider(a.pool, a.supervisor)

	var renderCache cache.Store
	if cfg.Cache.Enabled {
		renderCache = a.store
	}
	a.orchestrator = orchestrator.New(orchestrator.Options{
		Backend:        a.provider,
		Resolver:       a.resolver,
		SearchPaths:    cfg.Components.SearchPaths,
		BatchEnabled:   cfg.Renderer.BatchEnabled,
		TreeEnabled:    cfg.Renderer.TreeEnabled,
		MaxDepth:       cfg.Tree.MaxDepth,
		DetailedErrors: cfg.Development.DetailedErrors,
		Cache:          renderCache,
		CacheTTL:       cfg.Cache.TTL,
		Logger:         logger,
		Metrics:        a.metrics,
	})

	return a, nil
}

// Close runs the shutdown hooks, which stops a backend this process started,
// and releases connections.
func (a *app) Close() {
	a.shutdown.Shutdown()
	a.release()
}

// release frees connections and log files but leaves a started backend
// running.
func (a *app) release() {
	a.pool.Close()
	if a.fileLogger != nil {
		_ = a.fileLogger.Close()
	}
}

// ping checks the backend currently in use without starting one.
func (a *app) ping(ctx context.Context) error {
	st := a.supervisor.Status()
	if st.URL == "" {
		return nil
	}
	return a.pool.Get(st.URL).Health(ctx)
}
