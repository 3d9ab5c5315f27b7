package cmd

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/elisoncampos/reactive-views-sub000/internal/monitoring"
	"github.com/elisoncampos/reactive-views-sub000/internal/server"
	"github.com/elisoncampos/reactive-views-sub000/internal/shutdown"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the transform over HTTP",
	Long: `Start an HTTP server so a host template engine in another process can
send rendered markup for island rendering.

Endpoints:
  POST /transform   {"markup": "...", "data": {...}, "select": {"Name": ["key"]}}
  GET  /healthz     health of the server and the rendering backend
  GET  /metrics     Prometheus metrics

The rendering backend starts on the first request that needs it and stops
when the server shuts down.

Examples:
  reactiveviews serve
  reactiveviews serve --port 9000 --watch`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "127.0.0.1", "address to listen on")
	serveCmd.Flags().IntP("port", "p", 8700, "port to listen on")
	serveCmd.Flags().Bool("watch", false, "watch search paths and pick up new components without a restart")
	serveCmd.Flags().Bool("preload", false, "start the rendering backend before accepting requests")

	bindFlags(serveCmd.Flags(), map[string]string{
		"host":  "server.host",
		"port":  "server.port",
		"watch": "components.watch",
	})
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.release()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	hm := monitoring.NewHealthMonitor(a.logger, a.cfg.Renderer.ReadTimeout)
	hm.RegisterCheck(monitoring.PingChecker("backend", true, a.ping))
	hm.RegisterCheck(monitoring.GoroutineHealthChecker())

	srv := server.New(server.Options{
		Host:        a.cfg.Server.Host,
		Port:        a.cfg.Server.Port,
		Transformer: a.orchestrator,
		Health:      hm,
		Metrics:     a.metrics,
		Logger:      a.logger,
	})
	a.shutdown.Register("http-server", shutdown.StopHTTPServer(srv))

	if preload, _ := cmd.Flags().GetBool("preload"); preload {
		if _, err := a.supervisor.EnsureRunning(ctx); err != nil {
			a.Close()
			return err
		}
	}

	if a.cfg.Components.Watch {
		if _, err := a.resolver.Watch(ctx, a.cfg.Components.SearchPaths, 100*time.Millisecond, a.orchestrator.HandleChanges); err != nil {
			a.logger.Warn(ctx, err, "Component watching disabled")
		}
	}

	a.logger.Info(ctx, "Starting server", "environment", a.cfg.Environment, "config", viper.ConfigFileUsed())

	waitCtx, stopWait := context.WithCancel(ctx)
	defer stopWait()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); err != nil {
			a.logger.Fatal(ctx, err, "Server failed")
			errCh <- err
		}
		stopWait()
	}()

	if err := a.shutdown.WaitWithContext(waitCtx); err != nil && !stderrors.Is(err, context.Canceled) {
		return err
	}

	select {
	case err := <-errCh:
		return err
	default:
		return a.shutdown.Err()
	}
}
