// Package server exposes the transform pipeline over HTTP for host engines
// that run out of process.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/elisoncampos/reactive-views-sub000/internal/logging"
	"github.com/elisoncampos/reactive-views-sub000/internal/monitoring"
	"github.com/elisoncampos/reactive-views-sub000/internal/orchestrator"
)

// Route paths.
const (
	PathTransform = "/transform"
	PathHealth    = "/healthz"
	PathMetrics   = "/metrics"
)

// DefaultMaxBodyBytes bounds a /transform request body.
const DefaultMaxBodyBytes = 8 << 20

// Transformer is the orchestrator as seen by the server.
type Transformer interface {
	TransformReport(ctx context.Context, markup string, req orchestrator.Request) (string, *orchestrator.Report)
}

// Options configures a Server.
type Options struct {
	Host         string
	Port         int
	Transformer  Transformer
	Health       *monitoring.HealthMonitor
	Metrics      *monitoring.Metrics
	Logger       logging.Logger
	MaxBodyBytes int64
}

// Server is the HTTP adapter.
type Server struct {
	opts       Options
	logger     logging.Logger
	httpServer *http.Server
}

// New creates a Server. It does not listen until Start.
func New(opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	s := &Server{opts: opts, logger: logger.WithComponent("server")}
	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(PathTransform, s.handleTransform).Methods(http.MethodPost)
	r.HandleFunc(PathHealth, s.handleHealth).Methods(http.MethodGet)
	if s.opts.Metrics != nil {
		r.Handle(PathMetrics, s.opts.Metrics.Handler()).Methods(http.MethodGet)
	}

	return chain(r, s.recovery, s.requestLogging)
}

// HTTPServer returns the underlying server, for shutdown hooks.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start listens until the server is shut down. A clean shutdown returns nil.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info(ctx, "HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.logger.Info(ctx, "HTTP server listening", "addr", l.Addr().String())
	if err := s.httpServer.Serve(l); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
