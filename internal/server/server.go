// Package server hosts the HTTP surface of the dispatch service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/scalpel-dispatch/api/schemas"
	"github.com/xkilldash9x/scalpel-dispatch/internal/config"
	"github.com/xkilldash9x/scalpel-dispatch/internal/dispatch"
	"github.com/xkilldash9x/scalpel-dispatch/internal/metrics"
	"github.com/xkilldash9x/scalpel-dispatch/internal/supervisor"
)

// sessionCloseTimeout bounds the teardown of a session after its request ended.
const sessionCloseTimeout = 5 * time.Second

// Server wires the request lifecycle: validate, bootstrap a session, execute,
// and stream the result.
type Server struct {
	cfg          *config.Config
	logger       *zap.Logger
	bootstrapper schemas.SessionBootstrapper
	dispatcher   *dispatch.Dispatcher
	supervisor   *supervisor.Supervisor
	metrics      *metrics.Collector
	limiter      *rateLimiter
	sessions     *semaphore.Weighted
	now          func() time.Time

	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics instruments requests, sessions and executions with c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithClock overrides the clock used for envelope timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates a server. Nothing listens until Start or Serve is called.
func New(cfg *config.Config, bootstrapper schemas.SessionBootstrapper, sup *supervisor.Supervisor, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:          cfg,
		logger:       logger.Named("server"),
		bootstrapper: bootstrapper,
		supervisor:   sup,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	var dispatchOpts []dispatch.Option
	if s.metrics != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithObserver(s.metrics))
	}
	s.dispatcher = dispatch.New(logger, dispatchOpts...)

	if rl := cfg.Server.RateLimit; rl.RPS > 0 {
		s.limiter = newRateLimiter(rl.RPS, rl.Burst, s.logger)
	}
	if n := cfg.Server.MaxConcurrentSessions; n > 0 {
		s.sessions = semaphore.NewWeighted(n)
	}
	return s
}

// Handler builds the routed handler with the full middleware chain.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	if s.metrics != nil {
		r.Use(metricsMiddleware(s.metrics))
	}
	r.Use(s.supervisor.Middleware)
	r.Use(corsMiddleware(s.cfg.Server.CORSAllowedOrigins))

	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)
	if s.metrics != nil && s.cfg.Metrics.Enabled {
		r.Method(http.MethodGet, s.cfg.Metrics.Path, s.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		r.Post("/init", s.supervisor.Handle(s.handleInit))
		r.Post("/test", s.supervisor.Handle(s.handleTest))
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		s.respondWithStatus(w, http.StatusNotFound, schemas.StatusResponse{Status: schemas.StatusError, Message: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		s.respondWithStatus(w, http.StatusMethodNotAllowed, schemas.StatusResponse{Status: schemas.StatusError, Message: "method not allowed"})
	})
	return r
}

// Start listens on the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully. In-flight
// streams get server.shutdown_timeout to finish before their contexts are cancelled.
// When the shutdown was triggered by a fail-fast fault, Serve returns that fault.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// Request contexts outlive ctx so that shutdown drains them instead of aborting.
	baseCtx, cancelRequests := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRequests()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.Server.ReadTimeout,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		ErrorLog:          zap.NewStdLog(s.logger),
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer func() {
		stopBackground()
		s.supervisor.Wait()
	}()
	if s.limiter != nil {
		s.supervisor.Go(bgCtx, "rate-limit-sweeper", s.limiter.sweep)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.httpServer.Serve(ln) }()
	s.logger.Info("Dispatch server listening.", zap.String("address", ln.Addr().String()))

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return s.supervisor.Err()
		}
		s.logger.Error("HTTP server Serve error", zap.Error(err))
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Received shutdown signal, shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("Graceful shutdown timed out; aborting in-flight requests.", zap.Error(err))
		cancelRequests()
		_ = s.httpServer.Close()
	}
	<-serveErr

	// A fail-fast shutdown is a failure, not a clean stop.
	if err := s.supervisor.Err(); err != nil {
		s.logger.Error("Dispatch server stopped after a fault.", zap.Error(err))
		return err
	}
	s.logger.Info("Dispatch server stopped.")
	return nil
}

// acquireSession reserves a slot for a live session when the server is bounded.
func (s *Server) acquireSession(ctx context.Context) (release func(), err error) {
	if s.sessions == nil {
		return func() {}, nil
	}
	if err := s.sessions.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { s.sessions.Release(1) }, nil
}
