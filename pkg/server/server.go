package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"mercator-hq/keygate/pkg/config"
	"mercator-hq/keygate/pkg/server/middleware"
	"mercator-hq/keygate/pkg/telemetry/health"
	"mercator-hq/keygate/pkg/telemetry/metrics"
	"mercator-hq/keygate/pkg/telemetry/tracing"
)

// AuthorizePath is the route that returns a verdict without forwarding.
const AuthorizePath = "/v1/authorize"

// Deps are the components the server routes requests through. Metrics,
// Tracer, Health and TLS may be nil. A nil TLS serves plain HTTP.
type Deps struct {
	Evaluator Evaluator
	Recorder  EntryRecorder
	Metrics   *metrics.Collector
	Tracer    *tracing.Tracer
	Health    *health.Checker
	Version   health.VersionInfo
	TLS       *tls.Config
}

// Server is the keygate HTTP server.
type Server struct {
	config     *config.Config
	deps       Deps
	gate       *Gate
	httpServer *http.Server
	logger     *slog.Logger

	mu        sync.Mutex
	isRunning bool
	addr      net.Addr
}

// New creates a server. cfg must already be validated.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Evaluator == nil {
		return nil, errors.New("server: evaluator is required")
	}

	gateCfg := GateConfig{
		Evaluator:    deps.Evaluator,
		Recorder:     deps.Recorder,
		Enforce:      cfg.Auth.Enforce,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}
	if deps.Metrics != nil {
		gateCfg.Metrics = deps.Metrics
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		gate:   NewGate(gateCfg),
		logger: slog.Default().With("component", "server"),
	}

	handler, err := s.Handler()
	if err != nil {
		return nil, err
	}

	s.httpServer = &http.Server{
		Addr:           cfg.Server.ListenAddress,
		Handler:        handler,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		TLSConfig:      deps.TLS,
	}

	return s, nil
}

// Handler builds the router with its middleware chain.
func (s *Server) Handler() (http.Handler, error) {
	r := chi.NewRouter()

	var httpMetrics middleware.HTTPMetrics
	if s.deps.Metrics != nil {
		httpMetrics = s.deps.Metrics
	}
	r.Use(middleware.RequestID, middleware.Logging(httpMetrics), middleware.Recovery)

	if s.deps.Tracer != nil && s.deps.Tracer.Enabled() {
		r.Use(s.deps.Tracer.Middleware)
	}

	if corsCfg := s.config.Server.CORS; config.Enabled(corsCfg.Enabled) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsCfg.AllowedOrigins,
			AllowedMethods:   corsCfg.AllowedMethods,
			AllowedHeaders:   corsCfg.AllowedHeaders,
			ExposedHeaders:   corsCfg.ExposedHeaders,
			AllowCredentials: corsCfg.AllowCredentials,
			MaxAge:           corsCfg.MaxAge,
		}))
	}

	if s.deps.Health != nil {
		s.deps.Health.Mount(r, &s.config.Telemetry.Health, s.deps.Version)
	}

	if s.deps.Metrics != nil && s.deps.Metrics.Enabled() {
		r.Method(http.MethodGet, s.config.Telemetry.Metrics.Path, s.deps.Metrics.Handler())
	}

	r.Post(AuthorizePath, s.gate.HandleAuthorize)

	if upstream := s.config.Server.UpstreamURL; upstream != "" {
		proxy, err := NewUpstreamProxy(upstream)
		if err != nil {
			return nil, err
		}
		r.Handle("/*", s.gate.Middleware(proxy))
	}

	return r, nil
}

// Start listens and serves until ctx is canceled, then shuts down
// gracefully within server.shutdown_timeout.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.setStopped()
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.logger.Info("starting keygate server",
		"address", ln.Addr().String(),
		"upstream", s.config.Server.UpstreamURL,
		"enforce", s.config.Auth.Enforce,
		"environment", s.config.Auth.Environment,
		"tls_enabled", s.deps.TLS != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.deps.TLS != nil {
			// Certificates come from TLSConfig.GetCertificate.
			err = s.httpServer.ServeTLS(ln, "", "")
		} else {
			err = s.httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errCh:
		s.setStopped()
		if !ok {
			return nil
		}
		return err
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	running := s.isRunning
	s.mu.Unlock()
	if !running {
		return nil
	}

	s.logger.Info("initiating graceful shutdown", "timeout", s.config.Server.ShutdownTimeout.String())

	shutdownCtx := ctx
	if timeout := s.config.Server.ShutdownTimeout; timeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := s.httpServer.Shutdown(shutdownCtx)
	s.setStopped()
	if err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.logger.Info("keygate server stopped")
	return nil
}

// Addr returns the bound listen address once the server has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) setStopped() {
	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()
}
