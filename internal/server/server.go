package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/creastat/infra/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/creastat/multicast"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
	maxRequestBytes   = 1 << 20
)

// Server exposes a multicast engine over HTTP and websocket.
type Server struct {
	router   *chi.Mux
	engine   *multicast.Multicast
	registry *prometheus.Registry
	metrics  *httpMetrics
	logger   telemetry.Logger
	addr     string
}

// NewServer creates and configures a new HTTP server.
// HTTP metrics are registered with reg, which is also served on /metrics.
func NewServer(addr string, eng *multicast.Multicast, reg *prometheus.Registry, logger telemetry.Logger) *Server {
	srv := &Server{
		router:   chi.NewRouter(),
		engine:   eng,
		registry: reg,
		metrics:  newHTTPMetrics(reg),
		logger:   logger,
		addr:     addr,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(srv.metrics.middleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler(s.registry))

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/branches", s.handleBranches)
		r.Post("/multicast", s.handleMulticast)
		r.Get("/stream", s.handleStream)
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
// The engine is started before listening and stopped after the listener
// has drained.
func (s *Server) Run() error {
	logger := s.logger.WithModule("server")

	if err := s.engine.Start(context.Background()); err != nil {
		return fmt.Errorf("start multicast: %w", err)
	}

	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", telemetry.String("addr", s.addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case sig := <-quit:
		logger.Info("Shutting down", telemetry.String("signal", sig.String()))
	case err := <-errCh:
		runErr = fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if runErr == nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			runErr = fmt.Errorf("shutdown: %w", err)
		}
	}

	if err := s.engine.Stop(ctx); err != nil {
		logger.Error("Failed to stop multicast", telemetry.Err(err))
	}

	logger.Info("Server stopped")
	return runErr
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger := s.logger.WithModule("http")
		logger.Info("Request",
			telemetry.String("method", r.Method),
			telemetry.String("path", r.URL.Path),
			telemetry.Int("status", ww.Status()),
			telemetry.Int("duration_ms", int(time.Since(start).Milliseconds())),
			telemetry.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
