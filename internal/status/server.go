// Package status serves the worker's operational endpoints: health JSON,
// Prometheus metrics and quiet/stop controls.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/BranchIntl/ojsworker/core"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Engine is what the status server needs from the worker engine
type Engine interface {
	Health() core.HealthStatus
	Quiet()
	Stop()
}

// Server wraps the chi router
type Server struct {
	router   *chi.Mux
	engine   Engine
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	addr     string
}

// NewServer builds a status server. A nil gatherer serves the default
// Prometheus registry.
func NewServer(addr string, engine Engine, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:   chi.NewRouter(),
		engine:   engine,
		gatherer: gatherer,
		logger:   logger,
		addr:     addr,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.loggingMiddleware)
	s.routes()

	return s
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	s.router.Post("/quiet", s.handleQuiet)
	s.router.Post("/stop", s.handleStop)
}

// Router returns the chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves until ctx is cancelled, then shuts the listener down
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("status listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status shutdown: %w", err)
	}
	s.logger.Info("status server stopped")
	return nil
}

type healthResponse struct {
	core.HealthStatus
	TransportError string `json:"transport_error,omitempty"`
	StatsError     string `json:"stats_error,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	health := s.engine.Health()
	resp := healthResponse{HealthStatus: health}
	if health.TransportHealth != nil {
		resp.TransportError = health.TransportHealth.Error()
	}
	if health.StatsHealth != nil {
		resp.StatsError = health.StatsHealth.Error()
	}

	code := http.StatusOK
	if !health.Healthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}

func (s *Server) handleQuiet(w http.ResponseWriter, r *http.Request) {
	s.engine.Quiet()
	s.writeJSON(w, http.StatusAccepted, map[string]core.State{"state": s.engine.Health().State})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.engine.Stop()
	s.writeJSON(w, http.StatusAccepted, map[string]core.State{"state": s.engine.Health().State})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode status response", "error", err)
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("status request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
