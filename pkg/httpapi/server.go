// Copyright 2026 © The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpapi exposes a Monitor over HTTP: Prometheus metrics, health,
// statistics, breaker administration and an optional websocket event stream.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jllopis/vigil/pkg/health"
	"github.com/jllopis/vigil/pkg/monitor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server routes HTTP requests to a Monitor.
type Server struct {
	router   *chi.Mux
	monitor  *monitor.Monitor
	logger   *slog.Logger
	registry *prometheus.Registry
	health   *health.Provider
	events   *Broadcaster
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and handler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPrometheusRegistry serves /metrics from registry instead of a private one.
func WithPrometheusRegistry(registry *prometheus.Registry) Option {
	return func(s *Server) {
		if registry != nil {
			s.registry = registry
		}
	}
}

// WithHealthProvider replaces the default breaker and SLO health checks.
func WithHealthProvider(provider *health.Provider) Option {
	return func(s *Server) {
		if provider != nil {
			s.health = provider
		}
	}
}

// WithEvents mounts the websocket event stream at /events.
func WithEvents(b *Broadcaster) Option {
	return func(s *Server) {
		s.events = b
	}
}

// New builds the router. The monitor collector is registered on the
// Prometheus registry, so a shared registry must not be reused across
// servers.
func New(m *monitor.Monitor, opts ...Option) (*Server, error) {
	s := &Server{
		router:  chi.NewRouter(),
		monitor: m,
		logger:  m.Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if err := s.registry.Register(NewCollector(m)); err != nil {
		return nil, err
	}
	if s.health == nil {
		s.health = health.NewProvider()
		s.health.Register("circuit_breakers", health.BreakerChecker(m.Registry()))
		s.health.Register("error_rate_slo", health.SLOChecker(m))
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Post("/reset", s.handleReset)
	r.Get("/slo", s.handleSLO)
	r.Get("/errors/{id}", s.handleError)

	r.Route("/breakers", func(r chi.Router) {
		r.Get("/", s.handleBreakers)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.handleBreaker)
			r.Post("/reset", s.handleBreakerReset)
			r.Post("/open", s.handleBreakerOpen)
		})
	})

	if s.events != nil {
		r.Get("/events", s.events.ServeHTTP)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Health exposes the provider so callers can register extra checkers.
func (s *Server) Health() *health.Provider {
	return s.health
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.DebugContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type healthResponse struct {
	Status     health.Status   `json:"status"`
	Components []health.Result `json:"components"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	results, overall := s.health.CheckAll(r.Context())
	code := http.StatusOK
	if overall == health.Unhealthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, healthResponse{Status: overall, Components: results})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.monitor.Statistics())
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.monitor.ResetStatistics()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSLO(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.monitor.EvaluateSLOs())
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := s.monitor.Record(id)
	if !ok {
		http.Error(w, "error record not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleBreakers(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.monitor.Registry().Statuses())
}

func (s *Server) handleBreaker(w http.ResponseWriter, r *http.Request) {
	cb, ok := s.monitor.Registry().Lookup(chi.URLParam(r, "name"))
	if !ok {
		http.Error(w, "circuit breaker not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, cb.Status())
}

func (s *Server) handleBreakerReset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cb, ok := s.monitor.Registry().Lookup(name)
	if !ok {
		http.Error(w, "circuit breaker not found", http.StatusNotFound)
		return
	}
	cb.Reset()
	s.logger.InfoContext(r.Context(), "circuit breaker reset via api", "breaker", name)
	s.writeJSON(w, http.StatusOK, cb.Status())
}

func (s *Server) handleBreakerOpen(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cb, ok := s.monitor.Registry().Lookup(name)
	if !ok {
		http.Error(w, "circuit breaker not found", http.StatusNotFound)
		return
	}
	cb.Open()
	s.logger.InfoContext(r.Context(), "circuit breaker forced open via api", "breaker", name)
	s.writeJSON(w, http.StatusOK, cb.Status())
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}
