// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/foreman/internal/metrics"
)

// Router wires the Handler into a chi route tree.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a Router. A nil config uses the default middleware settings.
func NewRouter(handler *Handler, cfg *ChiMiddlewareConfig) *Router {
	return &Router{
		handler:       handler,
		chiMiddleware: NewChiMiddleware(cfg),
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	metricsHandler := promhttp.Handler()
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		metrics.UpdateUptime(router.handler.startTime)
		metricsHandler.ServeHTTP(w, req)
	})

	// ========================
	// Health Endpoints
	// ========================
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/live", router.handler.HealthLive)
	})

	// ========================
	// Supervisor Endpoints
	// ========================
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(PrometheusMetrics)

		r.Get("/status", router.handler.Status)
		r.Get("/queue", router.handler.Queue)
		r.Get("/bottlenecks", router.handler.Bottlenecks)
		r.Get("/agents/{id}/metrics", router.handler.AgentMetrics)
		r.Get("/alerts", router.handler.Alerts)
		r.Get("/alerts/stream", router.handler.AlertStream)
		r.Post("/cleanup", router.handler.Cleanup)
		r.Post("/shutdown", router.handler.Shutdown)

		// ========================
		// Task Endpoints
		// ========================
		// Workers report outcomes here; writes are rate limited per client.
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/{id}", router.handler.GetTask)

			r.Group(func(r chi.Router) {
				r.Use(router.chiMiddleware.RateLimit())
				r.Post("/", router.handler.EnqueueTask)
				r.Post("/{id}/start", router.handler.StartTask)
				r.Post("/{id}/complete", router.handler.CompleteTask)
				r.Post("/{id}/fail", router.handler.FailTask)
			})
		})
	})

	return r
}
