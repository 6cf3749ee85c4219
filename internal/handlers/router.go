package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/ukydev/fleet-portal/internal/metrics"
	"github.com/ukydev/fleet-portal/internal/middleware"
)

// RouterConfig holds the settings the router needs besides the handler
type RouterConfig struct {
	Metrics                *metrics.Registry
	RateLimitRequests      int
	RateLimitWindowSeconds int
	TrustProxyHeaders      bool
}

// NewRouter wires the portal API routes and middleware
func NewRouter(h *PortalHandler, cfg RouterConfig) *mux.Router {
	limiter := middleware.NewRateLimitMiddleware(cfg.TrustProxyHeaders)

	r := mux.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(cfg.Metrics))
	r.Use(limiter.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindowSeconds))

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/vehicles", h.ListVehicles).Methods(http.MethodGet)
	api.HandleFunc("/map", h.Map).Methods(http.MethodGet)
	api.HandleFunc("/snapshot", h.Snapshot).Methods(http.MethodGet)

	api.HandleFunc("/policies", h.ListPolicies).Methods(http.MethodGet)
	api.HandleFunc("/policies", h.SavePolicy).Methods(http.MethodPost)
	api.HandleFunc("/policies/{id}", h.GetPolicy).Methods(http.MethodGet)
	api.HandleFunc("/policies/{id}/evaluate", h.EvaluatePolicy).Methods(http.MethodPost)

	api.HandleFunc("/exceptions", h.ListExceptions).Methods(http.MethodGet)
	api.HandleFunc("/exceptions/refresh", h.RefreshExceptions).Methods(http.MethodPost)
	api.HandleFunc("/exceptions/{id}/triage", h.TriageException).Methods(http.MethodPost)

	return r
}
