package app

import (
	"github.com/gorilla/mux"
	"github.com/klokku/outlook-calendar/internal/config"
	"github.com/klokku/outlook-calendar/internal/metrics"
	"github.com/klokku/outlook-calendar/pkg/oauth"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies, cfg config.Application) {

	// Account linking
	r.HandleFunc("/api/setup", deps.OAuthHandler.OAuthLogin).Methods("GET")
	r.HandleFunc(oauth.DefaultCallbackPath, deps.OAuthHandler.OAuthCallback).Methods("GET")

	// Calendar entities
	r.HandleFunc("/api/calendars", deps.EntityHandler.ListEntities).Methods("GET")
	r.HandleFunc("/api/calendars/scan", deps.EntityHandler.Scan).Methods("POST")
	r.HandleFunc("/api/calendars/{entityId}", deps.EntityHandler.GetEntity).Methods("GET")
	r.HandleFunc("/api/calendars/{entityId}/events", deps.EntityHandler.GetEvents).Methods("GET")

	if cfg.Metrics.Enabled {
		r.Handle("/metrics", metrics.Handler()).Methods("GET")
	}
}
