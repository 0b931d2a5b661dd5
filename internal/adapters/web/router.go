package web

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() http.Handler {
	r := mux.NewRouter()

	auth := TokenAuthMiddleware(s.tokenHash)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/events/{id}", s.handleEvent).Methods(http.MethodGet)
	api.HandleFunc("/events/{id}/handled", s.handleMarkHandled).Methods(http.MethodPost)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/retention/purge", s.handlePurge).Methods(http.MethodPost)
	api.HandleFunc("/report", s.handleReport).Methods(http.MethodGet)
	api.HandleFunc("/whitelist/{id}", s.handleWhitelistAdd).Methods(http.MethodPost)
	api.HandleFunc("/whitelist/{id}", s.handleWhitelistRemove).Methods(http.MethodDelete)
	api.HandleFunc("/simulate/{type}", s.handleSimulate).Methods(http.MethodPost)

	// WebSocket endpoint for the live threat feed. Same token guard as
	// the API; clients that cannot set headers pass ?token= instead.
	r.Handle("/ws", auth(http.HandlerFunc(s.WSManager.HandleWebSocket)))

	// Prometheus metrics endpoint.
	r.Handle("/metrics", promhttp.Handler())

	return r
}
