// Package web exposes the node's query, control and live-feed surface
// over HTTP.
package web

import (
	"context"
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lcalzada-xor/edgewatch/internal/adapters/reporting"
	"github.com/lcalzada-xor/edgewatch/internal/adapters/source"
	"github.com/lcalzada-xor/edgewatch/internal/core/ports"
	"github.com/lcalzada-xor/edgewatch/internal/core/services/node"
)

// Server handles HTTP and WebSocket connections.
type Server struct {
	Addr      string
	WSManager *WSManager

	store         ports.EventStore
	node          *node.SecurityNode
	synthetic     *source.SyntheticSource // nil outside mock mode
	exporter      *reporting.PDFExporter
	tokenHash     string
	retentionDays int

	srv *http.Server
}

// NewServer creates a new web server. synthetic may be nil; the
// simulation endpoint then reports a conflict.
func NewServer(addr string, n *node.SecurityNode, store ports.EventStore, synthetic *source.SyntheticSource, tokenHash string, retentionDays int) *Server {
	return &Server{
		Addr:          addr,
		WSManager:     NewWSManager(),
		store:         store,
		node:          n,
		synthetic:     synthetic,
		exporter:      reporting.NewPDFExporter(),
		tokenHash:     tokenHash,
		retentionDays: retentionDays,
	}
}

func (s *Server) buildSummary(day time.Time) (*reporting.DailySummary, error) {
	return reporting.BuildDailySummary(s.store, day)
}

// Run starts the server and blocks until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	handler := s.setupRoutes()

	// Instrument with OpenTelemetry
	instrumentedHandler := otelhttp.NewHandler(handler, "edgewatch-server")

	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           instrumentedHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful Shutdown implementation
	go func() {
		<-ctx.Done()
		log.Println("Web Server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Web Server shutdown error: %v", err)
		}
	}()

	log.Printf("Web server listening on %s", s.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
