// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"net/http"
	"time"

	"docforge/internal/controller/handlers"
	"docforge/internal/controller/middleware"
)

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server. rateLimit is requests per second per
// client (0 = unlimited); metricsHandler serves GET /metrics when non-nil.
func New(addr string, h *handlers.Handlers, rateLimit float64, metricsHandler http.Handler) *Server {
	limited := middleware.RateLimitMiddleware(rateLimit, 0)

	mux := http.NewServeMux()

	mux.Handle("POST /jobs", limited(http.HandlerFunc(h.CreateJob)))
	mux.Handle("PATCH /jobs/{id}/answers", limited(http.HandlerFunc(h.PatchAnswers)))
	mux.Handle("GET /jobs/{id}", limited(http.HandlerFunc(h.GetJob)))

	// Streaming endpoints hold a connection open for minutes; the rate
	// limiter would punish reconnects after transient drops.
	mux.HandleFunc("GET /jobs/{id}/events", h.StreamEvents)
	mux.HandleFunc("GET /jobs/{id}/clarify", h.Clarify)

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     middleware.RequestID(mux),
			ReadTimeout: 10 * time.Second,
			// No WriteTimeout: SSE responses stay open indefinitely.
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
