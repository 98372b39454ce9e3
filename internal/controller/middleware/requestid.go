// Package middleware contains HTTP middleware for the controller API.
package middleware

import (
	"net/http"

	"docforge/internal/logger"

	"github.com/google/uuid"
)

// RequestID attaches a correlation id to every request context so handler
// logs can be tied back to one call.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), reqID)))
	})
}
