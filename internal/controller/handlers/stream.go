package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"docforge/internal/events"
	"docforge/internal/store"

	"github.com/google/uuid"
)

// StreamEvents handles GET /jobs/{id}/events.
// It re-exposes the job's progress channel as Server-Sent Events. The feed
// is best-effort telemetry: a client that connects late or falls behind
// misses events and should read GET /jobs/{id} for authoritative state.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Job not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}

	owner := ownerFrom(r)
	if owner == "" || job.Owner != owner {
		h.httpError(w, "Job not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.httpError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Dedicated listening connection per subscriber.
	listener, err := events.NewListener(h.databaseURL, jobID, h.logger)
	if err != nil {
		h.logger.Error("failed to open event listener", "job_id", jobID, "error", err)
		h.httpError(w, "Failed to subscribe", http.StatusInternalServerError)
		return
	}
	defer listener.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	feed := listener.Events(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-feed:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				h.logger.Warn("failed to marshal event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: update\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
