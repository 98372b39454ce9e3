package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"docforge/internal/store"

	"github.com/google/uuid"
)

// Clarify handles GET /jobs/{id}/clarify.
// For a job still missing answers it streams one LLM-generated follow-up
// question as Server-Sent Events; a complete job returns 204.
func (h *Handlers) Clarify(w http.ResponseWriter, r *http.Request) {
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

	missing, err := h.templates.Missing(job.Template, job.Answers)
	if err != nil {
		h.httpError(w, "Internal template error", http.StatusInternalServerError)
		return
	}
	if len(missing) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.httpError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	_, err = h.clarifier.Clarify(ctx, jobID, func(delta string) {
		fmt.Fprintf(w, "data: %s\n\n", delta)
		flusher.Flush()
	})
	if err != nil {
		// Headers are gone; all we can do is log and cut the stream.
		h.logger.Error("clarify stream failed", "job_id", jobID, "error", err)
	}
}
