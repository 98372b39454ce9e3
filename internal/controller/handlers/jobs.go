package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"docforge/internal/pipeline"
	"docforge/internal/store"
	"docforge/pkg/api"

	"github.com/google/uuid"
)

// ownerFrom extracts the requester identity. Authentication itself is
// handled upstream (reverse proxy / gateway); the controller only records
// the identity it is handed.
func ownerFrom(r *http.Request) string {
	return r.Header.Get("X-Owner")
}

// CreateJob handles POST /jobs.
// The job starts in AWAITING_INPUT when template placeholders are still
// unanswered, otherwise it is queued and the outline task is submitted.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Template == "" {
		h.httpError(w, "Template is required", http.StatusBadRequest)
		return
	}

	owner := ownerFrom(r)
	if owner == "" {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	missing, err := h.templates.Missing(req.Template, req.Answers)
	if err != nil {
		h.httpError(w, "Unknown template", http.StatusBadRequest)
		return
	}

	if req.Answers == nil {
		req.Answers = map[string]string{}
	}

	job := &store.Job{
		ID:       uuid.New(),
		Owner:    owner,
		Template: req.Template,
		Answers:  req.Answers,
		Stage:    store.StageQueued,
		Sections: map[string]store.Section{},

		CreatedAt: time.Now().UTC(),
	}
	if len(missing) > 0 {
		job.Stage = store.StageAwaitingInput
	}

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	if err := h.store.CreateJob(ctx, tx, job); err != nil {
		h.httpError(w, "Failed to create job", http.StatusInternalServerError)
		return
	}

	// Complete jobs enter the pipeline in the same transaction.
	if len(missing) == 0 {
		if _, err := h.store.Enqueue(ctx, tx, job.ID, pipeline.TaskOutline, nil, time.Time{}); err != nil {
			h.httpError(w, "Failed to enqueue outline", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		h.httpError(w, "Failed to commit transaction", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusAccepted, api.CreateJobResponse{
		JobID:   job.ID.String(),
		Missing: missing,
	})
}

// PatchAnswers handles PATCH /jobs/{id}/answers.
// Answers merge monotonically; edits are rejected once the pipeline owns the
// job (any stage past AWAITING_INPUT/QUEUED).
func (h *Handlers) PatchAnswers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	var req api.PatchAnswersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	owner := ownerFrom(r)

	// Merge under optimistic concurrency: the write only lands if the job
	// record did not move underneath us.
	for {
		job, err := h.store.GetJob(ctx, jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				h.httpError(w, "Job not found", http.StatusNotFound)
				return
			}
			h.httpError(w, "Internal database error", http.StatusInternalServerError)
			return
		}
		if owner == "" || job.Owner != owner {
			h.httpError(w, "Job not found", http.StatusNotFound)
			return
		}

		if job.Stage != store.StageAwaitingInput && job.Stage != store.StageQueued {
			h.httpError(w, "Job already started", http.StatusConflict)
			return
		}

		wasAwaiting := job.Stage == store.StageAwaitingInput

		for k, v := range req.Answers {
			job.Answers[k] = v
		}

		missing, err := h.templates.Missing(job.Template, job.Answers)
		if err != nil {
			h.httpError(w, "Internal template error", http.StatusInternalServerError)
			return
		}

		if len(missing) > 0 {
			job.Stage = store.StageAwaitingInput
		} else {
			job.Stage = store.StageQueued
		}

		tx, err := h.store.BeginTx(ctx)
		if err != nil {
			h.httpError(w, "Internal database error", http.StatusInternalServerError)
			return
		}

		if err := h.store.UpdateJob(ctx, tx, job, job.Version); err != nil {
			tx.Rollback()
			if errors.Is(err, store.ErrVersionConflict) {
				continue
			}
			h.httpError(w, "Failed to update job", http.StatusInternalServerError)
			return
		}

		// Only the patch that completes the answer set submits the
		// outline; re-patching an already queued job does not.
		if wasAwaiting && len(missing) == 0 {
			if _, err := h.store.Enqueue(ctx, tx, job.ID, pipeline.TaskOutline, nil, time.Time{}); err != nil {
				tx.Rollback()
				h.httpError(w, "Failed to enqueue outline", http.StatusInternalServerError)
				return
			}
		}

		if err := tx.Commit(); err != nil {
			h.httpError(w, "Failed to commit transaction", http.StatusInternalServerError)
			return
		}

		h.respondJson(w, http.StatusAccepted, api.PatchAnswersResponse{Missing: missing})
		return
	}
}

// GetJob handles GET /jobs/{id}.
// The job's stage field is the single source of truth for progress.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
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

	h.respondJson(w, http.StatusOK, jobResponse(job))
}
