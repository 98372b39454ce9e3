// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"docforge/internal/store"
	"docforge/internal/template"
	"docforge/pkg/api"

	"github.com/google/uuid"
)

// StoreFactory combines the interfaces needed for the controller to function.
type StoreFactory interface {
	BeginTx(ctx context.Context) (store.Tx, error)
	Ping(ctx context.Context) error
	store.JobStore
	store.Queue
}

// Clarifier streams a follow-up question for a job with missing answers.
type Clarifier interface {
	Clarify(ctx context.Context, jobID uuid.UUID, fn func(delta string)) (string, error)
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store       StoreFactory
	templates   *template.Registry
	clarifier   Clarifier
	databaseURL string
	logger      *slog.Logger
}

// New creates a new Handlers instance with the given dependencies.
// databaseURL is used to open dedicated listening connections for SSE.
func New(s StoreFactory, reg *template.Registry, clarifier Clarifier, databaseURL string, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		store:       s,
		templates:   reg,
		clarifier:   clarifier,
		databaseURL: databaseURL,
		logger:      logger,
	}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

func jobResponse(job *store.Job) api.JobResponse {
	resp := api.JobResponse{
		ID:               job.ID.String(),
		Template:         job.Template,
		Stage:            string(job.Stage),
		Answers:          job.Answers,
		Outline:          job.Outline,
		ExpectedSections: job.ExpectedSections,
		Final:            job.Final,
		CreatedAt:        job.CreatedAt,
	}
	if !job.UpdatedAt.IsZero() {
		t := job.UpdatedAt
		resp.UpdatedAt = &t
	}
	if len(job.Sections) > 0 {
		resp.Sections = make(map[string]api.SectionResponse, len(job.Sections))
		for id, sec := range job.Sections {
			resp.Sections[id] = api.SectionResponse{Text: sec.Text, Summary: sec.Summary}
		}
	}
	return resp
}
