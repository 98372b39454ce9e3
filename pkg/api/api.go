// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import "time"

// CreateJobRequest is the request body for creating a new generation job.
type CreateJobRequest struct {
	Template string            `json:"template"`
	Answers  map[string]string `json:"answers,omitempty"`
}

// CreateJobResponse is the response body after submitting a job.
// Missing lists the template placeholders still awaiting answers; the job
// only enters the pipeline once it is empty.
type CreateJobResponse struct {
	JobID   string   `json:"job_id"`
	Missing []string `json:"missing,omitempty"`
}

// PatchAnswersRequest merges additional answers into a job.
type PatchAnswersRequest struct {
	Answers map[string]string `json:"answers"`
}

// PatchAnswersResponse reports the placeholders still missing after a merge.
type PatchAnswersResponse struct {
	Missing []string `json:"missing,omitempty"`
}

// SectionResponse is one drafted section in API responses.
type SectionResponse struct {
	Text    string `json:"text"`
	Summary string `json:"summary"`
}

// JobResponse represents a job in API responses.
type JobResponse struct {
	ID               string                     `json:"id"`
	Template         string                     `json:"template"`
	Stage            string                     `json:"stage"`
	Answers          map[string]string          `json:"answers,omitempty"`
	Outline          string                     `json:"outline,omitempty"`
	Sections         map[string]SectionResponse `json:"sections,omitempty"`
	ExpectedSections int                        `json:"expected_sections"`
	Final            string                     `json:"final,omitempty"`
	CreatedAt        time.Time                  `json:"created_at"`
	UpdatedAt        *time.Time                 `json:"updated_at,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
