package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"docforge/internal/store"

	"github.com/google/uuid"
)

// CreateJob inserts a new job row at version 1.
// Answers and sections are stored as JSONB.
func (s *Store) CreateJob(ctx context.Context, tx store.DBTransaction, job *store.Job) error {
	executor := s.getExecutor(tx)

	answers, err := json.Marshal(job.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}
	sections, err := json.Marshal(job.Sections)
	if err != nil {
		return fmt.Errorf("failed to marshal sections: %w", err)
	}

	query := `
		INSERT INTO jobs (id, owner, template, answers, stage, outline, sections, expected_sections, final, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10)
	`
	_, err = executor.ExecContext(ctx, query,
		job.ID,
		job.Owner,
		job.Template,
		answers,
		job.Stage,
		job.Outline,
		sections,
		job.ExpectedSections,
		job.Final,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}

	job.Version = 1
	return nil
}

// GetJob returns a job by its ID including the current version.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	query := `
		SELECT id, owner, template, answers, stage, outline, sections, expected_sections, final, version, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`

	var (
		job      store.Job
		answers  []byte
		sections []byte
		updated  sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID,
		&job.Owner,
		&job.Template,
		&answers,
		&job.Stage,
		&job.Outline,
		&sections,
		&job.ExpectedSections,
		&job.Final,
		&job.Version,
		&job.CreatedAt,
		&updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}

	if err := json.Unmarshal(answers, &job.Answers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal answers for job %s: %w", id, err)
	}
	if err := json.Unmarshal(sections, &job.Sections); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sections for job %s: %w", id, err)
	}
	if updated.Valid {
		job.UpdatedAt = updated.Time
	}

	return &job, nil
}

// UpdateJob performs the optimistic-concurrency write that all pipeline
// coordination depends on. The row is only written when its version still
// equals expectedVersion; a zero-row update means another writer won and the
// caller gets ErrVersionConflict.
func (s *Store) UpdateJob(ctx context.Context, tx store.DBTransaction, job *store.Job, expectedVersion int64) error {
	executor := s.getExecutor(tx)

	answers, err := json.Marshal(job.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}
	sections, err := json.Marshal(job.Sections)
	if err != nil {
		return fmt.Errorf("failed to marshal sections: %w", err)
	}

	query := `
		UPDATE jobs
		SET answers = $1,
		    stage = $2,
		    outline = $3,
		    sections = $4,
		    expected_sections = $5,
		    final = $6,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $7 AND version = $8
	`
	res, err := executor.ExecContext(ctx, query,
		answers,
		job.Stage,
		job.Outline,
		sections,
		job.ExpectedSections,
		job.Final,
		job.ID,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for job %s: %w", job.ID, err)
	}
	if affected == 0 {
		return store.ErrVersionConflict
	}

	job.Version = expectedVersion + 1
	return nil
}
