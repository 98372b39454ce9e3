package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PGPublisher publishes events over Postgres NOTIFY. Notifications issued on
// one connection are delivered to listeners in issue order, which gives the
// per-activity ordering guarantee for token streams. NOTIFY payloads are
// fire-and-forget: nothing is persisted and slow listeners lose events.
type PGPublisher struct {
	db *sql.DB
}

// NewPGPublisher creates a publisher on top of an existing connection pool.
func NewPGPublisher(db *sql.DB) *PGPublisher {
	return &PGPublisher{db: db}
}

// Publish sends the event to the job's notification channel.
func (p *PGPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", ChannelName(event.JobID), string(payload))
	if err != nil {
		return fmt.Errorf("failed to notify %s: %w", ChannelName(event.JobID), err)
	}
	return nil
}
