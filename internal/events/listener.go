package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
)

// Listener subscribes to a single job's notification channel and delivers
// decoded events on a Go channel. Used by the controller's SSE endpoint.
type Listener struct {
	pq     *pq.Listener
	logger *slog.Logger
}

// NewListener opens a dedicated listening connection for one job.
func NewListener(databaseURL string, jobID uuid.UUID, logger *slog.Logger) (*Listener, error) {
	l := pq.NewListener(databaseURL, minReconnectInterval, maxReconnectInterval, nil)
	if err := l.Listen(ChannelName(jobID)); err != nil {
		l.Close()
		return nil, err
	}
	return &Listener{pq: l, logger: logger}, nil
}

// Events pumps notifications into a channel until ctx is cancelled.
// Malformed payloads are logged and skipped.
func (l *Listener) Events(ctx context.Context) <-chan Event {
	out := make(chan Event, 64)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-l.pq.Notify:
				if !ok {
					return
				}
				if n == nil {
					// Reconnect marker from pq; events in between are lost,
					// which is acceptable for best-effort telemetry.
					continue
				}
				var ev Event
				if err := json.Unmarshal([]byte(n.Extra), &ev); err != nil {
					l.logger.Warn("dropping malformed event payload", "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// Close tears down the listening connection.
func (l *Listener) Close() error {
	return l.pq.Close()
}
