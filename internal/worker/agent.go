// Package worker contains the agent that pulls pipeline tasks from the queue
// and runs them. It owns concurrency, timeouts, heartbeats, and the retry
// bookkeeping; stage semantics live in the pipeline package.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"docforge/internal/pipeline"
	"docforge/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Handler processes one claimed task. Implementations must be idempotent:
// the queue is at-least-once and a task may be delivered again.
type Handler interface {
	Handle(ctx context.Context, task store.TaskItem) error
}

// JobFailer marks a job terminally failed once a task exhausts its retries.
type JobFailer interface {
	MarkFailed(ctx context.Context, jobID uuid.UUID, reason string) error
}

// AgentConfig holds configuration for the worker agent.
type AgentConfig struct {
	ID                  string
	Concurrency         int
	PollInterval        time.Duration
	MaxBackoff          time.Duration // Maximum backoff when queue is empty (default: 30s)
	HeartbeatInterval   time.Duration // Interval between visibility extensions (default: 1m)
	VisibilityExtension time.Duration // How long to extend visibility on heartbeat (default: 5m)
	TaskTimeout         time.Duration // Upper bound on one task execution (default: 15m)
}

// Agent is the main worker agent that runs the pull-loop for task execution.
type Agent struct {
	queue   store.Queue
	handler Handler
	failer  JobFailer
	config  AgentConfig
	logger  *slog.Logger
	done    chan struct{}
}

// New creates a new worker agent.
func New(q store.Queue, h Handler, f JobFailer, config AgentConfig, logger *slog.Logger) *Agent {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 1 * time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = time.Minute
	}
	if config.VisibilityExtension <= 0 {
		config.VisibilityExtension = 5 * time.Minute
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Agent{
		queue:   q,
		handler: h,
		failer:  f,
		config:  config,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Run starts the main pull-loop. It blocks until the context is cancelled.
// On shutdown it stops dequeuing new work and lets in-flight tasks finish.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent starting", "agent_id", a.config.ID, "concurrency", a.config.Concurrency)

	// Semaphore to limit concurrency
	sem := make(chan struct{}, a.config.Concurrency)
	var wg sync.WaitGroup

	// Channel to signal when a slot becomes available (adaptive polling)
	pollNow := make(chan struct{}, 1)

	// Current backoff duration (increases on empty queue, resets on work found)
	currentBackoff := a.config.PollInterval

	triggerPoll := func() {
		select {
		case pollNow <- struct{}{}:
		default:
			// Already a poll pending
		}
	}

	triggerPoll()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("context cancelled, waiting for running tasks to finish")
			wg.Wait()
			close(a.done)
			return ctx.Err()

		case <-time.After(currentBackoff):
			triggerPoll()

		case <-pollNow:
			availableSlots := a.config.Concurrency - len(sem)
			if availableSlots <= 0 {
				continue
			}

			items, err := a.queue.DequeueBatch(ctx, availableSlots)
			if err != nil {
				a.logger.Error("dequeue failed", "error", err)
				continue
			}

			if len(items) == 0 {
				// Empty queue - increase backoff (exponential, capped at MaxBackoff)
				currentBackoff = currentBackoff * 2
				if currentBackoff > a.config.MaxBackoff {
					currentBackoff = a.config.MaxBackoff
				}
				continue
			}

			// Found work - reset backoff to minimum
			currentBackoff = a.config.PollInterval

			a.logger.Info("claimed tasks", "count", len(items))

			for _, item := range items {
				sem <- struct{}{}

				wg.Add(1)
				go func(task store.TaskItem) {
					defer wg.Done()
					defer func() {
						<-sem
						// Slot freed - trigger immediate re-poll
						triggerPoll()
					}()
					a.processTask(ctx, task)
				}(item)
			}

			// If there are still slots available, poll again immediately
			if len(items) < availableSlots {
				triggerPoll()
			}
		}
	}
}

// Done returns a channel that is closed when the agent has fully stopped.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// processTask runs a single claimed task with heartbeats and a timeout, then
// settles it with the queue. Failures inside the retry bound reschedule the
// task; exhausted or non-retryable failures fail the owning job.
func (a *Agent) processTask(ctx context.Context, task store.TaskItem) {
	tracer := otel.Tracer("docforge-worker")
	spanCtx, span := tracer.Start(ctx, "process_task",
		trace.WithAttributes(
			attribute.String("job.id", task.JobID.String()),
			attribute.Int64("task.id", task.ID),
			attribute.String("task.name", task.TaskName),
			attribute.Int("task.attempt", task.Attempt),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	logger := a.logger.With("task_id", task.ID, "task", task.TaskName, "job_id", task.JobID, "attempt", task.Attempt)
	logger.Info("processing task")

	// The execution context is independent of the poll context so an
	// in-flight generation can finish during graceful drain.
	execCtx, cancel := context.WithTimeout(context.WithoutCancel(spanCtx), a.config.TaskTimeout)
	defer cancel()

	// Keep extending visibility while the task runs so another worker
	// does not claim it mid-generation.
	heartbeatCtx, cancelHeartbeat := context.WithCancel(context.Background())
	defer cancelHeartbeat()
	go a.runHeartbeat(heartbeatCtx, task.ID)

	err := a.handler.Handle(execCtx, task)
	if err == nil {
		if cerr := a.queue.Complete(context.Background(), nil, task.ID); cerr != nil {
			// The task stays visible and will re-run; handlers are
			// idempotent so this only costs a duplicate attempt.
			logger.Error("failed to complete task", "error", cerr)
		}
		logger.Info("task completed")
		return
	}

	span.RecordError(err)

	if errors.Is(err, pipeline.ErrPreconditionFailed) {
		// Retrying cannot help; drop the task and fail the job.
		logger.Error("task precondition failed", "error", err)
		if cerr := a.queue.Complete(context.Background(), nil, task.ID); cerr != nil {
			logger.Error("failed to drop task", "error", cerr)
		}
		a.failJob(task.JobID, err.Error(), logger)
		return
	}

	logger.Warn("task failed", "error", err)
	terminal, ferr := a.queue.Fail(context.Background(), nil, task.ID, err.Error())
	if ferr != nil {
		logger.Error("failed to settle failed task", "error", ferr)
		return
	}
	if terminal {
		a.failJob(task.JobID, err.Error(), logger)
	}
}

func (a *Agent) failJob(jobID uuid.UUID, reason string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.failer.MarkFailed(ctx, jobID, reason); err != nil {
		logger.Error("failed to mark job failed", "error", err)
	}
}

// runHeartbeat refreshes the visibility timeout periodically while a task is
// executing. This prevents long generations from being claimed twice.
func (a *Agent) runHeartbeat(ctx context.Context, taskID int64) {
	ticker := time.NewTicker(a.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			visibleAfter := time.Now().Add(a.config.VisibilityExtension)
			if err := a.queue.SetVisibleAfter(context.Background(), nil, taskID, visibleAfter); err != nil {
				a.logger.Warn("heartbeat failed", "task_id", taskID, "error", err)
			}
		}
	}
}
