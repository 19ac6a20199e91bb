// Package queue implements the moderation job queue: producers enqueue a
// payload and block on its verdict while workers claim jobs, classify them
// and publish the outcome. Backends provide storage and completion events;
// Queue correlates events with waiting producers by job id.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"draw2story/internal/domain"
	"draw2story/internal/infra"
	"draw2story/internal/metrics"
)

var (
	// ErrNoJob is returned by Claim when nothing is waiting.
	ErrNoJob = errors.New("queue: no job available")
	// ErrJobNotFound is returned for unknown or expired job ids.
	ErrJobNotFound = errors.New("queue: job not found")
	// ErrAlreadyTerminal is returned when a finished job is finished again.
	ErrAlreadyTerminal = errors.New("queue: job already finished")
	// ErrAwaitTimeout is returned when no verdict arrives in time.
	ErrAwaitTimeout = errors.New("queue: timed out waiting for job")
	// ErrJobFailed is returned by Await when the worker failed the job.
	ErrJobFailed = errors.New("queue: job failed")
)

const (
	DefaultAwaitTimeout = 30 * time.Second
	// DefaultRecheckInterval bounds how long a lost completion event can
	// delay Await before the job state is read again.
	DefaultRecheckInterval = 5 * time.Second
)

// Backend stores jobs and announces completions.
type Backend interface {
	Push(ctx context.Context, job domain.ModerationJob) error
	// Claim moves the oldest queued job to active for exactly one caller.
	Claim(ctx context.Context) (domain.ModerationJob, error)
	// Finish transitions a job to a terminal status and emits an event.
	Finish(ctx context.Context, id string, status domain.JobStatus, result *domain.ModerationResult, reason string) error
	Lookup(ctx context.Context, id string) (domain.ModerationJob, error)
	// Events streams ids of finished jobs until ctx ends. An empty id asks
	// listeners to recheck every pending job.
	Events(ctx context.Context) (<-chan string, error)
}

// Options configure a Queue.
type Options struct {
	Name            string
	AwaitTimeout    time.Duration
	RecheckInterval time.Duration
	Logger          *infra.Logger
	Metrics         *metrics.Metrics
}

// Queue is safe for concurrent use by producers and workers.
type Queue struct {
	name    string
	backend Backend
	timeout time.Duration
	recheck time.Duration
	logger  infra.Logger
	metrics *metrics.Metrics
	waiters *waiters
}

// New builds a queue over backend. Start must run before Await can observe
// completions promptly; without it Await falls back to periodic rechecks.
func New(backend Backend, opts Options) *Queue {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	timeout := opts.AwaitTimeout
	if timeout <= 0 {
		timeout = DefaultAwaitTimeout
	}
	recheck := opts.RecheckInterval
	if recheck <= 0 {
		recheck = DefaultRecheckInterval
	}
	name := opts.Name
	if name == "" {
		name = "storybookModeration"
	}
	return &Queue{
		name:    name,
		backend: backend,
		timeout: timeout,
		recheck: recheck,
		logger:  logger.With().Str("queue", name).Logger(),
		metrics: opts.Metrics,
		waiters: newWaiters(),
	}
}

func (q *Queue) Name() string { return q.name }

// Start subscribes to backend events and dispatches them to waiting
// producers until ctx ends.
func (q *Queue) Start(ctx context.Context) error {
	events, err := q.backend.Events(ctx)
	if err != nil {
		return fmt.Errorf("queue %s: subscribe: %w", q.name, err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case id, ok := <-events:
				if !ok {
					q.logger.Warn().Msg("queue: event stream closed")
					q.waiters.notifyAll()
					return
				}
				if id == "" {
					q.waiters.notifyAll()
					continue
				}
				q.waiters.notify(id)
			}
		}
	}()
	return nil
}

// Enqueue stores payload as a new queued job and returns its id.
func (q *Queue) Enqueue(ctx context.Context, payload domain.ModerationPayload) (string, error) {
	now := time.Now().UTC()
	job := domain.ModerationJob{
		ID:        uuid.NewString(),
		Queue:     q.name,
		Payload:   payload,
		Status:    domain.JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.backend.Push(ctx, job); err != nil {
		return "", fmt.Errorf("queue %s: enqueue: %w", q.name, err)
	}
	q.logger.Debug().Str("job_id", job.ID).Msg("queue: job enqueued")
	return job.ID, nil
}

// Await blocks until job id reaches a terminal state, the queue timeout
// elapses or ctx ends. Only the outcome of id is ever returned.
func (q *Queue) Await(ctx context.Context, id string) (domain.ModerationResult, error) {
	start := time.Now()
	defer func() { q.metrics.ObserveModerationWait(time.Since(start)) }()

	notify := q.waiters.register(id)
	defer q.waiters.remove(id, notify)

	timer := time.NewTimer(q.timeout)
	defer timer.Stop()
	ticker := time.NewTicker(q.recheck)
	defer ticker.Stop()

	for {
		job, err := q.backend.Lookup(ctx, id)
		if err != nil {
			return domain.ModerationResult{}, fmt.Errorf("queue %s: lookup %s: %w", q.name, id, err)
		}
		if job.Status.Terminal() {
			return outcome(job)
		}

		select {
		case <-notify:
		case <-ticker.C:
		case <-timer.C:
			return domain.ModerationResult{}, fmt.Errorf("%w %s after %s", ErrAwaitTimeout, id, q.timeout)
		case <-ctx.Done():
			return domain.ModerationResult{}, ctx.Err()
		}
	}
}

// Claim hands the next queued job to the caller.
func (q *Queue) Claim(ctx context.Context) (domain.ModerationJob, error) {
	return q.backend.Claim(ctx)
}

// Complete records a successful verdict for id.
func (q *Queue) Complete(ctx context.Context, id string, result domain.ModerationResult) error {
	if err := q.backend.Finish(ctx, id, domain.JobStatusCompleted, &result, ""); err != nil {
		return fmt.Errorf("queue %s: complete %s: %w", q.name, id, err)
	}
	return nil
}

// Fail records that id could not be classified.
func (q *Queue) Fail(ctx context.Context, id, reason string) error {
	if err := q.backend.Finish(ctx, id, domain.JobStatusFailed, nil, reason); err != nil {
		return fmt.Errorf("queue %s: fail %s: %w", q.name, id, err)
	}
	return nil
}

func outcome(job domain.ModerationJob) (domain.ModerationResult, error) {
	if job.Status == domain.JobStatusFailed {
		return domain.ModerationResult{}, fmt.Errorf("%w: %s: %s", ErrJobFailed, job.ID, job.Reason)
	}
	if job.Result == nil {
		return domain.ModerationResult{}, fmt.Errorf("%w: %s: completed without result", ErrJobFailed, job.ID)
	}
	return *job.Result, nil
}
