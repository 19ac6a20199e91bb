package queue

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"draw2story/internal/domain"
	"draw2story/internal/infra"
	"draw2story/internal/metrics"
)

// Classifier decides whether text is acceptable.
type Classifier interface {
	Classify(ctx context.Context, text string) (bool, error)
}

// WorkerOptions configure a Worker.
type WorkerOptions struct {
	Concurrency  int
	PollInterval time.Duration
	Logger       *infra.Logger
	Metrics      *metrics.Metrics
}

// Worker claims moderation jobs and publishes their verdicts.
type Worker struct {
	queue       *Queue
	classifier  Classifier
	concurrency int
	poll        time.Duration
	logger      infra.Logger
	metrics     *metrics.Metrics
}

const finishTimeout = 5 * time.Second

func NewWorker(q *Queue, classifier Classifier, opts WorkerOptions) *Worker {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &Worker{
		queue:       q,
		classifier:  classifier,
		concurrency: concurrency,
		poll:        poll,
		logger:      logger.With().Str("queue", q.Name()).Logger(),
		metrics:     opts.Metrics,
	}
}

// Run processes jobs on Concurrency lanes until ctx ends.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for lane := 0; lane < w.concurrency; lane++ {
		g.Go(func() error { return w.runLane(ctx, lane) })
	}
	return g.Wait()
}

func (w *Worker) runLane(ctx context.Context, lane int) error {
	logger := w.logger.With().Int("lane", lane).Logger()
	logger.Info().Msg("worker: started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job, err := w.queue.Claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, ErrNoJob) {
				logger.Error().Err(err).Msg("worker: failed to claim job")
			}
			if !sleep(ctx, w.poll) {
				return ctx.Err()
			}
			continue
		}

		w.handle(ctx, logger, job)
	}
}

func (w *Worker) handle(ctx context.Context, logger zerolog.Logger, job domain.ModerationJob) {
	logger = logger.With().Str("job_id", job.ID).Logger()
	logger.Debug().Msg("worker: picked job")

	allowed, err := w.classifier.Classify(ctx, job.Payload.Text())

	// Publish the outcome even when shutdown interrupted classification so
	// the producer is not left waiting for its timeout.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if err != nil {
		w.metrics.RecordModeration("failed")
		logger.Error().Err(err).Msg("worker: job failed")
		if ferr := w.queue.Fail(finishCtx, job.ID, err.Error()); ferr != nil {
			logger.Error().Err(ferr).Msg("worker: update status failed")
		}
		return
	}

	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	w.metrics.RecordModeration(outcome)
	if err := w.queue.Complete(finishCtx, job.ID, domain.ModerationResult{Allowed: allowed}); err != nil {
		logger.Error().Err(err).Msg("worker: update status failed")
		return
	}
	logger.Info().Str("outcome", outcome).Msg("worker: job completed")
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
