package queue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"draw2story/internal/domain"
)

type classifyFunc func(ctx context.Context, text string) (bool, error)

func (f classifyFunc) Classify(ctx context.Context, text string) (bool, error) {
	return f(ctx, text)
}

func TestWorkerPublishesVerdicts(t *testing.T) {
	q, _ := newMemoryQueue(t, 5*time.Second)
	classifier := classifyFunc(func(_ context.Context, text string) (bool, error) {
		switch {
		case strings.Contains(text, "broken"):
			return false, errors.New("upstream down")
		case strings.Contains(text, "scary"):
			return false, nil
		default:
			return true, nil
		}
	})
	worker := NewWorker(q, classifier, WorkerOptions{Concurrency: 3, PollInterval: 10 * time.Millisecond})

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(runCtx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	ctx := context.Background()
	safe, err := q.Enqueue(ctx, domain.ModerationPayload{Title: "Bunny", Prompt: "a friendly bunny"})
	require.NoError(t, err)
	unsafe, err := q.Enqueue(ctx, domain.ModerationPayload{Title: "Night", Prompt: "something scary"})
	require.NoError(t, err)
	failing, err := q.Enqueue(ctx, domain.ModerationPayload{Title: "Oops", Prompt: "broken"})
	require.NoError(t, err)

	res, err := q.Await(ctx, safe)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = q.Await(ctx, unsafe)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	_, err = q.Await(ctx, failing)
	require.ErrorIs(t, err, ErrJobFailed)
	assert.Contains(t, err.Error(), "upstream down")
}

func TestWorkerClassifiesTitleAndPrompt(t *testing.T) {
	q, _ := newMemoryQueue(t, 5*time.Second)
	got := make(chan string, 1)
	classifier := classifyFunc(func(_ context.Context, text string) (bool, error) {
		got <- text
		return true, nil
	})
	worker := NewWorker(q, classifier, WorkerOptions{PollInterval: 10 * time.Millisecond})

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(runCtx) }()

	id, err := q.Enqueue(context.Background(), domain.ModerationPayload{Title: "Title", Prompt: "Prompt"})
	require.NoError(t, err)
	_, err = q.Await(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Title\nPrompt", <-got)
}

func TestWorkerStopsOnCancel(t *testing.T) {
	q, _ := newMemoryQueue(t, time.Second)
	worker := NewWorker(q, classifyFunc(func(context.Context, string) (bool, error) { return true, nil }),
		WorkerOptions{Concurrency: 2, PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop after cancel")
	}
}
