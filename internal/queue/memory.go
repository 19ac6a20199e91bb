package queue

import (
	"context"
	"sync"
	"time"

	"draw2story/internal/domain"
)

// Memory keeps jobs in process. It serves single-instance deployments and
// tests; jobs do not survive a restart.
type Memory struct {
	mu      sync.Mutex
	jobs    map[string]domain.ModerationJob
	pending []string
	subs    map[chan string]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		jobs: make(map[string]domain.ModerationJob),
		subs: make(map[chan string]struct{}),
	}
}

func (m *Memory) Push(ctx context.Context, job domain.ModerationJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	m.pending = append(m.pending, job.ID)
	return nil
}

func (m *Memory) Claim(ctx context.Context) (domain.ModerationJob, error) {
	if err := ctx.Err(); err != nil {
		return domain.ModerationJob{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.pending) > 0 {
		id := m.pending[0]
		m.pending = m.pending[1:]
		job, ok := m.jobs[id]
		if !ok || job.Status != domain.JobStatusQueued {
			continue
		}
		job.Status = domain.JobStatusActive
		job.UpdatedAt = time.Now().UTC()
		m.jobs[id] = job
		return job, nil
	}
	return domain.ModerationJob{}, ErrNoJob
}

func (m *Memory) Finish(ctx context.Context, id string, status domain.JobStatus, result *domain.ModerationResult, reason string) error {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return ErrJobNotFound
	}
	if job.Status.Terminal() {
		m.mu.Unlock()
		return ErrAlreadyTerminal
	}
	job.Status = status
	job.Reason = reason
	job.Result = nil
	if result != nil {
		r := *result
		job.Result = &r
	}
	job.UpdatedAt = time.Now().UTC()
	m.jobs[id] = job

	subs := make([]chan string, 0, len(m.subs))
	for ch := range m.subs {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- id:
		default:
			// A full subscriber gets a recheck-all marker instead.
			select {
			case ch <- "":
			default:
			}
		}
	}
	return nil
}

func (m *Memory) Lookup(ctx context.Context, id string) (domain.ModerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return domain.ModerationJob{}, ErrJobNotFound
	}
	if job.Result != nil {
		r := *job.Result
		job.Result = &r
	}
	return job, nil
}

// Events never closes the returned channel; consumers stop on ctx.
func (m *Memory) Events(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 256)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, ch)
		m.mu.Unlock()
	}()
	return ch, nil
}

// Prune drops terminal jobs last updated before cutoff.
func (m *Memory) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, job := range m.jobs {
		if job.Status.Terminal() && job.UpdatedAt.Before(cutoff) {
			delete(m.jobs, id)
			n++
		}
	}
	return n, nil
}

var _ Backend = (*Memory)(nil)
