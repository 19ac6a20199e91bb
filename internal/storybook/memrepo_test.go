package storybook

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"draw2story/internal/domain"
)

// memoryRepo is an in-process domain.StorybookRepository for service tests.
type memoryRepo struct {
	mu    sync.RWMutex
	books map[string]domain.Storybook
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{books: make(map[string]domain.Storybook)}
}

func (r *memoryRepo) Create(ctx context.Context, book *domain.Storybook) error {
	if book == nil {
		return errors.New("storybook is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	book.ID = uuid.NewString()
	book.CreatedAt = time.Now().UTC()
	r.books[book.ID] = copyBook(*book)
	return nil
}

func (r *memoryRepo) ListByUser(_ context.Context, userID string) ([]domain.Storybook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Storybook, 0)
	for _, b := range r.books {
		if b.UserID == userID {
			out = append(out, copyBook(b))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepo) GetByID(_ context.Context, userID, id string) (*domain.Storybook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.books[id]
	if !ok || b.UserID != userID {
		return nil, domain.ErrNotFound
	}
	c := copyBook(b)
	return &c, nil
}

func (r *memoryRepo) Delete(_ context.Context, userID, id string) (*domain.Storybook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[id]
	if !ok || b.UserID != userID {
		return nil, domain.ErrNotFound
	}
	delete(r.books, id)
	return &b, nil
}

func (r *memoryRepo) DeleteAllByUser(_ context.Context, userID string) ([]domain.Storybook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Storybook, 0)
	for id, b := range r.books {
		if b.UserID == userID {
			out = append(out, b)
			delete(r.books, id)
		}
	}
	return out, nil
}

func copyBook(b domain.Storybook) domain.Storybook {
	b.Pages = append([]string(nil), b.Pages...)
	b.Images = append([]string(nil), b.Images...)
	return b
}

var _ domain.StorybookRepository = (*memoryRepo)(nil)
