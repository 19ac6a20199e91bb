package storybook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"draw2story/internal/domain"
	"draw2story/internal/illustration"
	"draw2story/internal/storage"
)

var pngData = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type stubModerator struct {
	allowed    bool
	enqueueErr error
	awaitErr   error
	payloads   []domain.ModerationPayload
}

func (m *stubModerator) Enqueue(_ context.Context, p domain.ModerationPayload) (string, error) {
	m.payloads = append(m.payloads, p)
	return "job-1", m.enqueueErr
}

func (m *stubModerator) Await(context.Context, string) (domain.ModerationResult, error) {
	return domain.ModerationResult{Allowed: m.allowed}, m.awaitErr
}

type stubWriter struct {
	pages    []string
	err      error
	calls    int
	hasImage bool
}

func (w *stubWriter) Generate(_ context.Context, _, _ string, hasImage bool) ([]string, error) {
	w.calls++
	w.hasImage = hasImage
	return w.pages, w.err
}

type stubIllustrator struct {
	store *storage.FileStore
	err   error
	calls int
	seed  int64
}

func (i *stubIllustrator) GenerateAll(ctx context.Context, pages []string, seed int64) ([]string, error) {
	i.calls++
	i.seed = seed
	if i.err != nil {
		return nil, i.err
	}
	urls := make([]string, 0, len(pages))
	for range pages {
		key, err := i.store.Write(ctx, storage.UniqueKey("illustrations", ".png"), pngData)
		if err != nil {
			return nil, err
		}
		urls = append(urls, i.store.URL(key))
	}
	return urls, nil
}

type failingRepo struct {
	*memoryRepo
}

func (failingRepo) Create(context.Context, *domain.Storybook) error {
	return errors.New("connection reset")
}

type fixture struct {
	svc         *Service
	moderator   *stubModerator
	writer      *stubWriter
	illustrator *stubIllustrator
	repo        domain.StorybookRepository
	store       *storage.FileStore
	dir         string
}

func newFixture(t *testing.T, storyRepo domain.StorybookRepository) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFileStore(dir, "http://files.test/static")
	require.NoError(t, err)
	if storyRepo == nil {
		storyRepo = newMemoryRepo()
	}
	f := &fixture{
		moderator:   &stubModerator{allowed: true},
		writer:      &stubWriter{pages: []string{"A fox woke up.", "She ran home."}},
		illustrator: &stubIllustrator{store: store},
		repo:        storyRepo,
		store:       store,
		dir:         dir,
	}
	f.svc = NewService(f.moderator, f.writer, f.illustrator, storyRepo, store, Options{
		Seed: func() int64 { return 99 },
	})
	return f
}

func (f *fixture) fileCount(t *testing.T) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(f.dir, func(_ string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			n++
		}
		return err
	})
	require.NoError(t, err)
	return n
}

func TestCreateAssemblesStorybook(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	book, err := f.svc.Create(ctx, CreateInput{
		UserID: "user-1",
		Title:  "  Fox  ",
		Prompt: "a fox in the snow",
		Image:  &Upload{Filename: "fox.png", Data: pngData},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, book.ID)
	assert.Equal(t, "Fox", book.Title)
	assert.Equal(t, []string{"A fox woke up.", "She ran home."}, book.Pages)
	assert.Len(t, book.Images, len(book.Pages))
	assert.EqualValues(t, 99, book.Seed)
	assert.EqualValues(t, 99, f.illustrator.seed)
	assert.True(t, strings.HasPrefix(book.ImageURL, "http://files.test/static/uploads/"))
	assert.True(t, f.writer.hasImage)
	assert.Equal(t, []domain.ModerationPayload{{Title: "Fox", Prompt: "a fox in the snow"}}, f.moderator.payloads)
	assert.Equal(t, 3, f.fileCount(t))

	stored, err := f.svc.Get(ctx, "user-1", book.ID)
	require.NoError(t, err)
	assert.Equal(t, book.Pages, stored.Pages)
}

func TestCreateStopsAtModeration(t *testing.T) {
	t.Run("rejected", func(t *testing.T) {
		f := newFixture(t, nil)
		f.moderator.allowed = false
		_, err := f.svc.Create(context.Background(), CreateInput{UserID: "u", Title: "t", Prompt: "p"})
		require.ErrorIs(t, err, domain.ErrContentRejected)
		assert.Zero(t, f.writer.calls)
	})
	t.Run("enqueue failure", func(t *testing.T) {
		f := newFixture(t, nil)
		f.moderator.enqueueErr = errors.New("redis down")
		_, err := f.svc.Create(context.Background(), CreateInput{UserID: "u", Title: "t", Prompt: "p"})
		require.ErrorIs(t, err, domain.ErrModerationUnavailable)
		assert.Zero(t, f.writer.calls)
	})
	t.Run("await timeout", func(t *testing.T) {
		f := newFixture(t, nil)
		f.moderator.awaitErr = context.DeadlineExceeded
		_, err := f.svc.Create(context.Background(), CreateInput{UserID: "u", Title: "t", Prompt: "p"})
		require.ErrorIs(t, err, domain.ErrModerationUnavailable)
	})
}

func TestCreateAttributesTextFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.writer.err = domain.ErrRateLimited

	_, err := f.svc.Create(context.Background(), CreateInput{UserID: "u", Title: "t", Prompt: "p", Image: &Upload{Data: pngData}})
	require.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, domain.SourceText, domain.FailureSource(err))
	assert.Zero(t, f.illustrator.calls)
	assert.Zero(t, f.fileCount(t), "uploaded drawing should be removed")
}

func TestCreateAttributesImageFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.illustrator.err = errors.New("content filtered")

	_, err := f.svc.Create(context.Background(), CreateInput{UserID: "u", Title: "t", Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, domain.SourceImage, domain.FailureSource(err))

	books, err := f.svc.List(context.Background(), "u")
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestCreateImageRateLimitStaysImageFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.illustrator.err = &illustration.PageError{Index: 0, Err: fmt.Errorf("stability: status 429: %w", domain.ErrRateLimited)}

	_, err := f.svc.Create(context.Background(), CreateInput{UserID: "u", Title: "t", Prompt: "p", Image: &Upload{Data: pngData}})
	require.ErrorIs(t, err, domain.ErrRateLimited)
	require.ErrorIs(t, err, illustration.ErrImageProvider)
	var genErr *domain.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, domain.SourceImage, genErr.Source)
	assert.Equal(t, domain.SourceImage, domain.FailureSource(err))
	assert.Zero(t, f.fileCount(t))
}

func TestCreatePersistFailureRemovesFiles(t *testing.T) {
	f := newFixture(t, failingRepo{newMemoryRepo()})

	_, err := f.svc.Create(context.Background(), CreateInput{UserID: "u", Title: "t", Prompt: "p", Image: &Upload{Data: pngData}})
	require.ErrorIs(t, err, domain.ErrStorage)
	assert.Equal(t, domain.SourceUnknown, domain.FailureSource(err))
	assert.Zero(t, f.fileCount(t))
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		in   CreateInput
		want error
	}{
		{name: "anonymous", in: CreateInput{Title: "t", Prompt: "p"}, want: domain.ErrUnauthorized},
		{name: "missing title", in: CreateInput{UserID: "u", Title: "  ", Prompt: "p"}, want: domain.ErrValidation},
		{name: "missing prompt", in: CreateInput{UserID: "u", Title: "t"}, want: domain.ErrValidation},
		{name: "long title", in: CreateInput{UserID: "u", Title: strings.Repeat("a", MaxTitleLength+1), Prompt: "p"}, want: domain.ErrValidation},
		{name: "long prompt", in: CreateInput{UserID: "u", Title: "t", Prompt: strings.Repeat("a", MaxPromptLength+1)}, want: domain.ErrValidation},
		{name: "empty image", in: CreateInput{UserID: "u", Title: "t", Prompt: "p", Image: &Upload{}}, want: domain.ErrValidation},
		{name: "not an image", in: CreateInput{UserID: "u", Title: "t", Prompt: "p", Image: &Upload{Data: []byte("hello world")}}, want: domain.ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			_, err := f.svc.Create(context.Background(), tc.in)
			require.ErrorIs(t, err, tc.want)
			assert.Empty(t, f.moderator.payloads)
		})
	}
}

func TestDeleteRemovesFilesAndScopesToOwner(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	book, err := f.svc.Create(ctx, CreateInput{UserID: "owner", Title: "t", Prompt: "p"})
	require.NoError(t, err)
	require.Equal(t, 2, f.fileCount(t))

	require.ErrorIs(t, f.svc.Delete(ctx, "intruder", book.ID), domain.ErrNotFound)
	require.NoError(t, f.svc.Delete(ctx, "owner", book.ID))
	assert.Zero(t, f.fileCount(t))
	require.ErrorIs(t, f.svc.Delete(ctx, "owner", book.ID), domain.ErrNotFound)
}

func TestDeleteAllReturnsCount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(ctx, CreateInput{UserID: "owner", Title: "t", Prompt: "p"})
		require.NoError(t, err)
	}
	_, err := f.svc.Create(ctx, CreateInput{UserID: "other", Title: "t", Prompt: "p"})
	require.NoError(t, err)

	n, err := f.svc.DeleteAll(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	left, err := f.svc.List(ctx, "other")
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestNewSeedRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		if s := NewSeed(); s < 0 || s >= 1<<31-1 {
			t.Fatalf("NewSeed() = %d out of range", s)
		}
	}
}

func TestCreateImageStorageFailureIsNotAttributed(t *testing.T) {
	f := newFixture(t, nil)
	f.illustrator.err = fmt.Errorf("illustration: page 1: %w: disk full", domain.ErrStorage)

	_, err := f.svc.Create(context.Background(), CreateInput{UserID: "u", Title: "t", Prompt: "p"})
	require.ErrorIs(t, err, domain.ErrStorage)
	assert.Equal(t, domain.SourceUnknown, domain.FailureSource(err))
}
