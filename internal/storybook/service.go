// Package storybook assembles a storybook from a title, a prompt and an
// optional drawing: moderation, story text, illustrations, then a single
// insert. It is the only place that attributes failures to a stage.
package storybook

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"draw2story/internal/domain"
	"draw2story/internal/infra"
	"draw2story/internal/metrics"
	"draw2story/internal/storage"
)

const (
	MaxTitleLength  = 200
	MaxPromptLength = 2000
	// DefaultMaxUploadBytes caps the optional drawing.
	DefaultMaxUploadBytes = 10 << 20
)

var allowedImageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Moderator classifies a payload through the moderation queue.
type Moderator interface {
	Enqueue(ctx context.Context, payload domain.ModerationPayload) (string, error)
	Await(ctx context.Context, id string) (domain.ModerationResult, error)
}

// StoryWriter produces story pages.
type StoryWriter interface {
	Generate(ctx context.Context, title, prompt string, hasImage bool) ([]string, error)
}

// Illustrator produces one image URL per page.
type Illustrator interface {
	GenerateAll(ctx context.Context, pages []string, seed int64) ([]string, error)
}

// FileStore persists uploads and removes files of deleted storybooks.
type FileStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	Remove(ctx context.Context, key string) error
	URL(key string) string
	KeyFromURL(rawURL string) (string, bool)
}

// Upload is the optional drawing attached to a request.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// CreateInput carries one generation request.
type CreateInput struct {
	UserID string
	Title  string
	Prompt string
	Image  *Upload
}

// Options configure a Service.
type Options struct {
	MaxUploadBytes int64
	// Seed overrides the random seed source.
	Seed    func() int64
	Logger  *infra.Logger
	Metrics *metrics.Metrics
}

// Service runs the storybook pipeline.
type Service struct {
	moderator   Moderator
	writer      StoryWriter
	illustrator Illustrator
	repo        domain.StorybookRepository
	files       FileStore
	maxUpload   int64
	seed        func() int64
	logger      infra.Logger
	metrics     *metrics.Metrics
}

func NewService(moderator Moderator, writer StoryWriter, illustrator Illustrator, repo domain.StorybookRepository, files FileStore, opts Options) *Service {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	seed := opts.Seed
	if seed == nil {
		seed = NewSeed
	}
	return &Service{
		moderator:   moderator,
		writer:      writer,
		illustrator: illustrator,
		repo:        repo,
		files:       files,
		maxUpload:   maxUpload,
		seed:        seed,
		logger:      logger,
		metrics:     opts.Metrics,
	}
}

// NewSeed draws a non-negative seed in int32 range.
func NewSeed() int64 {
	return rand.Int64N(math.MaxInt32)
}

// Create runs the full pipeline and returns the persisted storybook.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Storybook, error) {
	title := strings.TrimSpace(in.Title)
	prompt := strings.TrimSpace(in.Prompt)
	ext, err := s.validate(in.UserID, title, prompt, in.Image)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With().Str("user_id", in.UserID).Logger()

	if err := s.moderate(ctx, logger, title, prompt); err != nil {
		return nil, err
	}

	var written []string
	book := &domain.Storybook{UserID: in.UserID, Title: title, Prompt: prompt}

	if in.Image != nil {
		key, err := s.files.Write(ctx, storage.UniqueKey("uploads", ext), in.Image.Data)
		if err != nil {
			return nil, fmt.Errorf("storybook: save drawing: %w: %w", domain.ErrStorage, err)
		}
		written = append(written, s.files.URL(key))
		book.ImageURL = s.files.URL(key)
	}

	start := time.Now()
	book.Pages, err = s.writer.Generate(ctx, title, prompt, in.Image != nil)
	s.metrics.ObserveStage("text", time.Since(start), err)
	if err != nil {
		logger.Warn().Err(err).Str("stage", domain.SourceText).Msg("storybook: generation failed")
		s.removeFiles(ctx, written)
		return nil, &domain.GenerationError{Source: domain.SourceText, Err: err}
	}

	book.Seed = s.seed()
	start = time.Now()
	book.Images, err = s.illustrator.GenerateAll(ctx, book.Pages, book.Seed)
	s.metrics.ObserveStage("image", time.Since(start), err)
	if err != nil {
		logger.Warn().Err(err).Str("stage", domain.SourceImage).Int64("seed", book.Seed).Msg("storybook: generation failed")
		s.removeFiles(ctx, written)
		if errors.Is(err, domain.ErrStorage) {
			return nil, err
		}
		return nil, &domain.GenerationError{Source: domain.SourceImage, Err: err}
	}
	written = append(written, book.Images...)

	start = time.Now()
	err = s.repo.Create(ctx, book)
	s.metrics.ObserveStage("persist", time.Since(start), err)
	if err != nil {
		logger.Error().Err(err).Msg("storybook: persist failed")
		s.removeFiles(ctx, written)
		return nil, fmt.Errorf("storybook: persist: %w: %w", domain.ErrStorage, err)
	}

	logger.Info().
		Str("storybook_id", book.ID).
		Int("pages", len(book.Pages)).
		Int64("seed", book.Seed).
		Msg("storybook: created")
	return book, nil
}

// List returns the user's storybooks, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Storybook, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Get returns one storybook owned by userID.
func (s *Service) Get(ctx context.Context, userID, id string) (*domain.Storybook, error) {
	return s.repo.GetByID(ctx, userID, id)
}

// Delete removes one storybook and its files.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	book, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return err
	}
	s.removeFiles(ctx, book.Files())
	s.logger.Info().Str("user_id", userID).Str("storybook_id", id).Msg("storybook: deleted")
	return nil
}

// DeleteAll removes every storybook owned by userID and returns the count.
func (s *Service) DeleteAll(ctx context.Context, userID string) (int, error) {
	books, err := s.repo.DeleteAllByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	for _, book := range books {
		s.removeFiles(ctx, book.Files())
	}
	s.logger.Info().Str("user_id", userID).Int("count", len(books)).Msg("storybook: deleted all")
	return len(books), nil
}

func (s *Service) validate(userID, title, prompt string, image *Upload) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", domain.ErrUnauthorized
	}
	if title == "" {
		return "", domain.Validationf("title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", domain.Validationf("title must be at most %d characters", MaxTitleLength)
	}
	if prompt == "" {
		return "", domain.Validationf("prompt is required")
	}
	if utf8.RuneCountInString(prompt) > MaxPromptLength {
		return "", domain.Validationf("prompt must be at most %d characters", MaxPromptLength)
	}
	if image == nil {
		return "", nil
	}
	if len(image.Data) == 0 {
		return "", domain.Validationf("image is empty")
	}
	if int64(len(image.Data)) > s.maxUpload {
		return "", domain.Validationf("image must be at most %d bytes", s.maxUpload)
	}
	ext, ok := allowedImageTypes[http.DetectContentType(image.Data)]
	if !ok {
		return "", domain.Validationf("image must be a PNG, JPEG, GIF or WebP file")
	}
	return ext, nil
}

func (s *Service) moderate(ctx context.Context, logger zerolog.Logger, title, prompt string) error {
	start := time.Now()
	result, err := s.awaitVerdict(ctx, title, prompt)
	s.metrics.ObserveStage("moderation", time.Since(start), err)
	if err != nil {
		logger.Error().Err(err).Msg("storybook: moderation unavailable")
		return fmt.Errorf("storybook: %w: %w", domain.ErrModerationUnavailable, err)
	}
	if !result.Allowed {
		logger.Info().Msg("storybook: content rejected")
		return domain.ErrContentRejected
	}
	return nil
}

func (s *Service) awaitVerdict(ctx context.Context, title, prompt string) (domain.ModerationResult, error) {
	id, err := s.moderator.Enqueue(ctx, domain.ModerationPayload{Title: title, Prompt: prompt})
	if err != nil {
		return domain.ModerationResult{}, err
	}
	return s.moderator.Await(ctx, id)
}

// removeFiles deletes stored files by public URL. Failures are logged only.
func (s *Service) removeFiles(ctx context.Context, urls []string) {
	ctx = context.WithoutCancel(ctx)
	for _, u := range urls {
		key, ok := s.files.KeyFromURL(u)
		if !ok {
			continue
		}
		if err := s.files.Remove(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("storybook: file cleanup failed")
		}
	}
}
