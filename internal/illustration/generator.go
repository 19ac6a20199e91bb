// Package illustration renders one image per story page. Pages are
// requested strictly in order with a shared seed; the first failure aborts
// the run and removes the images already written.
package illustration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"draw2story/internal/domain"
	"draw2story/internal/infra"
	"draw2story/internal/storage"
)

// ErrImageProvider marks failures reported by the image provider.
var ErrImageProvider = errors.New("illustration: image provider failed")

// DefaultStyle is appended to every page prompt.
const DefaultStyle = "children's book illustration, soft watercolor, warm colors, friendly characters, no text"

// ImageProvider renders a prompt into encoded image bytes.
type ImageProvider interface {
	GenerateImage(ctx context.Context, prompt string, seed int64) ([]byte, error)
}

// Store persists rendered images.
type Store interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	Remove(ctx context.Context, key string) error
	URL(key string) string
}

// PageError reports the page whose illustration could not be generated.
type PageError struct {
	Index int
	Err   error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("illustration: page %d: %v", e.Index+1, e.Err)
}

func (e *PageError) Unwrap() []error {
	return []error{ErrImageProvider, e.Err}
}

// Options configure a Generator.
type Options struct {
	// Limiter paces provider calls; it may be shared across generators.
	Limiter *rate.Limiter
	Style   string
	Logger  *infra.Logger
}

// Generator produces illustrations for story pages.
type Generator struct {
	provider ImageProvider
	store    Store
	limiter  *rate.Limiter
	style    string
	logger   infra.Logger
}

func NewGenerator(provider ImageProvider, store Store, opts Options) *Generator {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	style := strings.TrimSpace(opts.Style)
	if style == "" {
		style = DefaultStyle
	}
	return &Generator{provider: provider, store: store, limiter: limiter, style: style, logger: logger}
}

// NewLimiter builds the process-wide pacing limiter. A non-positive rate
// disables pacing.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// Prompt combines a page with the illustration style.
func (g *Generator) Prompt(page string) string {
	return strings.TrimSpace(page) + ", " + g.style
}

// GenerateAll returns one public URL per page, in page order.
func (g *Generator) GenerateAll(ctx context.Context, pages []string, seed int64) ([]string, error) {
	var keys []string
	fail := func(err error) ([]string, error) {
		g.cleanup(ctx, keys)
		return nil, err
	}

	urls := make([]string, 0, len(pages))
	for i, page := range pages {
		if err := g.limiter.Wait(ctx); err != nil {
			return fail(fmt.Errorf("illustration: page %d: %w", i+1, err))
		}

		data, err := g.provider.GenerateImage(ctx, g.Prompt(page), seed)
		if err == nil && len(data) == 0 {
			err = errors.New("empty image data")
		}
		if err != nil {
			g.logger.Warn().Err(err).Int("page", i+1).Int64("seed", seed).Msg("illustration: provider failed")
			return fail(&PageError{Index: i, Err: err})
		}

		key, err := g.store.Write(ctx, storage.UniqueKey("illustrations", ".png"), data)
		if err != nil {
			return fail(fmt.Errorf("illustration: page %d: %w: %w", i+1, domain.ErrStorage, err))
		}
		keys = append(keys, key)
		urls = append(urls, g.store.URL(key))
	}

	g.logger.Debug().Int("pages", len(urls)).Int64("seed", seed).Msg("illustration: run complete")
	return urls, nil
}

func (g *Generator) cleanup(ctx context.Context, keys []string) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := g.store.Remove(ctx, key); err != nil {
			g.logger.Warn().Err(err).Str("key", key).Msg("illustration: cleanup failed")
		}
	}
}
