// Package story turns a title and prompt into storybook pages with a single
// text-provider call followed by deterministic page normalization.
package story

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"draw2story/internal/domain"
	"draw2story/internal/infra"
)

// MaxPages caps the number of pages kept from a generated story.
const MaxPages = 15

// ErrNoPages is returned when the provider output yields no usable page.
var ErrNoPages = errors.New("story: no usable pages in generated text")

// TextProvider completes a prompt with free-form prose.
type TextProvider interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Generator produces story pages.
type Generator struct {
	provider TextProvider
	logger   infra.Logger
}

func NewGenerator(provider TextProvider, logger *infra.Logger) *Generator {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &Generator{provider: provider, logger: l}
}

// Generate asks the provider for a story and splits it into at most
// MaxPages pages. Rate limiting by the provider is returned as
// domain.ErrRateLimited; every other provider failure wraps
// domain.ErrUpstreamFailure.
func (g *Generator) Generate(ctx context.Context, title, prompt string, hasImage bool) ([]string, error) {
	start := time.Now()
	raw, err := g.provider.GenerateText(ctx, BuildPrompt(title, prompt, hasImage))
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			return nil, err
		}
		return nil, fmt.Errorf("story: %w: %w", domain.ErrUpstreamFailure, err)
	}

	pages := NormalizePages(raw, title)
	g.logger.Debug().
		Int("raw_len", len(raw)).
		Int("pages", len(pages)).
		Dur("took", time.Since(start)).
		Msg("story: text generated")
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	return pages, nil
}

// BuildPrompt composes the instruction sent to the text provider.
func BuildPrompt(title, prompt string, hasImage bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a children's story titled %q based on this idea: %s\n\n", strings.TrimSpace(title), strings.TrimSpace(prompt))
	if hasImage {
		b.WriteString("The child also drew a picture for this story. Weave its theme into the plot naturally without mentioning the drawing itself.\n\n")
	}
	b.WriteString("Rules:\n")
	b.WriteString("- Write between 10 and 15 short pages.\n")
	b.WriteString("- Each page has one or two simple sentences.\n")
	b.WriteString("- Use 20 to 30 sentences in total.\n")
	b.WriteString("- Do not write a title, an introduction or any closing commentary.\n")
	b.WriteString("- Start directly with the story.\n")
	b.WriteString("- Separate pages with a blank line.\n")
	return b.String()
}
