// Package moderation decides whether submitted story content is suitable
// for children by asking an external text classifier for a YES/NO verdict.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"draw2story/internal/infra"
	"draw2story/internal/providers/cohere"
)

var (
	// ErrServiceFailure wraps every upstream error or timeout.
	ErrServiceFailure = errors.New("moderation service failed")
	// ErrUnrecognizedVerdict is returned when the reply is neither YES nor NO.
	ErrUnrecognizedVerdict = errors.New("unrecognized moderation verdict")
)

const instruction = `You are a content moderator for children's stories.
Analyze the following text and respond with only one word:
"YES" if the text is safe and appropriate for kids,
"NO" if it contains inappropriate or harmful content.
Do not provide any explanations.

Text: %s`

// Chatter is the subset of the Cohere client used for classification.
type Chatter interface {
	Chat(ctx context.Context, req cohere.ChatRequest) (string, error)
}

// CohereClassifier asks a Cohere chat model for a kid-safety verdict.
type CohereClassifier struct {
	chat   Chatter
	model  string
	logger infra.Logger
}

// NewCohereClassifier builds a classifier. An empty model uses the client default.
func NewCohereClassifier(chat Chatter, model string, logger infra.Logger) *CohereClassifier {
	return &CohereClassifier{chat: chat, model: model, logger: infra.Component(logger, "moderation")}
}

// Classify reports whether text is safe for kids.
func (c *CohereClassifier) Classify(ctx context.Context, text string) (bool, error) {
	temperature := 0.0
	reply, err := c.chat.Chat(ctx, cohere.ChatRequest{
		Message:     fmt.Sprintf(instruction, text),
		Model:       c.model,
		Temperature: &temperature,
		MaxTokens:   5,
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("classifier call failed")
		return false, fmt.Errorf("%w: %w", ErrServiceFailure, err)
	}
	allowed, err := ParseVerdict(reply)
	if err != nil {
		c.logger.Warn().Str("reply", reply).Msg("classifier returned an unusable verdict")
		return false, fmt.Errorf("%w: %w", ErrServiceFailure, err)
	}
	c.logger.Info().Bool("allowed", allowed).Msg("classifier verdict")
	return allowed, nil
}

// ParseVerdict normalizes a classifier reply. Only YES and NO are accepted,
// ignoring case, surrounding whitespace, quotes and trailing punctuation.
func ParseVerdict(reply string) (bool, error) {
	answer := strings.ToUpper(strings.TrimSpace(reply))
	answer = strings.Trim(answer, "\"'`.!")
	switch strings.TrimSpace(answer) {
	case "YES":
		return true, nil
	case "NO":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnrecognizedVerdict, reply)
	}
}
