package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrSubscriptionRequired  = errors.New("active subscription required")
	ErrValidation            = errors.New("validation failed")
	ErrModerationUnavailable = errors.New("moderation unavailable")
	ErrContentRejected       = errors.New("content rejected")
	ErrRateLimited           = errors.New("upstream rate limited")
	ErrUpstreamFailure       = errors.New("upstream failure")
	ErrStorage               = errors.New("storage failure")
)

// Failure sources reported to API callers.
const (
	SourceText    = "text"
	SourceImage   = "image"
	SourceUnknown = "unknown"
)

// GenerationError attributes a pipeline failure to the stage that produced it.
type GenerationError struct {
	Source string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s generation failed", e.Source)
	}
	return fmt.Sprintf("%s generation failed: %v", e.Source, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// FailureSource returns the stage a failure is attributed to.
func FailureSource(err error) string {
	var genErr *GenerationError
	if errors.As(err, &genErr) && genErr.Source != "" {
		return genErr.Source
	}
	return SourceUnknown
}

// Validationf builds an error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
