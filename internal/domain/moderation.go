package domain

import "time"

// JobStatus enumerates moderation job lifecycle states.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ModerationPayload is the content submitted for classification.
type ModerationPayload struct {
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
}

// Text is the classifier input.
func (p ModerationPayload) Text() string {
	return p.Title + "\n" + p.Prompt
}

// ModerationResult is published by a worker when classification succeeds.
type ModerationResult struct {
	Allowed bool `json:"allowed"`
}

// ModerationJob tracks one payload through the moderation queue.
type ModerationJob struct {
	ID        string
	Queue     string
	Payload   ModerationPayload
	Status    JobStatus
	Result    *ModerationResult
	Reason    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
