package domain

import (
	"fmt"
	"strings"
	"time"
)

// SubscriptionStatus mirrors the billing state stored on the user row.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionInactive SubscriptionStatus = "inactive"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
)

// ParseSubscriptionStatus validates a raw status value.
func ParseSubscriptionStatus(raw string) (SubscriptionStatus, error) {
	status := SubscriptionStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case SubscriptionActive, SubscriptionInactive, SubscriptionCanceled, SubscriptionPastDue:
		return status, nil
	default:
		return "", fmt.Errorf("unsupported subscription status %q", raw)
	}
}

// User represents an authenticated account.
type User struct {
	ID                 string             `json:"id"`
	Email              string             `json:"email"`
	Name               string             `json:"name"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// HasActiveSubscription reports whether the user may generate storybooks.
func (u User) HasActiveSubscription() bool {
	return u.SubscriptionStatus == SubscriptionActive
}
