package domain

import (
	"context"
)

// UserRepository defines access methods for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateSubscriptionStatus(ctx context.Context, id string, status SubscriptionStatus) (*User, error)
}

// StorybookRepository persists finished storybooks. Every read and delete is
// scoped to the owning user.
type StorybookRepository interface {
	Create(ctx context.Context, book *Storybook) error
	ListByUser(ctx context.Context, userID string) ([]Storybook, error)
	GetByID(ctx context.Context, userID, id string) (*Storybook, error)
	Delete(ctx context.Context, userID, id string) (*Storybook, error)
	DeleteAllByUser(ctx context.Context, userID string) ([]Storybook, error)
}
