package repo

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"draw2story/internal/domain"
	"draw2story/internal/infra"
	"draw2story/internal/sqlinline"
)

// UserRepositoryPG implements domain.UserRepository backed by PostgreSQL.
type UserRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewUserRepository creates a new UserRepositoryPG.
func NewUserRepository(sql infra.SQLExecutor) *UserRepositoryPG {
	return &UserRepositoryPG{sql: sql}
}

// GetByID fetches a user by UUID.
func (r *UserRepositoryPG) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QSelectUserByID, id))
}

// GetByEmail fetches a user by email, case-insensitively.
func (r *UserRepositoryPG) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QSelectUserByEmail, strings.TrimSpace(email)))
}

// UpdateSubscriptionStatus sets the billing state of a user.
func (r *UserRepositoryPG) UpdateSubscriptionStatus(ctx context.Context, id string, status domain.SubscriptionStatus) (*domain.User, error) {
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QUpdateUserSubscription, id, string(status)))
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u      domain.User
		status string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	u.SubscriptionStatus = domain.SubscriptionStatus(status)
	return &u, nil
}

var _ domain.UserRepository = (*UserRepositoryPG)(nil)
