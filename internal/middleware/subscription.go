package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"draw2story/internal/domain"
	"draw2story/internal/infra"
)

// UserLookup loads the caller's account.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// SubscriptionGate admits only callers with an active subscription. Statuses
// are cached per user so a request burst costs one lookup.
type SubscriptionGate struct {
	users  UserLookup
	cache  *cache.Cache
	logger infra.Logger
}

func NewSubscriptionGate(users UserLookup, ttl time.Duration, logger *infra.Logger) *SubscriptionGate {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SubscriptionGate{users: users, cache: cache.New(ttl, 2*ttl), logger: l}
}

// Require must run after AuthJWT.
func (g *SubscriptionGate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := UserIDFromContext(r.Context())
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "No token provided")
			return
		}
		status, err := g.status(r.Context(), userID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusForbidden, "Active subscription required")
				return
			}
			g.logger.Error().Err(err).Str("user_id", userID).Msg("subscription: lookup failed")
			writeError(w, http.StatusInternalServerError, "Failed to verify subscription")
			return
		}
		if status != domain.SubscriptionActive {
			writeError(w, http.StatusForbidden, "Active subscription required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Invalidate drops the cached status of userID.
func (g *SubscriptionGate) Invalidate(userID string) {
	g.cache.Delete(userID)
}

func (g *SubscriptionGate) status(ctx context.Context, userID string) (domain.SubscriptionStatus, error) {
	if v, ok := g.cache.Get(userID); ok {
		return v.(domain.SubscriptionStatus), nil
	}
	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	g.cache.SetDefault(userID, user.SubscriptionStatus)
	return user.SubscriptionStatus, nil
}
