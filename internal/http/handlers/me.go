package handlers

import (
	"errors"
	"net/http"

	"draw2story/internal/domain"
)

type meResponse struct {
	User          *domain.User `json:"user"`
	CanCreateBook bool         `json:"can_create_storybooks"`
}

func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "No token provided")
		return
	}
	user, err := a.Users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "User not found")
			return
		}
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("me: lookup failed")
		a.error(w, http.StatusInternalServerError, "Failed to load user")
		return
	}
	a.json(w, http.StatusOK, meResponse{User: user, CanCreateBook: user.HasActiveSubscription()})
}
