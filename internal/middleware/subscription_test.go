package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"draw2story/internal/domain"
)

type stubUsers struct {
	users map[string]*domain.User
	err   error
	calls int
}

func (s *stubUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

func serveGate(gate *SubscriptionGate, userID string) int {
	h := gate.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/storybooks", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), userID))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestSubscriptionGate(t *testing.T) {
	users := &stubUsers{users: map[string]*domain.User{
		"paying": {ID: "paying", SubscriptionStatus: domain.SubscriptionActive},
		"lapsed": {ID: "lapsed", SubscriptionStatus: domain.SubscriptionPastDue},
	}}
	gate := NewSubscriptionGate(users, time.Minute, nil)

	tests := []struct {
		userID string
		want   int
	}{
		{userID: "paying", want: http.StatusOK},
		{userID: "lapsed", want: http.StatusForbidden},
		{userID: "ghost", want: http.StatusForbidden},
		{userID: "", want: http.StatusUnauthorized},
	}
	for _, tc := range tests {
		if got := serveGate(gate, tc.userID); got != tc.want {
			t.Fatalf("user %q: status = %d, want %d", tc.userID, got, tc.want)
		}
	}
}

func TestSubscriptionGateCachesStatus(t *testing.T) {
	users := &stubUsers{users: map[string]*domain.User{
		"paying": {ID: "paying", SubscriptionStatus: domain.SubscriptionActive},
	}}
	gate := NewSubscriptionGate(users, time.Minute, nil)

	for i := 0; i < 3; i++ {
		serveGate(gate, "paying")
	}
	if users.calls != 1 {
		t.Fatalf("lookups = %d, want 1", users.calls)
	}

	users.users["paying"].SubscriptionStatus = domain.SubscriptionCanceled
	gate.Invalidate("paying")
	if got := serveGate(gate, "paying"); got != http.StatusForbidden {
		t.Fatalf("status after invalidate = %d, want %d", got, http.StatusForbidden)
	}
}

func TestSubscriptionGateLookupFailure(t *testing.T) {
	gate := NewSubscriptionGate(&stubUsers{err: errors.New("db down")}, time.Minute, nil)
	if got := serveGate(gate, "paying"); got != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", got, http.StatusInternalServerError)
	}
}
