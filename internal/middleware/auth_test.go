package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func authedHandler(t *testing.T) (http.Handler, *string) {
	t.Helper()
	var seen string
	h := AuthJWT(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	return h, &seen
}

func TestAuthJWTAcceptsCookieAndBearer(t *testing.T) {
	token, err := SignJWT(testSecret, TokenClaims{UserID: "user-1", Email: "a@example.com", Name: "Ann"})
	if err != nil {
		t.Fatalf("SignJWT() error = %v", err)
	}

	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{name: "cookie", setup: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AuthCookieName, Value: token}) }},
		{name: "bearer", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }},
		{name: "lowercase scheme", setup: func(r *http.Request) { r.Header.Set("Authorization", "bearer "+token) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, seen := authedHandler(t)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusNoContent {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
			}
			if *seen != "user-1" {
				t.Fatalf("user id = %q, want user-1", *seen)
			}
		})
	}
}

func TestAuthJWTRejects(t *testing.T) {
	expired, _ := SignJWT(testSecret, TokenClaims{
		UserID:           "user-1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	})
	forged, _ := SignJWT("other-secret", TokenClaims{UserID: "user-1"})
	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, TokenClaims{UserID: "user-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{name: "missing", header: "", status: http.StatusUnauthorized, message: "No token provided"},
		{name: "garbage", header: "Bearer abc.def", status: http.StatusForbidden, message: "Invalid token"},
		{name: "expired", header: "Bearer " + expired, status: http.StatusForbidden, message: "Invalid token"},
		{name: "wrong secret", header: "Bearer " + forged, status: http.StatusForbidden, message: "Invalid token"},
		{name: "none algorithm", header: "Bearer " + noneAlg, status: http.StatusForbidden, message: "Invalid token"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := authedHandler(t)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["error"] != tc.message {
				t.Fatalf("error = %q, want %q", body["error"], tc.message)
			}
		})
	}
}

func TestVerifyJWTFallsBackToSubject(t *testing.T) {
	token, err := SignJWT(testSecret, TokenClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-9"}})
	if err != nil {
		t.Fatalf("SignJWT() error = %v", err)
	}
	claims, err := VerifyJWT(testSecret, token)
	if err != nil {
		t.Fatalf("VerifyJWT() error = %v", err)
	}
	if claims.UserID != "user-9" {
		t.Fatalf("UserID = %q, want user-9", claims.UserID)
	}
}
