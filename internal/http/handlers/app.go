package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"draw2story/internal/domain"
	"draw2story/internal/infra"
	"draw2story/internal/middleware"
	"draw2story/internal/storybook"
)

// StorybookService is the pipeline the storybook routes drive.
type StorybookService interface {
	Create(ctx context.Context, in storybook.CreateInput) (*domain.Storybook, error)
	List(ctx context.Context, userID string) ([]domain.Storybook, error)
	Get(ctx context.Context, userID, id string) (*domain.Storybook, error)
	Delete(ctx context.Context, userID, id string) error
	DeleteAll(ctx context.Context, userID string) (int, error)
}

// UserReader loads accounts.
type UserReader interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// FileReader reads stored files back by their public URL.
type FileReader interface {
	Read(ctx context.Context, key string) ([]byte, error)
	KeyFromURL(rawURL string) (string, bool)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	Config     *infra.Config
	Logger     infra.Logger
	Storybooks StorybookService
	Users      UserReader
	Files      FileReader
	DB         Pinger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, message string) {
	a.json(w, code, map[string]string{"error": message})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) maxUploadBytes() int64 {
	if a.Config != nil && a.Config.MaxUploadBytes > 0 {
		return a.Config.MaxUploadBytes
	}
	return storybook.DefaultMaxUploadBytes
}
