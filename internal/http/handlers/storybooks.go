package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"draw2story/internal/domain"
	"draw2story/internal/storybook"
)

const (
	msgContentRejected       = "Sorry, we don't allow content like that in children's stories. Please try a different idea."
	msgRateLimited           = "Our story writer is busy right now. Please try again in a moment."
	msgModerationUnavailable = "We couldn't check your story idea right now. Please try again in a moment."
	msgStorybookNotFound     = "Storybook not found"
)

// multipartOverhead leaves room for form fields next to the image.
const multipartOverhead = 1 << 20

type storybookResponse struct {
	Storybook *domain.Storybook `json:"storybook"`
}

type storybooksResponse struct {
	Storybooks []domain.Storybook `json:"storybooks"`
}

type generationErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
	Source  string `json:"source"`
}

func (a *App) CreateStorybook(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	maxUpload := a.maxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusBadRequest, fmt.Sprintf("Image must be at most %d MB", maxUpload>>20))
			return
		}
		a.error(w, http.StatusBadRequest, "Invalid form data")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	title := strings.TrimSpace(r.FormValue("title"))
	prompt := strings.TrimSpace(r.FormValue("prompt"))
	if title == "" || prompt == "" {
		a.error(w, http.StatusBadRequest, "Title and prompt are required")
		return
	}

	upload, problem := readUpload(r, maxUpload)
	if problem != "" {
		a.error(w, http.StatusBadRequest, problem)
		return
	}

	book, err := a.Storybooks.Create(r.Context(), storybook.CreateInput{
		UserID: userID,
		Title:  title,
		Prompt: prompt,
		Image:  upload,
	})
	if err != nil {
		a.createError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, storybookResponse{Storybook: book})
}

// readUpload returns the optional image, or a caller-facing problem.
func readUpload(r *http.Request, maxUpload int64) (*storybook.Upload, string) {
	tooLarge := fmt.Sprintf("Image must be at most %d MB", maxUpload>>20)
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, ""
	}
	if err != nil {
		return nil, "Invalid image upload"
	}
	defer file.Close()
	if header.Size > maxUpload {
		return nil, tooLarge
	}
	data, err := io.ReadAll(io.LimitReader(file, maxUpload+1))
	if err != nil {
		return nil, "Invalid image upload"
	}
	if int64(len(data)) > maxUpload {
		return nil, tooLarge
	}
	return &storybook.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, ""
}

// createError is the single translation point from pipeline failures to
// HTTP responses.
func (a *App) createError(w http.ResponseWriter, r *http.Request, err error) {
	logger := a.Logger.With().Str("user_id", a.currentUserID(r)).Logger()
	switch {
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, validationMessage(err))
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "No token provided")
	case errors.Is(err, domain.ErrContentRejected):
		a.error(w, http.StatusBadRequest, msgContentRejected)
	case errors.Is(err, domain.ErrModerationUnavailable):
		logger.Warn().Err(err).Msg("storybooks: moderation unavailable")
		a.error(w, http.StatusServiceUnavailable, msgModerationUnavailable)
	case errors.Is(err, domain.ErrRateLimited) && domain.FailureSource(err) == domain.SourceText:
		logger.Warn().Err(err).Msg("storybooks: text provider rate limited")
		a.error(w, http.StatusTooManyRequests, msgRateLimited)
	default:
		source := domain.FailureSource(err)
		logger.Error().Err(err).Str("source", source).Msg("storybooks: generation failed")
		a.json(w, http.StatusInternalServerError, generationErrorResponse{
			Error:   "Failed to generate storybook",
			Details: err.Error(),
			Source:  source,
		})
	}
}

func validationMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": ")
	if msg == "" {
		return "Invalid request"
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

func (a *App) ListStorybooks(w http.ResponseWriter, r *http.Request) {
	books, err := a.Storybooks.List(r.Context(), a.currentUserID(r))
	if err != nil {
		a.Logger.Error().Err(err).Msg("storybooks: list failed")
		a.error(w, http.StatusInternalServerError, "Failed to load storybooks")
		return
	}
	a.json(w, http.StatusOK, storybooksResponse{Storybooks: books})
}

func (a *App) GetStorybook(w http.ResponseWriter, r *http.Request) {
	id, ok := a.storybookID(w, r)
	if !ok {
		return
	}
	book, err := a.Storybooks.Get(r.Context(), a.currentUserID(r), id)
	if err != nil {
		a.lookupError(w, err, "storybooks: get failed")
		return
	}
	a.json(w, http.StatusOK, storybookResponse{Storybook: book})
}

func (a *App) DeleteStorybook(w http.ResponseWriter, r *http.Request) {
	id, ok := a.storybookID(w, r)
	if !ok {
		return
	}
	if err := a.Storybooks.Delete(r.Context(), a.currentUserID(r), id); err != nil {
		a.lookupError(w, err, "storybooks: delete failed")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"message": "Storybook deleted"})
}

func (a *App) DeleteAllStorybooks(w http.ResponseWriter, r *http.Request) {
	n, err := a.Storybooks.DeleteAll(r.Context(), a.currentUserID(r))
	if err != nil {
		a.Logger.Error().Err(err).Msg("storybooks: delete all failed")
		a.error(w, http.StatusInternalServerError, "Failed to delete storybooks")
		return
	}
	a.json(w, http.StatusOK, map[string]int{"deleted": n})
}

// storybookID rejects malformed ids as not found so probing reveals nothing.
func (a *App) storybookID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		a.error(w, http.StatusNotFound, msgStorybookNotFound)
		return "", false
	}
	return id, true
}

func (a *App) lookupError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, msgStorybookNotFound)
		return
	}
	a.Logger.Error().Err(err).Msg(msg)
	a.error(w, http.StatusInternalServerError, "Internal server error")
}
