package handlers

import (
	"fmt"
	"net/http"
	"path"
	"regexp"
	"strings"

	"draw2story/internal/domain"
	"draw2story/pkg/zip"
)

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// DownloadStorybookArchive streams a zip with the story text and every
// stored image of one storybook.
func (a *App) DownloadStorybookArchive(w http.ResponseWriter, r *http.Request) {
	id, ok := a.storybookID(w, r)
	if !ok {
		return
	}
	book, err := a.Storybooks.Get(r.Context(), a.currentUserID(r), id)
	if err != nil {
		a.lookupError(w, err, "storybooks: archive lookup failed")
		return
	}

	entries := []zip.Entry{{Filename: "story.txt", Data: []byte(storyText(book)), Modified: book.CreatedAt}}
	for i, url := range book.Images {
		data, err := a.readFile(r, url)
		if err != nil {
			a.Logger.Error().Err(err).Str("storybook_id", book.ID).Int("page", i+1).Msg("storybooks: archive read failed")
			a.error(w, http.StatusInternalServerError, "Failed to build archive")
			return
		}
		entries = append(entries, zip.Entry{
			Filename: fmt.Sprintf("illustrations/page-%02d%s", i+1, extOf(url, ".png")),
			Data:     data,
			Modified: book.CreatedAt,
		})
	}
	if book.ImageURL != "" {
		if data, err := a.readFile(r, book.ImageURL); err == nil {
			entries = append(entries, zip.Entry{Filename: "drawing" + extOf(book.ImageURL, ".png"), Data: data, Modified: book.CreatedAt})
		} else {
			a.Logger.Warn().Err(err).Str("storybook_id", book.ID).Msg("storybooks: drawing missing from archive")
		}
	}

	archive, err := zip.Archive(entries)
	if err != nil {
		a.Logger.Error().Err(err).Str("storybook_id", book.ID).Msg("storybooks: archive failed")
		a.error(w, http.StatusInternalServerError, "Failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.zip"`, archiveName(book)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func (a *App) readFile(r *http.Request, url string) ([]byte, error) {
	key, ok := a.Files.KeyFromURL(url)
	if !ok {
		return nil, fmt.Errorf("url %q is not served by this store", url)
	}
	return a.Files.Read(r.Context(), key)
}

func storyText(book *domain.Storybook) string {
	var b strings.Builder
	b.WriteString(book.Title)
	b.WriteString("\n\n")
	for i, page := range book.Pages {
		fmt.Fprintf(&b, "Page %d\n%s\n\n", i+1, page)
	}
	return b.String()
}

func archiveName(book *domain.Storybook) string {
	name := strings.Trim(unsafeFilename.ReplaceAllString(strings.ToLower(book.Title), "-"), "-")
	if name == "" {
		return "storybook-" + book.ID
	}
	return name
}

func extOf(url, fallback string) string {
	if ext := path.Ext(url); ext != "" {
		return ext
	}
	return fallback
}
