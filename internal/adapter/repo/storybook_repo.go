package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"draw2story/internal/domain"
	"draw2story/internal/infra"
	"draw2story/internal/sqlinline"
)

// StorybookRepositoryPG implements domain.StorybookRepository. Pages and
// images are stored as JSON arrays on a single row so a storybook is
// written atomically.
type StorybookRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewStorybookRepository creates a new StorybookRepositoryPG.
func NewStorybookRepository(sql infra.SQLExecutor) *StorybookRepositoryPG {
	return &StorybookRepositoryPG{sql: sql}
}

// Create inserts book and fills in its generated ID and creation time.
func (r *StorybookRepositoryPG) Create(ctx context.Context, book *domain.Storybook) error {
	if book == nil {
		return errors.New("storybook is required")
	}
	if len(book.Pages) != len(book.Images) {
		return fmt.Errorf("storybook has %d pages but %d images", len(book.Pages), len(book.Images))
	}
	pages, err := json.Marshal(nonNil(book.Pages))
	if err != nil {
		return fmt.Errorf("encode pages: %w", err)
	}
	images, err := json.Marshal(nonNil(book.Images))
	if err != nil {
		return fmt.Errorf("encode images: %w", err)
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertStorybook,
		book.UserID,
		book.Title,
		book.Prompt,
		book.ImageURL,
		pages,
		images,
		book.Seed,
	)
	return row.Scan(&book.ID, &book.CreatedAt)
}

// ListByUser returns the user's storybooks, newest first.
func (r *StorybookRepositoryPG) ListByUser(ctx context.Context, userID string) ([]domain.Storybook, error) {
	return r.collect(ctx, sqlinline.QSelectStorybooksByUser, userID)
}

// GetByID returns one storybook owned by userID.
func (r *StorybookRepositoryPG) GetByID(ctx context.Context, userID, id string) (*domain.Storybook, error) {
	return scanStorybook(r.sql.QueryRow(ctx, sqlinline.QSelectStorybookByID, id, userID))
}

// Delete removes one storybook owned by userID and returns the deleted row.
func (r *StorybookRepositoryPG) Delete(ctx context.Context, userID, id string) (*domain.Storybook, error) {
	return scanStorybook(r.sql.QueryRow(ctx, sqlinline.QDeleteStorybook, id, userID))
}

// DeleteAllByUser removes every storybook owned by userID.
func (r *StorybookRepositoryPG) DeleteAllByUser(ctx context.Context, userID string) ([]domain.Storybook, error) {
	return r.collect(ctx, sqlinline.QDeleteStorybooksByUser, userID)
}

func (r *StorybookRepositoryPG) collect(ctx context.Context, query string, args ...any) ([]domain.Storybook, error) {
	rows, err := r.sql.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := make([]domain.Storybook, 0)
	for rows.Next() {
		book, err := scanStorybook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, *book)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return books, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStorybook(row scanner) (*domain.Storybook, error) {
	var (
		book          domain.Storybook
		pages, images []byte
	)
	if err := row.Scan(
		&book.ID,
		&book.UserID,
		&book.Title,
		&book.Prompt,
		&book.ImageURL,
		&pages,
		&images,
		&book.Seed,
		&book.CreatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if err := decodeList(pages, &book.Pages); err != nil {
		return nil, fmt.Errorf("decode pages of %s: %w", book.ID, err)
	}
	if err := decodeList(images, &book.Images); err != nil {
		return nil, fmt.Errorf("decode images of %s: %w", book.ID, err)
	}
	return &book, nil
}

func decodeList(raw []byte, dst *[]string) error {
	*dst = []string{}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ domain.StorybookRepository = (*StorybookRepositoryPG)(nil)
