package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"draw2story/internal/domain"
	"draw2story/internal/sqlinline"
)

type storedBook struct {
	id, userID, title, prompt, imageURL string
	pages, images                       []byte
	seed                                int64
	createdAt                           time.Time
}

func (b storedBook) values() []any {
	return []any{b.id, b.userID, b.title, b.prompt, b.imageURL, b.pages, b.images, b.seed, b.createdAt}
}

// fakeSQL emulates the storybook queries over an in-memory table.
type fakeSQL struct {
	books []storedBook
	seq   int
	clock time.Time
}

func newFakeSQL() *fakeSQL {
	return &fakeSQL{clock: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeSQL) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("exec not supported")
}

func (f *fakeSQL) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	switch query {
	case sqlinline.QInsertStorybook:
		f.seq++
		f.clock = f.clock.Add(time.Minute)
		b := storedBook{
			id:        fmt.Sprintf("book-%d", f.seq),
			userID:    args[0].(string),
			title:     args[1].(string),
			prompt:    args[2].(string),
			imageURL:  args[3].(string),
			pages:     args[4].([]byte),
			images:    args[5].([]byte),
			seed:      args[6].(int64),
			createdAt: f.clock,
		}
		f.books = append(f.books, b)
		return valuesRow{vals: []any{b.id, b.createdAt}}
	case sqlinline.QSelectStorybookByID, sqlinline.QDeleteStorybook:
		id, userID := args[0].(string), args[1].(string)
		for i, b := range f.books {
			if b.id == id && b.userID == userID {
				if query == sqlinline.QDeleteStorybook {
					f.books = append(f.books[:i], f.books[i+1:]...)
				}
				return valuesRow{vals: b.values()}
			}
		}
		return valuesRow{err: pgx.ErrNoRows}
	}
	return valuesRow{err: fmt.Errorf("unexpected query %q", firstLine(query))}
}

func (f *fakeSQL) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	userID := args[0].(string)
	var matched, kept []storedBook
	for _, b := range f.books {
		if b.userID == userID {
			matched = append(matched, b)
		} else {
			kept = append(kept, b)
		}
	}
	switch query {
	case sqlinline.QSelectStorybooksByUser:
		sort.Slice(matched, func(i, j int) bool { return matched[i].createdAt.After(matched[j].createdAt) })
	case sqlinline.QDeleteStorybooksByUser:
		f.books = kept
	default:
		return nil, fmt.Errorf("unexpected query %q", firstLine(query))
	}
	rows := &valuesRows{}
	for _, b := range matched {
		rows.data = append(rows.data, b.values())
	}
	return rows, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

type valuesRow struct {
	vals []any
	err  error
}

func (r valuesRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.vals, dest)
}

type valuesRows struct {
	data [][]any
	idx  int
}

func (r *valuesRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *valuesRows) Scan(dest ...any) error { return assign(r.data[r.idx-1], dest) }

func (r *valuesRows) Err() error { return nil }

func (r *valuesRows) Close() {}

func (r *valuesRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (r *valuesRows) Conn() *pgx.Conn { return nil }

func (r *valuesRows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (r *valuesRows) Values() ([]any, error) { return nil, errors.New("values not supported") }

func (r *valuesRows) RawValues() [][]byte { return nil }

func assign(vals []any, dest []any) error {
	if len(vals) != len(dest) {
		return fmt.Errorf("scan: %d values into %d targets", len(vals), len(dest))
	}
	for i, v := range vals {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *[]byte:
			*d = v.([]byte)
		case *int64:
			*d = v.(int64)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported target %T", dest[i])
		}
	}
	return nil
}

func TestStorybookRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	sql := newFakeSQL()
	repo := NewStorybookRepository(sql)

	first := &domain.Storybook{UserID: "u1", Title: "Dog", Prompt: "a dog", Pages: []string{"A dog ran."}, Images: []string{"/static/a.png"}, Seed: 42}
	second := &domain.Storybook{UserID: "u1", Title: "Cat", Prompt: "a cat", Pages: []string{"A cat sat.", "It slept."}, Images: []string{"/static/b.png", "/static/c.png"}, Seed: 7}
	other := &domain.Storybook{UserID: "u2", Title: "Fox", Prompt: "a fox", Pages: []string{"A fox hid."}, Images: []string{"/static/d.png"}}
	for _, b := range []*domain.Storybook{first, second, other} {
		if err := repo.Create(ctx, b); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		if b.ID == "" || b.CreatedAt.IsZero() {
			t.Fatalf("Create() did not populate ID/CreatedAt: %+v", b)
		}
	}
	var stored []string
	if err := json.Unmarshal(sql.books[1].pages, &stored); err != nil || len(stored) != 2 {
		t.Fatalf("pages stored as %s (%v)", sql.books[1].pages, err)
	}

	books, err := repo.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUser() error: %v", err)
	}
	if len(books) != 2 || books[0].ID != second.ID || books[1].ID != first.ID {
		t.Fatalf("ListByUser() order = %+v, want newest first", books)
	}
	if len(books[0].Pages) != 2 || books[0].Images[1] != "/static/c.png" || books[0].Seed != 7 {
		t.Fatalf("ListByUser() decoded %+v", books[0])
	}

	if _, err := repo.GetByID(ctx, "u2", first.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByID() for another owner = %v, want ErrNotFound", err)
	}

	deleted, err := repo.Delete(ctx, "u1", first.ID)
	if err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if deleted.ID != first.ID || deleted.Images[0] != "/static/a.png" {
		t.Fatalf("Delete() returned %+v", deleted)
	}
	if _, err := repo.Delete(ctx, "u1", first.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second Delete() = %v, want ErrNotFound", err)
	}

	removed, err := repo.DeleteAllByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("DeleteAllByUser() error: %v", err)
	}
	if len(removed) != 1 || removed[0].ID != second.ID {
		t.Fatalf("DeleteAllByUser() removed %+v", removed)
	}
	left, err := repo.ListByUser(ctx, "u2")
	if err != nil || len(left) != 1 {
		t.Fatalf("other owner's storybooks = %+v (%v), want 1", left, err)
	}
}

func TestStorybookRepositoryRejectsMisalignedBook(t *testing.T) {
	repo := NewStorybookRepository(newFakeSQL())
	err := repo.Create(context.Background(), &domain.Storybook{UserID: "u1", Pages: []string{"a", "b"}, Images: []string{"x"}})
	if err == nil {
		t.Fatalf("Create() expected error for misaligned pages/images")
	}
}
