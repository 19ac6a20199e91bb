package queue

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"draw2story/internal/domain"
	"draw2story/internal/sqlinline"
)

type scriptedRow struct {
	values []any
	err    error
}

func (r scriptedRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("scan: column count mismatch")
	}
	for i, v := range r.values {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

type scriptedSQL struct {
	execTags map[string]string
	rows     map[string]scriptedRow
	execs    []string
	execArgs [][]any
}

func (s *scriptedSQL) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, query)
	s.execArgs = append(s.execArgs, args)
	return pgconn.NewCommandTag(s.execTags[query]), nil
}

func (s *scriptedSQL) QueryRow(_ context.Context, query string, _ ...any) pgx.Row {
	if row, ok := s.rows[query]; ok {
		return row
	}
	return scriptedRow{err: pgx.ErrNoRows}
}

func (s *scriptedSQL) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func TestPostgresClaimEmpty(t *testing.T) {
	backend := NewPostgres(&scriptedSQL{}, "storybookModeration", PostgresOptions{})
	_, err := backend.Claim(context.Background())
	require.ErrorIs(t, err, ErrNoJob)
}

func TestPostgresClaimDecodesPayload(t *testing.T) {
	now := time.Now().UTC()
	payload, _ := json.Marshal(domain.ModerationPayload{Title: "Fox", Prompt: "a clever fox"})
	sql := &scriptedSQL{rows: map[string]scriptedRow{
		sqlinline.QClaimModerationJob: {values: []any{"job-1", "storybookModeration", payload, now, now}},
	}}
	backend := NewPostgres(sql, "storybookModeration", PostgresOptions{})

	job, err := backend.Claim(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, domain.JobStatusActive, job.Status)
	assert.Equal(t, "Fox", job.Payload.Title)
}

func TestPostgresFinishNotifies(t *testing.T) {
	sql := &scriptedSQL{execTags: map[string]string{sqlinline.QFinishModerationJob: "UPDATE 1"}}
	backend := NewPostgres(sql, "storybookModeration", PostgresOptions{})

	err := backend.Finish(context.Background(), "job-1", domain.JobStatusCompleted, &domain.ModerationResult{Allowed: true}, "")
	require.NoError(t, err)
	require.Len(t, sql.execs, 2)
	assert.True(t, strings.Contains(sql.execs[1], "pg_notify"))
	assert.Equal(t, []any{DefaultNotifyChannel, "job-1"}, sql.execArgs[1])
}

func TestPostgresFinishTerminalAndMissing(t *testing.T) {
	now := time.Now().UTC()
	payload := []byte(`{"title":"t","prompt":"p"}`)
	result := []byte(`{"allowed":true}`)
	sql := &scriptedSQL{
		execTags: map[string]string{sqlinline.QFinishModerationJob: "UPDATE 0"},
		rows: map[string]scriptedRow{
			sqlinline.QSelectModerationJob: {values: []any{"job-1", "storybookModeration", payload, "completed", result, "", now, now}},
		},
	}
	backend := NewPostgres(sql, "storybookModeration", PostgresOptions{})

	err := backend.Finish(context.Background(), "job-1", domain.JobStatusFailed, nil, "late")
	require.ErrorIs(t, err, ErrAlreadyTerminal)

	delete(sql.rows, sqlinline.QSelectModerationJob)
	err = backend.Finish(context.Background(), "job-2", domain.JobStatusFailed, nil, "late")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestPostgresEventsRequiresConnString(t *testing.T) {
	backend := NewPostgres(&scriptedSQL{}, "storybookModeration", PostgresOptions{})
	_, err := backend.Events(context.Background())
	require.Error(t, err)
}
