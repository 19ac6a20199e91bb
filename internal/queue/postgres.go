package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"draw2story/internal/domain"
	"draw2story/internal/infra"
	"draw2story/internal/sqlinline"
)

// DefaultNotifyChannel is the LISTEN/NOTIFY channel for completions.
const DefaultNotifyChannel = "moderation_events"

// PostgresOptions configure the Postgres backend.
type PostgresOptions struct {
	// ConnString is used by the dedicated LISTEN connection.
	ConnString           string
	Channel              string
	MinReconnectInterval time.Duration
	MaxReconnectInterval time.Duration
	Logger               *infra.Logger
}

// Postgres keeps jobs in the moderation_jobs table. Workers claim with
// FOR UPDATE SKIP LOCKED and completions are announced with pg_notify.
type Postgres struct {
	sql     infra.SQLExecutor
	name    string
	conn    string
	channel string
	minWait time.Duration
	maxWait time.Duration
	logger  infra.Logger
}

func NewPostgres(sql infra.SQLExecutor, name string, opts PostgresOptions) *Postgres {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	channel := opts.Channel
	if channel == "" {
		channel = DefaultNotifyChannel
	}
	minWait := opts.MinReconnectInterval
	if minWait <= 0 {
		minWait = time.Second
	}
	maxWait := opts.MaxReconnectInterval
	if maxWait < minWait {
		maxWait = time.Minute
	}
	return &Postgres{
		sql:     sql,
		name:    name,
		conn:    opts.ConnString,
		channel: channel,
		minWait: minWait,
		maxWait: maxWait,
		logger:  logger,
	}
}

func (p *Postgres) Push(ctx context.Context, job domain.ModerationJob) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = p.sql.Exec(ctx, sqlinline.QInsertModerationJob, job.ID, p.name, payload)
	return err
}

func (p *Postgres) Claim(ctx context.Context) (domain.ModerationJob, error) {
	var (
		job     domain.ModerationJob
		payload []byte
	)
	err := p.sql.QueryRow(ctx, sqlinline.QClaimModerationJob, p.name).
		Scan(&job.ID, &job.Queue, &payload, &job.CreatedAt, &job.UpdatedAt)
	if infra.IsNoRows(err) {
		return domain.ModerationJob{}, ErrNoJob
	}
	if err != nil {
		return domain.ModerationJob{}, err
	}
	if err := json.Unmarshal(payload, &job.Payload); err != nil {
		return domain.ModerationJob{}, fmt.Errorf("decode payload: %w", err)
	}
	job.Status = domain.JobStatusActive
	return job, nil
}

func (p *Postgres) Finish(ctx context.Context, id string, status domain.JobStatus, result *domain.ModerationResult, reason string) error {
	var resultJSON []byte
	if result != nil {
		encoded, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		resultJSON = encoded
	}
	tag, err := p.sql.Exec(ctx, sqlinline.QFinishModerationJob, id, string(status), resultJSON, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := p.Lookup(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyTerminal
	}
	if _, err := p.sql.Exec(ctx, sqlinline.QNotifyModerationJob, p.channel, id); err != nil {
		// The row is already terminal; waiters pick it up on recheck.
		p.logger.Warn().Err(err).Str("job_id", id).Msg("queue: notify failed")
	}
	return nil
}

func (p *Postgres) Lookup(ctx context.Context, id string) (domain.ModerationJob, error) {
	var (
		job     domain.ModerationJob
		payload []byte
		result  []byte
		status  string
	)
	err := p.sql.QueryRow(ctx, sqlinline.QSelectModerationJob, id).
		Scan(&job.ID, &job.Queue, &payload, &status, &result, &job.Reason, &job.CreatedAt, &job.UpdatedAt)
	if infra.IsNoRows(err) {
		return domain.ModerationJob{}, ErrJobNotFound
	}
	if err != nil {
		return domain.ModerationJob{}, err
	}
	job.Status = domain.JobStatus(status)
	if err := json.Unmarshal(payload, &job.Payload); err != nil {
		return domain.ModerationJob{}, fmt.Errorf("decode payload: %w", err)
	}
	if len(result) > 0 {
		var r domain.ModerationResult
		if err := json.Unmarshal(result, &r); err != nil {
			return domain.ModerationJob{}, fmt.Errorf("decode result: %w", err)
		}
		job.Result = &r
	}
	return job, nil
}

// Events listens on the notify channel over a dedicated lib/pq connection.
// After a reconnect pq delivers a nil notification, relayed as a
// recheck-all marker.
func (p *Postgres) Events(ctx context.Context) (<-chan string, error) {
	if p.conn == "" {
		return nil, fmt.Errorf("postgres queue: connection string required for LISTEN")
	}
	listener := pq.NewListener(p.conn, p.minWait, p.maxWait, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			p.logger.Warn().Err(err).Int("event", int(ev)).Msg("queue: listener event")
		}
	})
	if err := listener.Listen(p.channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen %s: %w", p.channel, err)
	}

	out := make(chan string, 256)
	go func() {
		defer close(out)
		defer listener.Close()
		ping := time.NewTicker(90 * time.Second)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-listener.Notify:
				id := ""
				if n != nil {
					id = n.Extra
				}
				select {
				case out <- id:
				case <-ctx.Done():
					return
				}
			case <-ping.C:
				go func() { _ = listener.Ping() }()
			}
		}
	}()
	return out, nil
}

// Prune deletes terminal jobs last updated before cutoff.
func (p *Postgres) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.sql.Exec(ctx, sqlinline.QPruneModerationJobs, p.name, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Backend = (*Postgres)(nil)
