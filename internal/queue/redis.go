package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"draw2story/internal/domain"
	"draw2story/internal/infra"
)

// RedisOptions configure the Redis backend.
type RedisOptions struct {
	// Prefix namespaces every key; defaults to "queue".
	Prefix string
	// TTL bounds how long finished job hashes are retained.
	TTL time.Duration
	// BlockTimeout is how long Claim blocks waiting for work.
	BlockTimeout time.Duration
	Logger       *infra.Logger
}

// Redis stores each job in a hash and moves ids from a pending list to a
// processing list with BRPOPLPUSH, so a job is claimed by one worker only.
// Completions are announced on a pub/sub channel.
type Redis struct {
	rdb    redis.UniversalClient
	name   string
	prefix string
	ttl    time.Duration
	block  time.Duration
	logger infra.Logger
}

func NewRedis(rdb redis.UniversalClient, name string, opts RedisOptions) *Redis {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "queue"
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	block := opts.BlockTimeout
	if block <= 0 {
		block = time.Second
	}
	return &Redis{rdb: rdb, name: name, prefix: prefix, ttl: ttl, block: block, logger: logger}
}

func (r *Redis) pendingKey() string    { return fmt.Sprintf("%s:%s:pending", r.prefix, r.name) }
func (r *Redis) processingKey() string { return fmt.Sprintf("%s:%s:processing", r.prefix, r.name) }
func (r *Redis) eventsKey() string     { return fmt.Sprintf("%s:%s:events", r.prefix, r.name) }
func (r *Redis) jobKey(id string) string {
	return fmt.Sprintf("%s:%s:job:%s", r.prefix, r.name, id)
}

func (r *Redis) Push(ctx context.Context, job domain.ModerationJob) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	key := r.jobKey(job.ID)
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			"id", job.ID,
			"queue", r.name,
			"payload", payload,
			"status", string(job.Status),
			"created_at", job.CreatedAt.Format(time.RFC3339Nano),
			"updated_at", job.UpdatedAt.Format(time.RFC3339Nano),
		)
		p.Expire(ctx, key, r.ttl)
		p.LPush(ctx, r.pendingKey(), job.ID)
		return nil
	})
	return err
}

func (r *Redis) Claim(ctx context.Context) (domain.ModerationJob, error) {
	id, err := r.rdb.BRPopLPush(ctx, r.pendingKey(), r.processingKey(), r.block).Result()
	if errors.Is(err, redis.Nil) {
		return domain.ModerationJob{}, ErrNoJob
	}
	if err != nil {
		return domain.ModerationJob{}, err
	}

	key := r.jobKey(id)
	now := time.Now().UTC()
	if err := r.rdb.HSet(ctx, key, "status", string(domain.JobStatusActive), "updated_at", now.Format(time.RFC3339Nano)).Err(); err != nil {
		return domain.ModerationJob{}, err
	}
	job, err := r.Lookup(ctx, id)
	if errors.Is(err, ErrJobNotFound) || (err == nil && job.ID == "") {
		// The hash expired while the id sat in the list.
		r.logger.Warn().Str("job_id", id).Msg("queue: dropping claimed job without data")
		r.rdb.LRem(ctx, r.processingKey(), 1, id)
		r.rdb.Del(ctx, key)
		return domain.ModerationJob{}, ErrNoJob
	}
	return job, err
}

func (r *Redis) Finish(ctx context.Context, id string, status domain.JobStatus, result *domain.ModerationResult, reason string) error {
	var resultJSON []byte
	if result != nil {
		encoded, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		resultJSON = encoded
	}
	key := r.jobKey(id)
	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "status").Result()
		if errors.Is(err, redis.Nil) {
			return ErrJobNotFound
		}
		if err != nil {
			return err
		}
		if domain.JobStatus(current).Terminal() {
			return ErrAlreadyTerminal
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key,
				"status", string(status),
				"result", resultJSON,
				"reason", reason,
				"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
			)
			p.Expire(ctx, key, r.ttl)
			p.LRem(ctx, r.processingKey(), 1, id)
			p.Publish(ctx, r.eventsKey(), id)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < 5; attempt++ {
		err := r.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("finish %s: %w", id, redis.TxFailedErr)
}

func (r *Redis) Lookup(ctx context.Context, id string) (domain.ModerationJob, error) {
	fields, err := r.rdb.HGetAll(ctx, r.jobKey(id)).Result()
	if err != nil {
		return domain.ModerationJob{}, err
	}
	if len(fields) == 0 {
		return domain.ModerationJob{}, ErrJobNotFound
	}
	return decodeJobHash(fields)
}

// Events relays pub/sub completions. go-redis reconnects the subscription on
// its own; messages published while disconnected are covered by Await's
// periodic recheck.
func (r *Redis) Events(ctx context.Context) (<-chan string, error) {
	sub := r.rdb.Subscribe(ctx, r.eventsKey())
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.eventsKey(), err)
	}
	out := make(chan string, 256)
	go func() {
		defer close(out)
		defer sub.Close()
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func decodeJobHash(fields map[string]string) (domain.ModerationJob, error) {
	job := domain.ModerationJob{
		ID:     fields["id"],
		Queue:  fields["queue"],
		Status: domain.JobStatus(fields["status"]),
		Reason: fields["reason"],
	}
	if raw := fields["payload"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &job.Payload); err != nil {
			return domain.ModerationJob{}, fmt.Errorf("decode payload: %w", err)
		}
	}
	if raw := fields["result"]; raw != "" {
		var result domain.ModerationResult
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			return domain.ModerationJob{}, fmt.Errorf("decode result: %w", err)
		}
		job.Result = &result
	}
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields["created_at"])
	job.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updated_at"])
	return job, nil
}

var _ Backend = (*Redis)(nil)
