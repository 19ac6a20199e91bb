package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"draw2story/internal/infra"
	"draw2story/internal/queue"
)

func TestLoad(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("QUEUE_BACKEND", "memory")

	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.QueueBackend != infra.QueueBackendMemory {
		t.Fatalf("QueueBackend = %q, want memory", cfg.QueueBackend)
	}
}

func TestOpenQueueSelectsBackend(t *testing.T) {
	d := &Deps{
		Config: &infra.Config{
			QueueBackend:      infra.QueueBackendMemory,
			QueueName:         "moderation-test",
			ModerationTimeout: time.Second,
		},
		Logger: zerolog.Nop(),
	}
	if err := d.openQueue(context.Background()); err != nil {
		t.Fatalf("openQueue() error = %v", err)
	}
	if _, ok := d.Backend.(*queue.Memory); !ok {
		t.Fatalf("Backend = %T, want *queue.Memory", d.Backend)
	}
	if got := d.Queue.Name(); got != "moderation-test" {
		t.Fatalf("Queue.Name() = %q, want moderation-test", got)
	}

	d.Config.QueueBackend = "kafka"
	if err := d.openQueue(context.Background()); err == nil {
		t.Fatalf("openQueue() expected error for unsupported backend")
	}
}
