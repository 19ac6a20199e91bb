package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"draw2story/internal/infra"
)

// Pruner is implemented by backends that keep finished jobs until removed.
// Redis jobs expire on their own and need no pruning.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// RunPruner deletes finished jobs older than retention every interval until
// ctx is done. A backend that is not a Pruner returns immediately.
func RunPruner(ctx context.Context, backend Backend, retention, interval time.Duration, logger *infra.Logger) {
	p, ok := backend.(Pruner)
	if !ok || retention <= 0 {
		return
	}
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := p.Prune(ctx, time.Now().Add(-retention))
		switch {
		case err != nil && ctx.Err() == nil:
			l.Error().Err(err).Msg("queue: prune failed")
		case n > 0:
			l.Info().Int64("removed", n).Msg("queue: pruned finished jobs")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
