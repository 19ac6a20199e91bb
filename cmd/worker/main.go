package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"draw2story/internal/bootstrap"
	"draw2story/internal/infra"
	"draw2story/internal/queue"
)

const pruneInterval = time.Hour

func main() {
	cfg, logger, err := bootstrap.Load()
	if err != nil {
		panic(err)
	}
	if cfg.QueueBackend == infra.QueueBackendMemory {
		logger.Fatal().Msg("worker: QUEUE_BACKEND=memory runs workers inside the api process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: bootstrap failed")
	}
	defer deps.Close()

	if addr := cfg.WorkerMetricsAddr; addr != "" {
		metricsServer := infra.NewMetricsServer(addr, deps.Metrics.Handler(), infra.Component(logger, "metrics"))
		go func() {
			if err := metricsServer.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("worker: metrics server failed")
			}
		}()
	}

	pruneLogger := infra.Component(logger, "prune")
	go queue.RunPruner(ctx, deps.Backend, cfg.JobRetention, pruneInterval, &pruneLogger)

	logger.Info().
		Str("queue", deps.Queue.Name()).
		Str("backend", cfg.QueueBackend).
		Int("concurrency", cfg.WorkerConcurrency).
		Msg("worker: started")
	if err := deps.NewWorker().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
