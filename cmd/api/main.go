package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"draw2story/internal/bootstrap"
	"draw2story/internal/http/handlers"
	"draw2story/internal/http/httpapi"
	"draw2story/internal/infra"
	"draw2story/internal/middleware"
	"draw2story/internal/queue"
)

func main() {
	cfg, logger, err := bootstrap.Load()
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: bootstrap failed")
	}
	defer deps.Close()

	service, err := deps.StorybookService(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: storybook service")
	}

	// Await relies on completion events, so dispatch starts before serving.
	if err := deps.Queue.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("api: queue events")
	}
	// The memory backend lives in this process, so its workers must too.
	if cfg.QueueBackend == infra.QueueBackendMemory {
		worker := deps.NewWorker()
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("api: in-process worker stopped")
			}
		}()
		pruneLogger := infra.Component(logger, "prune")
		go queue.RunPruner(ctx, deps.Backend, cfg.JobRetention, time.Hour, &pruneLogger)
		logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("api: running moderation workers in-process")
	}

	app := &handlers.App{
		Config:     cfg,
		Logger:     logger,
		Storybooks: service,
		Users:      deps.Users,
		Files:      deps.Files,
		DB:         deps.SQL,
	}
	gateLogger := infra.Component(logger, "subscription")
	router := httpapi.NewRouter(app, httpapi.Options{
		Metrics:       deps.Metrics,
		Subscriptions: middleware.NewSubscriptionGate(deps.Users, cfg.SubscriptionCacheTTL, &gateLogger),
		StaticDir:     deps.Files.BasePath(),
	})

	serverLogger := infra.Component(logger, "http")
	server := infra.NewHTTPServer(cfg, router, serverLogger)
	logger.Info().Str("queue", cfg.QueueBackend).Msgf("API listening on %s", server.Addr())
	if err := server.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("api: http server failed")
	}
	logger.Info().Msg("server stopped")
}
