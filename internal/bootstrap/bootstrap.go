// Package bootstrap wires the shared dependencies of the api and worker
// binaries from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"draw2story/internal/adapter/repo"
	"draw2story/internal/illustration"
	"draw2story/internal/infra"
	"draw2story/internal/infra/credentials"
	"draw2story/internal/metrics"
	"draw2story/internal/moderation"
	"draw2story/internal/providers/cohere"
	"draw2story/internal/providers/gemini"
	"draw2story/internal/providers/stability"
	"draw2story/internal/queue"
	"draw2story/internal/storage"
	"draw2story/internal/story"
	"draw2story/internal/storybook"
)

// Load reads an optional .env file, then the environment.
func Load() (*infra.Config, infra.Logger, error) {
	_ = godotenv.Load()
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, infra.Logger{}, err
	}
	return cfg, infra.NewLogger(cfg.AppEnv), nil
}

// Deps holds the connections and stores shared by every binary.
type Deps struct {
	Config     *infra.Config
	Logger     infra.Logger
	Pool       *pgxpool.Pool
	SQL        *infra.SQLRunner
	Redis      *redis.Client
	Metrics    *metrics.Metrics
	Backend    queue.Backend
	Queue      *queue.Queue
	Users      *repo.UserRepositoryPG
	Storybooks *repo.StorybookRepositoryPG
	Files      *storage.FileStore

	// Credentials supplies provider keys missing from the environment.
	Credentials *credentials.Store

	cohere *cohere.Client
}

// Open connects to the database, the queue backend and file storage.
func Open(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Deps, error) {
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d := &Deps{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		SQL:     infra.NewSQLRunner(pool, logger),
		Metrics: metrics.New(),
	}
	d.Users = repo.NewUserRepository(d.SQL)
	d.Storybooks = repo.NewStorybookRepository(d.SQL)
	d.Credentials = credentials.NewStore(d.SQL)

	d.Files, err = storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		d.Close()
		return nil, err
	}

	if err := d.openQueue(ctx); err != nil {
		d.Close()
		return nil, err
	}

	d.cohere, err = cohere.NewClient(cohere.Options{
		APIKey:         d.apiKey(ctx, credentials.ProviderCohere, cfg.CohereAPIKey),
		BaseURL:        cfg.CohereBaseURL,
		Model:          cfg.CohereModel,
		RequestTimeout: cfg.ProviderTimeout,
		Logger:         &d.Logger,
	})
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("bootstrap: cohere client: %w", err)
	}
	if !d.cohere.HasCredentials() {
		logger.Warn().Msg("bootstrap: no cohere api key configured, moderation and cohere text calls will fail")
	}
	return d, nil
}

func (d *Deps) openQueue(ctx context.Context) error {
	cfg := d.Config
	queueLogger := infra.Component(d.Logger, "queue")
	switch cfg.QueueBackend {
	case infra.QueueBackendMemory:
		d.Backend = queue.NewMemory()
	case infra.QueueBackendRedis:
		client, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return err
		}
		d.Redis = client
		d.Backend = queue.NewRedis(client, cfg.QueueName, queue.RedisOptions{Logger: &queueLogger})
	case infra.QueueBackendPostgres:
		d.Backend = queue.NewPostgres(d.SQL, cfg.QueueName, queue.PostgresOptions{
			ConnString: cfg.DatabaseURL,
			Logger:     &queueLogger,
		})
	default:
		return fmt.Errorf("bootstrap: unsupported queue backend %q", cfg.QueueBackend)
	}
	d.Queue = queue.New(d.Backend, queue.Options{
		Name:         cfg.QueueName,
		AwaitTimeout: cfg.ModerationTimeout,
		Logger:       &queueLogger,
		Metrics:      d.Metrics,
	})
	return nil
}

// apiKey returns the configured key, falling back to the credentials table.
func (d *Deps) apiKey(ctx context.Context, provider, fromEnv string) string {
	key, err := d.Credentials.Resolve(ctx, provider, fromEnv)
	if err != nil {
		d.Logger.Warn().Err(err).Str("provider", provider).Msg("bootstrap: stored api key unavailable")
		return fromEnv
	}
	return key
}

// Close releases every connection opened by Open.
func (d *Deps) Close() {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Warn().Err(err).Msg("bootstrap: close redis")
		}
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
}

// Classifier returns the moderation classifier used by queue workers.
func (d *Deps) Classifier() *moderation.CohereClassifier {
	return moderation.NewCohereClassifier(d.cohere, d.Config.CohereModel, d.Logger)
}

// NewWorker builds a moderation worker over the shared queue.
func (d *Deps) NewWorker() *queue.Worker {
	logger := infra.Component(d.Logger, "worker")
	return queue.NewWorker(d.Queue, d.Classifier(), queue.WorkerOptions{
		Concurrency:  d.Config.WorkerConcurrency,
		PollInterval: d.Config.WorkerPollInterval,
		Logger:       &logger,
		Metrics:      d.Metrics,
	})
}

// TextProvider returns the story text backend selected by TEXT_PROVIDER.
func (d *Deps) TextProvider(ctx context.Context) (story.TextProvider, error) {
	switch d.Config.TextProvider {
	case infra.TextProviderCohere:
		return d.cohere, nil
	case infra.TextProviderGemini:
		client, err := gemini.NewClient(ctx, gemini.Options{
			APIKey:         d.apiKey(ctx, credentials.ProviderGemini, d.Config.GeminiAPIKey),
			BaseURL:        d.Config.GeminiBaseURL,
			Model:          d.Config.GeminiModel,
			RequestTimeout: d.Config.ProviderTimeout,
			Logger:         &d.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		return client, nil
	default:
		return nil, errors.New("bootstrap: no text provider configured")
	}
}

// StorybookService assembles the generation pipeline.
func (d *Deps) StorybookService(ctx context.Context) (*storybook.Service, error) {
	text, err := d.TextProvider(ctx)
	if err != nil {
		return nil, err
	}
	storyLogger := infra.Component(d.Logger, "story")
	writer := story.NewGenerator(text, &storyLogger)

	images, err := stability.NewClient(stability.Options{
		APIKey:     d.apiKey(ctx, credentials.ProviderStability, d.Config.StabilityAPIKey),
		BaseURL:    d.Config.StabilityBaseURL,
		Engine:     d.Config.StabilityEngine,
		HTTPClient: &http.Client{Timeout: d.Config.ProviderTimeout},
		Logger:     &d.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: stability client: %w", err)
	}
	if !images.HasCredentials() {
		d.Logger.Warn().Msg("bootstrap: no stability api key configured, illustration calls will fail")
	}
	illustrationLogger := infra.Component(d.Logger, "illustration")
	illustrator := illustration.NewGenerator(images, d.Files, illustration.Options{
		Limiter: illustration.NewLimiter(d.Config.ImageRatePerSecond),
		Logger:  &illustrationLogger,
	})

	serviceLogger := infra.Component(d.Logger, "storybook")
	return storybook.NewService(d.Queue, writer, illustrator, d.Storybooks, d.Files, storybook.Options{
		MaxUploadBytes: d.Config.MaxUploadBytes,
		Logger:         &serviceLogger,
		Metrics:        d.Metrics,
	}), nil
}
