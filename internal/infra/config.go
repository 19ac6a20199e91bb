package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Queue backends understood by LoadConfig.
const (
	QueueBackendMemory   = "memory"
	QueueBackendRedis    = "redis"
	QueueBackendPostgres = "postgres"
)

// Text providers understood by LoadConfig.
const (
	TextProviderCohere = "cohere"
	TextProviderGemini = "gemini"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	DatabaseURL    string
	DBMaxConns     int32
	JWTSecret      string
	StoragePath    string
	StorageBaseURL string
	CORSOrigins    []string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	MaxUploadBytes   int64

	SubscriptionCacheTTL time.Duration

	QueueBackend       string
	QueueName          string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	ModerationTimeout  time.Duration
	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	JobRetention       time.Duration
	WorkerMetricsAddr  string

	TextProvider    string
	ProviderTimeout time.Duration
	CohereAPIKey    string
	CohereBaseURL   string
	CohereModel     string
	GeminiAPIKey    string
	GeminiModel     string
	GeminiBaseURL   string

	StabilityAPIKey    string
	StabilityBaseURL   string
	StabilityEngine    string
	ImageRatePerSecond float64
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           port,
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DBMaxConns:     int32(getEnvInt("DB_MAX_CONNS", 10)),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		CORSOrigins:    splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 300)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 10),
		MaxUploadBytes:   int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),

		SubscriptionCacheTTL: getEnvDuration("SUBSCRIPTION_CACHE_TTL", time.Minute),

		QueueBackend:       strings.ToLower(getEnv("QUEUE_BACKEND", QueueBackendRedis)),
		QueueName:          getEnv("QUEUE_NAME", "storybookModeration"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6381"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		ModerationTimeout:  getEnvDuration("MODERATION_TIMEOUT", 30*time.Second),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 1),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", time.Second),
		JobRetention:       getEnvDuration("JOB_RETENTION", 24*time.Hour),
		WorkerMetricsAddr:  os.Getenv("WORKER_METRICS_ADDR"),

		TextProvider:    strings.ToLower(getEnv("TEXT_PROVIDER", TextProviderCohere)),
		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", 90*time.Second),
		CohereAPIKey:    getEnv("CO_API_KEY", os.Getenv("COHERE_API_KEY")),
		CohereBaseURL:   getEnv("COHERE_BASE_URL", "https://api.cohere.ai"),
		CohereModel:     getEnv("COHERE_MODEL", "command"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiBaseURL:   os.Getenv("GEMINI_BASE_URL"),

		StabilityAPIKey:    os.Getenv("STABILITY_API_KEY"),
		StabilityBaseURL:   getEnv("STABILITY_BASE_URL", "https://api.stability.ai"),
		StabilityEngine:    getEnv("STABILITY_ENGINE", "stable-diffusion-xl-1024-v1-0"),
		ImageRatePerSecond: getEnvFloat("IMAGE_RATE_PER_SECOND", 2),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	switch cfg.QueueBackend {
	case QueueBackendMemory, QueueBackendRedis, QueueBackendPostgres:
	default:
		return nil, fmt.Errorf("unsupported QUEUE_BACKEND %q", cfg.QueueBackend)
	}

	switch cfg.TextProvider {
	case TextProviderCohere, TextProviderGemini:
	default:
		return nil, fmt.Errorf("unsupported TEXT_PROVIDER %q", cfg.TextProvider)
	}

	if cfg.ModerationTimeout <= 0 {
		return nil, fmt.Errorf("MODERATION_TIMEOUT must be positive")
	}
	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("45s") or plain seconds ("45").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
