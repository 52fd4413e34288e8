package config

import (
	"os"
	"strconv"
	"strings"
)

// Config centralizes runtime settings for the API and the scrape workers.
type Config struct {
	Port string

	AuthToken string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string
	RedisDLQ      string
	RedisRetrySet string
	RedisGroup    string

	// BrowserWSURL is the remote browser pool endpoint, credentials included.
	// Treated as a secret: only the redacted form may reach logs.
	BrowserWSURL            string
	BrowserAcquireTimeoutMS int

	NavTimeoutMS    int
	MarkerTimeoutMS int

	WorkerEnabled     bool
	WorkerConcurrency int

	QueueMaxAttempts   int
	QueueBackoffBaseMS int

	SyntheticFallback bool

	FanoutSeenTTLSeconds int
	FanoutSeenMaxEntries int

	RateLimitRPS   float64
	RateLimitBurst int

	CORSAllowedOrigins []string
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		AuthToken: getEnv("API_AUTH_TOKEN", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisStream:   getEnv("REDIS_STREAM", "scrape_jobs"),
		RedisDLQ:      getEnv("REDIS_DLQ_STREAM", "scrape_jobs_dlq"),
		RedisRetrySet: getEnv("REDIS_RETRY_SET", "scrape_jobs_retry"),
		RedisGroup:    getEnv("REDIS_GROUP", "scrape_workers"),

		BrowserWSURL:            getEnv("BROWSER_WS_URL", ""),
		BrowserAcquireTimeoutMS: getEnvInt("BROWSER_ACQUIRE_TIMEOUT_MS", 15000),

		NavTimeoutMS:    getEnvInt("SCRAPE_NAV_TIMEOUT_MS", 45000),
		MarkerTimeoutMS: getEnvInt("SCRAPE_MARKER_TIMEOUT_MS", 30000),

		WorkerEnabled:     getEnvBool("WORKER_ENABLED", true),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 10),

		QueueMaxAttempts:   getEnvInt("QUEUE_MAX_ATTEMPTS", 2),
		QueueBackoffBaseMS: getEnvInt("QUEUE_BACKOFF_BASE_MS", 5000),

		SyntheticFallback: getEnvBool("SCRAPE_SYNTHETIC_FALLBACK", false),

		FanoutSeenTTLSeconds: getEnvInt("FANOUT_SEEN_TTL_SECONDS", 900),
		FanoutSeenMaxEntries: getEnvInt("FANOUT_SEEN_MAX_ENTRIES", 4000),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
