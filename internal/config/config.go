package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string
	LogLevel string

	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	QueueName        string
	PartnerQueueName string

	// Collaborator service base URLs. An empty URL disables the
	// subsystem's pipeline step; the identity service is mandatory.
	IdentityURL    string
	EnrollmentsURL string
	CredentialsURL string
	EcommerceURL   string
	ForumsURL      string
	NotesURL       string
	EmailListsURL  string

	WorkerConcurrency int
	LeaseFor          time.Duration
	StallAfter        time.Duration

	RetryMaxAttempts       int
	RetryInitialDelay      time.Duration
	RetryBackoffMultiplier float64
	RetryMaxDelay          time.Duration
	RetryJitter            float64

	RetiredUserSalt string

	TracingEnabled  bool
	TracingExporter string
}

type Error struct {
	Issues []string
}

func (e *Error) Error() string {
	return "invalid config: " + strings.Join(e.Issues, "; ")
}

func Load() (Config, error) {
	var issues []string

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		issues = append(issues, err.Error())
	}
	workerConcurrency, err := getEnvInt("WORKER_CONCURRENCY", 4)
	if err != nil {
		issues = append(issues, err.Error())
	}
	leaseSeconds, err := getEnvInt("LEASE_SECONDS", 60)
	if err != nil {
		issues = append(issues, err.Error())
	}
	stallMinutes, err := getEnvInt("STALL_AFTER_MINUTES", 30)
	if err != nil {
		issues = append(issues, err.Error())
	}
	retryMaxAttempts, err := getEnvInt("RETRY_MAX_ATTEMPTS", 5)
	if err != nil {
		issues = append(issues, err.Error())
	}
	retryInitialDelayMs, err := getEnvInt("RETRY_INITIAL_DELAY_MS", 1000)
	if err != nil {
		issues = append(issues, err.Error())
	}
	retryBackoff, err := getEnvFloat("RETRY_BACKOFF_MULTIPLIER", 2.0)
	if err != nil {
		issues = append(issues, err.Error())
	}
	retryMaxDelayMs, err := getEnvInt("RETRY_MAX_DELAY_MS", 60000)
	if err != nil {
		issues = append(issues, err.Error())
	}
	retryJitter, err := getEnvFloat("RETRY_JITTER", 0.25)
	if err != nil {
		issues = append(issues, err.Error())
	}
	tracingEnabled, err := getEnvBool("TRACING_ENABLED", false)
	if err != nil {
		issues = append(issues, err.Error())
	}

	cfg := Config{
		HTTPAddr:               getEnv("HTTP_ADDR", ":8080"),
		LogLevel:               strings.ToLower(getEnv("LOG_LEVEL", "info")),
		PostgresDSN:            strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
		RedisAddr:              getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		RedisDB:                redisDB,
		QueueName:              getEnv("QUEUE_NAME", "retirements:ready"),
		PartnerQueueName:       getEnv("PARTNER_QUEUE_NAME", "retirements:partner"),
		IdentityURL:            strings.TrimSpace(os.Getenv("IDENTITY_URL")),
		EnrollmentsURL:         strings.TrimSpace(os.Getenv("ENROLLMENTS_URL")),
		CredentialsURL:         strings.TrimSpace(os.Getenv("CREDENTIALS_URL")),
		EcommerceURL:           strings.TrimSpace(os.Getenv("ECOMMERCE_URL")),
		ForumsURL:              strings.TrimSpace(os.Getenv("FORUMS_URL")),
		NotesURL:               strings.TrimSpace(os.Getenv("NOTES_URL")),
		EmailListsURL:          strings.TrimSpace(os.Getenv("EMAIL_LISTS_URL")),
		WorkerConcurrency:      workerConcurrency,
		LeaseFor:               time.Duration(leaseSeconds) * time.Second,
		StallAfter:             time.Duration(stallMinutes) * time.Minute,
		RetryMaxAttempts:       retryMaxAttempts,
		RetryInitialDelay:      time.Duration(retryInitialDelayMs) * time.Millisecond,
		RetryBackoffMultiplier: retryBackoff,
		RetryMaxDelay:          time.Duration(retryMaxDelayMs) * time.Millisecond,
		RetryJitter:            retryJitter,
		RetiredUserSalt:        strings.TrimSpace(os.Getenv("RETIRED_USER_SALT")),
		TracingEnabled:         tracingEnabled,
		TracingExporter:        strings.ToLower(getEnv("TRACING_EXPORTER", "stdout")),
	}

	if cfg.PostgresDSN == "" {
		issues = append(issues, "POSTGRES_DSN is required")
	}
	if cfg.RetiredUserSalt == "" {
		issues = append(issues, "RETIRED_USER_SALT is required")
	}
	if cfg.HTTPAddr == "" {
		issues = append(issues, "HTTP_ADDR must not be empty")
	}
	if cfg.RedisAddr == "" {
		issues = append(issues, "REDIS_ADDR must not be empty")
	}
	if cfg.QueueName == "" {
		issues = append(issues, "QUEUE_NAME must not be empty")
	}
	if cfg.PartnerQueueName == "" {
		issues = append(issues, "PARTNER_QUEUE_NAME must not be empty")
	}
	if cfg.IdentityURL == "" {
		issues = append(issues, "IDENTITY_URL is required")
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" && cfg.LogLevel != "error" {
		issues = append(issues, fmt.Sprintf("LOG_LEVEL must be one of debug, info, warn, error (got %q)", cfg.LogLevel))
	}
	if cfg.RedisDB < 0 {
		issues = append(issues, "REDIS_DB must be >= 0")
	}
	if cfg.WorkerConcurrency <= 0 {
		issues = append(issues, "WORKER_CONCURRENCY must be >= 1")
	}
	if leaseSeconds <= 0 {
		issues = append(issues, "LEASE_SECONDS must be >= 1")
	}
	if stallMinutes <= 0 {
		issues = append(issues, "STALL_AFTER_MINUTES must be >= 1")
	}
	if cfg.RetryMaxAttempts < 1 {
		issues = append(issues, "RETRY_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.RetryBackoffMultiplier < 1 {
		issues = append(issues, "RETRY_BACKOFF_MULTIPLIER must be >= 1")
	}
	if cfg.RetryMaxDelay < cfg.RetryInitialDelay {
		issues = append(issues, "RETRY_MAX_DELAY_MS must be >= RETRY_INITIAL_DELAY_MS")
	}
	if cfg.RetryJitter < 0 || cfg.RetryJitter > 1 {
		issues = append(issues, "RETRY_JITTER must be between 0 and 1")
	}
	if cfg.TracingExporter != "stdout" && cfg.TracingExporter != "none" {
		issues = append(issues, fmt.Sprintf("TRACING_EXPORTER must be stdout or none (got %q)", cfg.TracingExporter))
	}
	if len(issues) > 0 {
		return Config{}, &Error{Issues: issues}
	}

	return cfg, nil
}

// SlogLevel maps the validated LOG_LEVEL value to its slog level.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer (got %q)", key, v)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number (got %q)", key, v)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s must be a valid boolean (true/false, 1/0, yes/no; got %q)", key, v)
	}
}
