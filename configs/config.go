package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

func (r R2) Enabled() bool {
	return r.AccountID != "" && r.AccessKey != "" && r.SecretKey != "" && r.BucketName != ""
}

type Worker struct {
	PollInterval    time.Duration
	MaxAttempts     int
	BackoffMinutes  []int
	BatchSize       int
	ShutdownGrace   time.Duration
	StuckJobAfter   time.Duration
	PublishTimeout  time.Duration
	RefreshSchedule string
	AuditSchedule   string
}

type RateLimit struct {
	WindowMinutes int
	PerWindow     int
}

type Facebook struct {
	GraphAPIBase string
	AppID        string
	AppSecret    string
}

type Instagram struct {
	AccountID   string
	AccessToken string
}

type X struct {
	APIBase      string
	APIKey       string
	APISecret    string
	AccessToken  string
	AccessSecret string
}

type Config struct {
	DatabaseURL   string
	RedisURI      string
	HTTPAddr      string
	LogLevel      string
	LogFormat     string
	SecretKey     string
	UploadDir     string
	PublicBaseURL string
	Worker        Worker
	RateLimit     RateLimit
	Facebook      Facebook
	Instagram     Instagram
	X             X
	R2            R2
}

func LoadConfig() *Config {
	return &Config{
		DatabaseURL:   getEnv("DATABASE_URL", "sqlite:contentops.db"),
		RedisURI:      getEnv("REDIS_URI", ""),
		HTTPAddr:      getEnv("HTTP_ADDR", ":3000"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "console"),
		SecretKey:     getEnv("SECRET_KEY", ""),
		UploadDir:     getEnv("UPLOAD_DIR", "public/uploads"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		Worker: Worker{
			PollInterval:    getEnvMillis("WORKER_POLL_INTERVAL_MS", 30000),
			MaxAttempts:     getEnvInt("WORKER_MAX_ATTEMPTS", 3),
			BackoffMinutes:  getEnvIntList("WORKER_BACKOFF_MINUTES", []int{1, 5, 15}),
			BatchSize:       getEnvInt("WORKER_BATCH_SIZE", 10),
			ShutdownGrace:   getEnvMillis("SHUTDOWN_GRACE_MS", 30000),
			StuckJobAfter:   time.Duration(getEnvInt("STUCK_JOB_THRESHOLD_MINUTES", 15)) * time.Minute,
			PublishTimeout:  getEnvMillis("HTTP_TIMEOUT_MS", 60000),
			RefreshSchedule: getEnv("TOKEN_REFRESH_SCHEDULE", "@every 10m"),
			AuditSchedule:   getEnv("STUCK_JOB_AUDIT_SCHEDULE", "@every 5m"),
		},
		RateLimit: RateLimit{
			WindowMinutes: getEnvInt("RATE_LIMIT_WINDOW_MINUTES", 60),
			PerWindow:     getEnvInt("RATE_LIMIT_PER_WINDOW", 200),
		},
		Facebook: Facebook{
			GraphAPIBase: getEnv("FACEBOOK_GRAPH_API_BASE", "https://graph.facebook.com/v19.0"),
			AppID:        getEnv("FACEBOOK_APP_ID", ""),
			AppSecret:    getEnv("FACEBOOK_APP_SECRET", ""),
		},
		Instagram: Instagram{
			AccountID: getEnv("INSTAGRAM_ACCOUNT_ID", ""),
			// the page token works for the linked business account too
			AccessToken: getEnv("INSTAGRAM_ACCESS_TOKEN", getEnv("FACEBOOK_PAGE_ACCESS_TOKEN", "")),
		},
		X: X{
			APIBase:      getEnv("X_API_BASE", "https://api.x.com/2"),
			APIKey:       getEnv("X_API_KEY", ""),
			APISecret:    getEnv("X_API_SECRET", ""),
			AccessToken:  getEnv("X_ACCESS_TOKEN", ""),
			AccessSecret: getEnv("X_ACCESS_SECRET", ""),
		},
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
	}
}

// Validate reports settings the worker cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Worker.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.Worker.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts must be at least 1, got %d", c.Worker.MaxAttempts))
	}
	if c.Worker.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch size must be at least 1, got %d", c.Worker.BatchSize))
	}
	if len(c.Worker.BackoffMinutes) == 0 {
		errs = append(errs, errors.New("backoff table is empty"))
	}
	for _, m := range c.Worker.BackoffMinutes {
		if m <= 0 {
			errs = append(errs, fmt.Errorf("backoff entries must be positive, got %d", m))
			break
		}
	}
	if c.RateLimit.WindowMinutes < 1 {
		errs = append(errs, fmt.Errorf("rate limit window must be at least 1 minute, got %d", c.RateLimit.WindowMinutes))
	}
	if n := len(c.SecretKey); n != 0 && n != 16 && n != 24 && n != 32 {
		errs = append(errs, fmt.Errorf("SECRET_KEY must be 16, 24 or 32 bytes, got %d", n))
	}
	if c.R2.Enabled() && c.R2.PublicURL == "" {
		errs = append(errs, errors.New("R2_PUBLIC_URL is required when R2 uploads are configured"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvMillis(key string, defaultMillis int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMillis)) * time.Millisecond
}

// getEnvIntList parses "1,5,15". Any unparsable entry falls back to the default list.
func getEnvIntList(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return defaultValue
		}
		out = append(out, n)
	}
	return out
}
