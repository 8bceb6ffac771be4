package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Storage
	DataDir string

	// Auth: HS256 secret for bearer tokens.
	AuthSecret string

	// Upload limits
	MaxUploadBytes int64

	// Orphan blob sweeping; zero disables it.
	SweepInterval time.Duration

	// Logging: "json" or "text".
	LogFormat string
	LogLevel  string

	// Per-owner rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitBurst    int

	// HTTP
	RequestTimeout time.Duration

	// PDF
	PDFFallbackPdftotext bool
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		DataDir: envOr("DATA_DIR", "./data"),

		AuthSecret: os.Getenv("AUTH_SECRET"),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		SweepInterval: envDuration("SWEEP_INTERVAL", 15*time.Minute),

		LogFormat: envOr("LOG_FORMAT", "json"),
		LogLevel:  envOr("LOG_LEVEL", "info"),

		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   envDuration("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitBurst:    envInt("RATE_LIMIT_BURST", 30),

		RequestTimeout: envDuration("REQUEST_TIMEOUT", 30*time.Second),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.RateLimitRequests <= 0 {
		cfg.RateLimitRequests = 120
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 30
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	return cfg
}

func (c Config) Validate() error {
	if c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required")
	}
	if len(c.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 bytes")
	}
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
