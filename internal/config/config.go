// Package config loads runtime configuration from the environment, with an
// optional .env file for development setups.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	rerr "github.com/swscloud/reviewd/internal/errors"
)

// Config is the full runtime configuration of the service.
type Config struct {
	HTTPAddr    string
	BaseURL     string
	MetricsAddr string
	LogLevel    string
	LogFormat   string

	DatabasePath string
	DBSchema     string

	StorageType     string // local | memory
	LocalStorageDir string
	SigningSecret   string
	SignedURLTTL    time.Duration

	JWTSecret        string
	JWTAccessExpire  time.Duration
	JWTRefreshExpire time.Duration

	AIAPIKey      string
	AIBaseURL     string
	AIModel       string
	AIConcurrency int

	AutoTriggerReview bool
	WorkerCount       int

	SofficePath    string
	ConvertTimeout time.Duration

	NormLibraryPath  string
	NATSURL          string
	ParseDedupWindow int
	StaleProcessing  time.Duration
}

// Load reads configuration from .env (if present) and the process
// environment, then validates it.
func Load() (*Config, error) {
	// Live environment always wins over the .env file.
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),

		DatabasePath: getEnv("DATABASE_PATH", "reviewd.db"),
		DBSchema:     getEnv("DB_SCHEMA", ""),

		StorageType:     getEnv("STORAGE_TYPE", "local"),
		LocalStorageDir: getEnv("LOCAL_STORAGE_DIR", ".reviewd/storage"),
		SigningSecret:   getEnv("SIGNING_SECRET", ""),
		SignedURLTTL:    time.Duration(getEnvInt("SIGNED_URL_TTL_SECONDS", 1800)) * time.Second,

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTAccessExpire:  time.Duration(getEnvInt("JWT_ACCESS_EXPIRE_MINUTES", 30)) * time.Minute,
		JWTRefreshExpire: time.Duration(getEnvInt("JWT_REFRESH_EXPIRE_DAYS", 7)) * 24 * time.Hour,

		AIAPIKey:      getEnv("AI_API_KEY", ""),
		AIBaseURL:     getEnv("AI_BASE_URL", "https://dashscope.aliyuncs.com/compatible-mode/v1"),
		AIModel:       getEnv("AI_MODEL", "qwen-plus"),
		AIConcurrency: getEnvInt("AI_CONCURRENCY", 3),

		AutoTriggerReview: getEnvBool("AUTO_TRIGGER_REVIEW", true),
		WorkerCount:       getEnvInt("WORKER_COUNT", 2),

		SofficePath:    getEnv("SOFFICE_PATH", "soffice"),
		ConvertTimeout: time.Duration(getEnvInt("CONVERT_TIMEOUT_SECONDS", 60)) * time.Second,

		NormLibraryPath:  getEnv("NORM_LIBRARY_PATH", ""),
		NATSURL:          getEnv("NATS_URL", ""),
		ParseDedupWindow: getEnvInt("PARSE_DEDUP_WINDOW", 15),
		StaleProcessing:  time.Duration(getEnvInt("STALE_PROCESSING_MINUTES", 120)) * time.Minute,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies before startup.
func (c *Config) Validate() error {
	switch c.StorageType {
	case "local", "memory":
	default:
		return rerr.Newf(rerr.CategoryConfig, rerr.SeverityFatal,
			"unsupported STORAGE_TYPE %q (expected local or memory)", c.StorageType)
	}
	if c.JWTSecret == "" {
		return rerr.New(rerr.CategoryConfig, rerr.SeverityFatal, "JWT_SECRET is required")
	}
	if c.SigningSecret == "" {
		// Signed artifact URLs fall back to the JWT secret.
		c.SigningSecret = c.JWTSecret
	}
	if c.WorkerCount < 1 {
		return rerr.Newf(rerr.CategoryConfig, rerr.SeverityFatal, "WORKER_COUNT must be >= 1, got %d", c.WorkerCount)
	}
	if c.AIConcurrency < 1 || c.AIConcurrency > 8 {
		return rerr.Newf(rerr.CategoryConfig, rerr.SeverityFatal, "AI_CONCURRENCY must be in 1..8, got %d", c.AIConcurrency)
	}
	if c.ParseDedupWindow < 5 {
		c.ParseDedupWindow = 5
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid integer for %s: %q, using %d\n", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}
