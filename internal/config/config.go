/**
 * Configuration for ScaleOCR Worker
 *
 * Loads configuration from environment variables matching .env.scaleocr
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Queue backends
const (
	QueueBackendRedis = "redis"
	QueueBackendAsynq = "asynq"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration (job queue + result cache)
	RedisURL string

	// PostgreSQL configuration
	DatabaseURL string

	// Queue configuration
	QueueBackend string
	QueueName    string

	// Worker configuration
	WorkerConcurrency int
	MaxFileSize       int64
	ProcessingTimeout int // milliseconds, whole job
	EngineTimeout     int // milliseconds, single recognition call

	// Tesseract configuration
	TessdataPrefix    string
	TesseractLanguage string
	SerializeEngine   bool

	// Temporary directory for per-call engine config files
	TempDir string

	// Result cache TTL in seconds (0 disables caching)
	ResultCacheTTL int

	// Artifact service for archiving uploaded images (optional)
	ArtifactAPIURL string

	LogLevel string

	// Node environment
	NodeEnv string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:          getEnvOrDefault("REDIS_URL", "redis://nexus-redis:6379"),
		DatabaseURL:       getEnvOrDefault("DATABASE_URL", ""),
		QueueBackend:      strings.ToLower(getEnvOrDefault("QUEUE_BACKEND", QueueBackendRedis)),
		QueueName:         getEnvOrDefault("QUEUE_NAME", "scaleocr:jobs"),
		WorkerConcurrency: getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		MaxFileSize:       getEnvAsInt64OrDefault("MAX_FILE_SIZE", 20971520), // 20MB
		ProcessingTimeout: getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 120000), // 2 minutes
		EngineTimeout:     getEnvAsIntOrDefault("ENGINE_TIMEOUT", 15000),      // 15 seconds
		TessdataPrefix:    getEnvOrDefault("TESSDATA_PREFIX", ""),
		TesseractLanguage: getEnvOrDefault("TESSERACT_LANGUAGE", "eng"),
		SerializeEngine:   getEnvAsBoolOrDefault("SERIALIZE_ENGINE", false),
		TempDir:           getEnvOrDefault("TEMP_DIR", os.TempDir()),
		ResultCacheTTL:    getEnvAsIntOrDefault("RESULT_CACHE_TTL", 86400),
		ArtifactAPIURL:    getEnvOrDefault("ARTIFACT_API_URL", ""),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		NodeEnv:           getEnvOrDefault("NODE_ENV", "development"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.QueueBackend != QueueBackendRedis && c.QueueBackend != QueueBackendAsynq {
		return fmt.Errorf("QUEUE_BACKEND must be %q or %q, got %q", QueueBackendRedis, QueueBackendAsynq, c.QueueBackend)
	}

	if c.QueueName == "" {
		return fmt.Errorf("QUEUE_NAME is required")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.MaxFileSize < 1024 || c.MaxFileSize > 52428800 { // 1KB to 50MB
		return fmt.Errorf("MAX_FILE_SIZE must be between 1KB and 50MB, got %d", c.MaxFileSize)
	}

	if c.ProcessingTimeout < 1000 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be at least 1000ms, got %d", c.ProcessingTimeout)
	}

	if c.EngineTimeout < 100 || c.EngineTimeout > c.ProcessingTimeout {
		return fmt.Errorf("ENGINE_TIMEOUT must be between 100ms and PROCESSING_TIMEOUT, got %d", c.EngineTimeout)
	}

	if c.ResultCacheTTL < 0 {
		return fmt.Errorf("RESULT_CACHE_TTL must not be negative, got %d", c.ResultCacheTTL)
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
