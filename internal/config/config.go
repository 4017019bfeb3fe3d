// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Document store settings
	FirebaseProjectID       string
	FirebaseCredentialsJSON string
	CacheTTL                time.Duration

	// Model provider settings
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	AnthropicAPIKey string
	DefaultProvider string

	// Streaming
	StreamTimeout time.Duration

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 180*time.Second),

		// Document store
		FirebaseProjectID:       getEnv("GOOGLE_FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsJSON: getEnv("GOOGLE_FIREBASE_CREDENTIALS_JSON", ""),
		CacheTTL:                getDurationEnv("CACHE_TTL", 5*time.Minute),

		// Model provider
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_API_BASE_URL", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gemini-2.0-flash"),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		DefaultProvider: getEnv("DEFAULT_LLM", "openai"),

		// Streaming
		StreamTimeout: getDurationEnv("STREAM_TIMEOUT", 2*time.Minute),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
