// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Run       RunConfig
	Dispatch  DispatchConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	Retention RetentionConfig
	Events    EventsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 5001)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"5001"`

	// ReadTimeout is the maximum duration for reading request body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout bounds CRUD requests; processing routes are exempt (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL selects the backend by scheme: postgres://, sqlite:// (or file:), memory://
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" default:"sqlite://promptfactory.db"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// RunConfig holds settings for processing runs.
type RunConfig struct {
	// MaxUploadSize is the maximum dataset size in bytes (default: 50MB)
	MaxUploadSize int64 `env:"RUN_MAX_UPLOAD_SIZE" default:"52428800"`

	// MaxConcurrent is the maximum number of runs processed at once (default: 4)
	MaxConcurrent int `env:"RUN_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a run waits for a slot (default: 30s)
	MaxWaitTime time.Duration `env:"RUN_MAX_WAIT_TIME" default:"30s"`
}

// DispatchConfig holds defaults for calls to the completion endpoint.
// Project settings override the model-facing values.
type DispatchConfig struct {
	// DefaultWorkers is the worker count when a run does not ask (default: 10)
	DefaultWorkers int `env:"DISPATCH_DEFAULT_WORKERS" default:"10"`

	// MaxWorkers caps the worker count a run may ask for (default: 50)
	MaxWorkers int `env:"DISPATCH_MAX_WORKERS" default:"50"`

	// ResultField is the default key model output is written to (default: response)
	ResultField string `env:"DISPATCH_RESULT_FIELD" default:"response"`

	// RequestTimeout is the per-call timeout (default: 30s)
	RequestTimeout time.Duration `env:"DISPATCH_REQUEST_TIMEOUT" default:"30s"`

	// Model is the default model name (default: gpt-4)
	Model string `env:"DISPATCH_MODEL" default:"gpt-4"`

	// Temperature is the default sampling temperature (default: 0.3)
	Temperature float64 `env:"DISPATCH_TEMPERATURE" default:"0.3"`

	// MaxTokens is the default completion limit (default: 16384)
	MaxTokens int `env:"DISPATCH_MAX_TOKENS" default:"16384"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 120)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"120"`

	// ProcessLimit is requests per minute for processing endpoints (default: 10)
	ProcessLimit int `env:"RATE_LIMIT_PROCESS" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey protects /api routes with an API key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// RetentionConfig holds run record purge settings.
type RetentionConfig struct {
	// RunRetentionDays is how long run records are kept; 0 keeps them forever (default: 90)
	RunRetentionDays int `env:"RETENTION_RUN_DAYS" default:"90"`

	// CheckInterval is how often the purge job runs (default: 24h)
	CheckInterval time.Duration `env:"RETENTION_CHECK_INTERVAL" default:"24h"`
}

// EventsConfig holds run event publishing settings.
type EventsConfig struct {
	// NATSURL enables publishing to NATS when set
	NATSURL string `env:"EVENTS_NATS_URL"`

	// SubjectPrefix prefixes every published subject (default: promptfactory.runs)
	SubjectPrefix string `env:"EVENTS_SUBJECT_PREFIX" default:"promptfactory.runs"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
