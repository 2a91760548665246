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
	Server     ServerConfig
	Database   DatabaseConfig
	Security   SecurityConfig
	Validation ValidationConfig
	Logging    LoggingConfig
	Janitor    JanitorConfig
	Watch      WatchConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 10m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"10m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection settings.
// Execution history is only recorded when URL is set.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (optional)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a database is configured.
func (c *DatabaseConfig) Enabled() bool { return c.URL != "" }

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey rejects API requests without a valid X-API-Key header (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// ValidationConfig holds settings for validation runs.
type ValidationConfig struct {
	// ExecutionsDir is where each execution's inputs and reports are kept (default: executions)
	ExecutionsDir string `env:"SAGE_EXECUTIONS_DIR" default:"executions"`

	// SmallFileThreshold is the row count above which rule detail is capped (default: 30)
	SmallFileThreshold int `env:"SAGE_SMALL_FILE_THRESHOLD" default:"30"`

	// MaxErrorsPerRule is the detail cap per rule on large files (default: 10)
	MaxErrorsPerRule int `env:"SAGE_MAX_ERRORS_PER_RULE" default:"10"`

	// MaxFileSize is the maximum accepted data file size, in bytes or with a KB/MB/GB suffix (default: 100MB)
	MaxFileSize int64 `env:"SAGE_MAX_FILE_SIZE" default:"100MB" unit:"bytes"`

	// MaxExtractSize caps the uncompressed size of a ZIP package, summed over its members (default: 1GB)
	MaxExtractSize int64 `env:"SAGE_MAX_EXTRACT_SIZE" default:"1GB" unit:"bytes"`

	// MaxConcurrent is the maximum number of parallel executions (default: 4)
	MaxConcurrent int `env:"SAGE_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for an execution slot (default: 30s)
	MaxWaitTime time.Duration `env:"SAGE_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration of a single execution (default: 10m)
	Timeout time.Duration `env:"SAGE_TIMEOUT" default:"10m"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text, json or pretty (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// JanitorConfig holds execution directory cleanup settings.
type JanitorConfig struct {
	// Enabled controls whether old executions are purged (default: true)
	Enabled bool `env:"JANITOR_ENABLED" default:"true"`

	// Schedule is a cron expression for the purge job (default: hourly)
	Schedule string `env:"JANITOR_SCHEDULE" default:"@hourly"`

	// Retention is how long executions are kept (default: 168h)
	Retention time.Duration `env:"JANITOR_RETENTION" default:"168h"`
}

// WatchConfig holds inbox watcher settings.
type WatchConfig struct {
	// Inbox is the directory watched for new data files
	Inbox string `env:"WATCH_INBOX"`

	// ConfigPath is the YAML configuration files in the inbox are validated with
	ConfigPath string `env:"WATCH_CONFIG"`

	// Extensions are the file extensions picked up from the inbox
	Extensions []string `env:"WATCH_EXTENSIONS" default:".csv,.xlsx,.xls,.zip"`

	// Settle is how long a file must stay unchanged before it is picked up (default: 2s)
	Settle time.Duration `env:"WATCH_SETTLE" default:"2s"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
