package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Automation    AutomationConfig
	Observability ObservabilityConfig
	Security      SecurityConfig
	RateLimit     RateLimitConfig
	Bridge        BridgeConfig
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// AutomationConfig holds settings for the browser automation backend
// and the sync scheduler.
type AutomationConfig struct {
	// Headless controls headless mode for chromedp.
	Headless bool
	// ProfileDir is the root directory for per-account browser profiles.
	// A persisted profile lets a later run skip the credential entry steps.
	ProfileDir string
	// StepTimeout bounds every individual authentication/extraction step.
	StepTimeout time.Duration
	// BatchSize caps how many account sessions a sync-all run drives at once.
	BatchSize int
	// ControlCadence is how often the scheduler re-evaluates account timers.
	ControlCadence time.Duration
	// DefaultInterval is used when an account's plan interval cannot be parsed.
	DefaultInterval time.Duration
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	// MasterSecret derives the AES key that protects stored account credentials.
	MasterSecret string
}

// BridgeConfig holds remote-bridge transport configuration.
// When Mode is "remote" the engine operations are proxied to RemoteURL with a
// signed bearer token instead of running a local browser.
type BridgeConfig struct {
	Mode      string // local, remote
	RemoteURL string
	Secret    string
	TokenTTL  time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:  parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "creditflow"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "creditflow"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Automation: AutomationConfig{
			Headless:        parseBool("AUTOMATION_HEADLESS", true),
			ProfileDir:      getEnv("AUTOMATION_PROFILE_DIR", "browser_data"),
			StepTimeout:     parseDuration("AUTOMATION_STEP_TIMEOUT", "30s"),
			BatchSize:       parseInt("AUTOMATION_BATCH_SIZE", 3),
			ControlCadence:  parseDuration("AUTOMATION_CONTROL_CADENCE", "1m"),
			DefaultInterval: parseDuration("AUTOMATION_DEFAULT_INTERVAL", "30m"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "creditflow"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
		},
		Security: SecurityConfig{
			MasterSecret: getEnv("MASTER_SECRET", ""),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: float64(parseInt("RATELIMIT_RPS", 10)),
			Burst:             parseInt("RATELIMIT_BURST", 20),
		},
		Bridge: BridgeConfig{
			Mode:      getEnv("BRIDGE_MODE", "local"),
			RemoteURL: getEnv("BRIDGE_REMOTE_URL", ""),
			Secret:    getEnv("BRIDGE_SECRET", ""),
			TokenTTL:  parseDuration("BRIDGE_TOKEN_TTL", "2m"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Security.MasterSecret == "" {
		return fmt.Errorf("MASTER_SECRET is required")
	}
	if c.Bridge.Mode != "local" && c.Bridge.Mode != "remote" {
		return fmt.Errorf("BRIDGE_MODE must be local or remote, got %q", c.Bridge.Mode)
	}
	if c.Bridge.Mode == "remote" && c.Bridge.RemoteURL == "" {
		return fmt.Errorf("BRIDGE_REMOTE_URL is required when BRIDGE_MODE=remote")
	}
	if c.Automation.BatchSize < 1 {
		return fmt.Errorf("AUTOMATION_BATCH_SIZE must be at least 1")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		// Fallback to default
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}
