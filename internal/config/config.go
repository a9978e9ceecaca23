package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Auth           AuthConfig
	RateLimit      RateLimitConfig
	AdminBootstrap AdminBootstrapConfig
	Jobs           JobsConfig
	Logging        LoggingConfig
	Tracing        TracingConfig
	Environment    string
}

type ServerConfig struct {
	Host    string
	Port    int
	BaseURL string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdle        int
}

type AuthConfig struct {
	JWTSecret    string
	JWTExpiry    time.Duration
	RefreshGrace time.Duration
	Issuer       string
}

type RateLimitConfig struct {
	// PolicyPath optionally points at a YAML file overriding the built-in
	// permission and quota tables.
	PolicyPath        string
	TrustedProxyCIDRs []string
}

type AdminBootstrapConfig struct {
	Email    string
	Password string
}

type JobsConfig struct {
	// DeactivationInterval and PurgeInterval control how often the two
	// maintenance jobs fire.
	DeactivationInterval time.Duration
	PurgeInterval        time.Duration
	// MaxRunDuration bounds a single job run; a run exceeding it is
	// abandoned and recorded as failed.
	MaxRunDuration time.Duration
	// UnconfirmedTTL is how long an unconfirmed account survives before the
	// purge job removes it.
	UnconfirmedTTL time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type TracingConfig struct {
	Enabled      bool
	Exporter     string
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
}

func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:    getEnvInt("SERVER_PORT", 8080),
			BaseURL: getEnv("SERVER_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 25),
			MaxIdle:        getEnvInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
		},
		Auth: AuthConfig{
			JWTSecret:    getEnv("JWT_SECRET", ""),
			JWTExpiry:    time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
			RefreshGrace: time.Duration(getEnvInt("JWT_REFRESH_GRACE_MINUTES", 60)) * time.Minute,
			Issuer:       getEnv("JWT_ISSUER", "eventsphere"),
		},
		RateLimit: RateLimitConfig{
			PolicyPath:        getEnv("GOVERNANCE_POLICY_PATH", ""),
			TrustedProxyCIDRs: getEnvList("TRUSTED_PROXY_CIDRS"),
		},
		AdminBootstrap: AdminBootstrapConfig{
			Email:    getEnv("ADMIN_EMAIL", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
		Jobs: JobsConfig{
			DeactivationInterval: time.Duration(getEnvInt("JOB_DEACTIVATION_INTERVAL_HOURS", 24)) * time.Hour,
			PurgeInterval:        time.Duration(getEnvInt("JOB_PURGE_INTERVAL_HOURS", 24)) * time.Hour,
			MaxRunDuration:       time.Duration(getEnvInt("JOB_MAX_RUN_MINUTES", 10)) * time.Minute,
			UnconfirmedTTL:       time.Duration(getEnvInt("ACCOUNT_UNCONFIRMED_TTL_HOURS", 48)) * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvBool("TRACING_ENABLED", false),
			Exporter:     getEnv("TRACING_EXPORTER", "none"),
			ServiceName:  getEnv("TRACING_SERVICE_NAME", "eventsphere-server"),
			OTLPEndpoint: getEnv("TRACING_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   getEnvFloat("TRACING_SAMPLE_RATE", 0.1),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Environment == "production" && len(cfg.Auth.JWTSecret) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 bytes in production")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
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
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
