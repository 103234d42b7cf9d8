package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for trainwell-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"4380"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (change feed)
	Redis RedisConfig `yaml:"redis"`

	// Engagement engine tunables
	Engine EngineConfig `yaml:"engine"`

	// SessionCookieKey authenticates the anonymous-session cookie.
	// Generate with: openssl rand -base64 32
	SessionCookieKey string `yaml:"-" env:"SESSION_COOKIE_KEY"` // Secret - not in YAML
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without an auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:"https://auth.trainwell.app=https://auth.trainwell.app/.well-known/jwks.json"`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"trainwell"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"trainwell_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// URL builds a connection URL for pgx.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// RedisConfig holds Redis configuration for the change-notification feed.
// An empty host disables Redis; the engine falls back to the in-process feed.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// EngineConfig holds tunables for the engagement engine core.
type EngineConfig struct {
	// SavedTrainerCap limits how many trainers an anonymous session can save.
	SavedTrainerCap int `yaml:"saved_trainer_cap" env:"ENGINE_SAVED_TRAINER_CAP" env-default:"5"`
	// ShortlistCap limits trainers concurrently shortlisted or in discovery.
	ShortlistCap int `yaml:"shortlist_cap" env:"ENGINE_SHORTLIST_CAP" env-default:"4"`
	// SessionTTLDays is the anonymous-session expiry window.
	SessionTTLDays int `yaml:"session_ttl_days" env:"ENGINE_SESSION_TTL_DAYS" env-default:"7"`
	// CacheTTLMinutes is the aggregator's in-memory freshness window.
	CacheTTLMinutes int `yaml:"cache_ttl_minutes" env:"ENGINE_CACHE_TTL_MINUTES" env-default:"5"`
	// DebounceSeconds is how long the sync coordinator coalesces change events.
	DebounceSeconds int `yaml:"debounce_seconds" env:"ENGINE_DEBOUNCE_SECONDS" env-default:"2"`
	// RefreshGraceSeconds is the manual-refresh UI grace window.
	RefreshGraceSeconds int `yaml:"refresh_grace_seconds" env:"ENGINE_REFRESH_GRACE_SECONDS" env-default:"1"`
}

// SessionTTL returns the anonymous-session expiry window as a duration.
func (c *EngineConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLDays) * 24 * time.Hour
}

// CacheTTL returns the aggregator cache freshness window as a duration.
func (c *EngineConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// Debounce returns the change-feed coalescing window as a duration.
func (c *EngineConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceSeconds) * time.Second
}

// RefreshGrace returns the manual-refresh grace window as a duration.
func (c *EngineConfig) RefreshGrace() time.Duration {
	return time.Duration(c.RefreshGraceSeconds) * time.Second
}

// Load reads configuration from config.yaml with environment variable overrides.
// When config.yaml does not exist, configuration comes from the environment alone.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	return cfg, nil
}

// parseComplexFields parses fields that cleanenv cannot express directly.
func (c *Config) parseComplexFields() error {
	c.Auth.JWKSEndpoints = make(map[string]string)
	if c.Auth.JWKSEndpointsStr == "" {
		return nil
	}

	for _, pair := range strings.Split(c.Auth.JWKSEndpointsStr, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.Index(pair, "=")
		if idx <= 0 || idx == len(pair)-1 {
			return fmt.Errorf("invalid jwks endpoint pair: %q", pair)
		}
		issuer := strings.TrimSpace(pair[:idx])
		url := strings.TrimSpace(pair[idx+1:])
		c.Auth.JWKSEndpoints[issuer] = url
	}

	return nil
}
