package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool sizing falls back to these when the engine config leaves a field
// unset. Mirror rows and engagement reads are short transactions, so
// connections recycle quickly.
const (
	defaultMaxConns        = 25
	defaultConnLifetime    = time.Hour
	defaultConnIdleTimeout = 30 * time.Minute
)

// DB is the engine's handle on the Postgres pool. Repositories receive it
// directly and use the embedded pgxpool API.
type DB struct {
	*pgxpool.Pool
}

// Config carries the pool settings derived from config.DatabaseConfig.
// Zero-valued fields take the package defaults.
type Config struct {
	URL             string
	MaxConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func (c *Config) maxConns() int32 {
	if c.MaxConnections > 0 {
		return c.MaxConnections
	}
	return defaultMaxConns
}

func (c *Config) connLifetime() time.Duration {
	if c.MaxConnLifetime > 0 {
		return c.MaxConnLifetime
	}
	return defaultConnLifetime
}

func (c *Config) connIdleTimeout() time.Duration {
	if c.MaxConnIdleTime > 0 {
		return c.MaxConnIdleTime
	}
	return defaultConnIdleTimeout
}

// NewConnection opens the pool and verifies the database is reachable before
// returning, so startup fails fast on a bad URL or unreachable host.
func NewConnection(ctx context.Context, cfg *Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	poolConfig.MaxConns = cfg.maxConns()
	poolConfig.MaxConnLifetime = cfg.connLifetime()
	poolConfig.MaxConnIdleTime = cfg.connIdleTimeout()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close releases all pooled connections.
func (db *DB) Close() {
	db.Pool.Close()
}
