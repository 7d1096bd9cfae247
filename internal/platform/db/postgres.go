package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	warmConns       = 2
	idleRecycle     = 5 * time.Minute
	healthInterval  = time.Minute
	connectDeadline = 5 * time.Second
)

// New creates a PostgreSQL connection pool and verifies connectivity
// before returning it. DSN parameters win over the pool defaults set here.
func New(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse config: %w", err)
	}
	if config.MinConns == 0 {
		config.MinConns = warmConns
	}
	config.MaxConnIdleTime = idleRecycle
	config.HealthCheckPeriod = healthInterval

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("platform/db: new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectDeadline)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("platform/db: ping: %w", err)
	}

	return pool, nil
}
