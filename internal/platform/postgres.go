package platform

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPostgresPool opens a pgx connection pool and verifies connectivity.
// poolSize and maxOverflow together bound MaxConns (database.pool_size,
// database.max_overflow in the configuration surface).
func NewPostgresPool(ctx context.Context, databaseURL string, poolSize, maxOverflow int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	if poolSize > 0 {
		cfg.MaxConns = int32(poolSize + maxOverflow)
		cfg.MinConns = int32(poolSize / 4)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
