// Package store implements the optional Postgres-backed journal of
// applied config deltas and periodic peer-counter snapshots described
// in SPEC_FULL.md §6. The live route tables themselves stay
// memory-resident; nothing here is on the route-commit hot path.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool opens a connection pool against dsn, sized between minConns
// and maxConns, and verifies connectivity with a ping before returning.
func NewPool(ctx context.Context, dsn string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parsing DSN: %w", err)
	}

	cfg.MaxConns = maxConns
	cfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: pinging database: %w", err)
	}

	return pool, nil
}

// Ping verifies the pool can still reach the database, used by
// internal/httpapi's readiness check.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	return pool.Ping(ctx)
}
