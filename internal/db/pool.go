// Package db holds the small slice of pgx the TIGER geocoder needs.
package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Pool is satisfied by *pgxpool.Pool and pgxmock pools.
type Pool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Connect opens and pings a pgx pool for dsn. The pool is small: the builder
// issues one query at a time.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, eris.New("db: no database url configured")
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "db: parse connection string")
	}
	poolCfg.MaxConns = 2
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "db: create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "db: ping database")
	}

	zap.L().Debug("db: connected", zap.String("host", poolCfg.ConnConfig.Host))
	return pool, nil
}
