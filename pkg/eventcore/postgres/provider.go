package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"eventcore/pkg/eventcore"
)

// New builds an eventcore.Providers backed by one pgxpool.Pool.
func New(pool *pgxpool.Pool) (eventcore.Providers, error) {
	if pool == nil {
		return eventcore.Providers{}, &eventcore.EventCoreError{
			Op:  "postgres.New",
			Err: fmt.Errorf("pool cannot be nil"),
		}
	}
	return eventcore.Providers{
		Events:    NewEventsStore(pool),
		Contexts:  NewContextsStore(pool),
		Snapshots: NewSnapshotsStore(pool),
	}, nil
}

// Connect opens a pgxpool.Pool against dsn, with a cached-describe
// query mode and a modest statement cache.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.Connect: parse dsn: %w", err)
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
	cfg.ConnConfig.StatementCacheCapacity = 100

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.Connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.Connect: ping: %w", err)
	}
	return pool, nil
}
