// Package storage opens the configured signup store. The returned Store is
// a process-wide handle: open it once at startup, share it across
// requests, and Close it once at shutdown.
package storage

import (
	"context"
	"fmt"

	"github.com/founderfund/waitlist/internal/config"
	"github.com/founderfund/waitlist/internal/repository/dynamo"
	"github.com/founderfund/waitlist/internal/repository/postgres"
	"github.com/founderfund/waitlist/internal/repository/redisstore"
	"github.com/founderfund/waitlist/internal/repository/sqlite"
	"github.com/founderfund/waitlist/internal/repository/sqlstore"
	"github.com/founderfund/waitlist/internal/service/signup"
	"github.com/founderfund/waitlist/internal/service/status"
)

// Store is implemented by every backend.
type Store interface {
	signup.Repository
	status.Repository

	Name() string
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the backend selected by cfg.Driver. The Postgres schema
// is applied by cmd/migrate; SQLite applies its own schema on open.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return postgres.NewStore(db, sqlstore.WithReservationTTL(cfg.ReservationTTL())), nil

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return sqlite.NewStore(db, sqlstore.WithReservationTTL(cfg.ReservationTTL())), nil

	case config.DriverRedis:
		store, err := redisstore.Open(ctx, cfg.Redis.URL, cfg.Redis.KeyPrefix, cfg.Redis.ReservationTTL())
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.DriverDynamoDB:
		store, err := dynamo.Open(ctx, cfg.DynamoDB)
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

var (
	_ Store = (*sqlstore.Store)(nil)
	_ Store = (*redisstore.Store)(nil)
	_ Store = (*dynamo.Store)(nil)
)
