// Command migrate applies the embedded schema to the configured SQL backend.
//
//	migrate            apply the schema
//	migrate --print    print the schema for the configured driver and exit
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/founderfund/waitlist/internal/config"
	"github.com/founderfund/waitlist/internal/pkg/logger"
	"github.com/founderfund/waitlist/internal/repository/postgres"
	"github.com/founderfund/waitlist/internal/repository/sqlite"
)

func main() {
	printOnly := false
	for _, a := range os.Args[1:] {
		if a == "--print" {
			printOnly = true
		}
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(path)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	if printOnly {
		switch cfg.Storage.Driver {
		case config.DriverPostgres:
			fmt.Print(postgres.Schema)
		case config.DriverSQLite:
			fmt.Print(sqlite.Schema)
		default:
			logger.Error("no SQL schema for driver", "driver", cfg.Storage.Driver)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := migrate(ctx, cfg.Storage); err != nil {
		logger.Error("migration failed", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	logger.Info("migration complete", "driver", cfg.Storage.Driver)
}

func migrate(ctx context.Context, cfg config.StorageConfig) error {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case config.DriverPostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		if db, err = postgres.Open(ctx, cfg.DatabaseURL); err != nil {
			return err
		}
		defer db.Close()
		return postgres.Migrate(ctx, db)

	case config.DriverSQLite:
		// Open applies the schema.
		if db, err = sqlite.Open(ctx, cfg.SQLitePath); err != nil {
			return err
		}
		return db.Close()

	default:
		return fmt.Errorf("driver %q has no schema to migrate", cfg.Driver)
	}
}
