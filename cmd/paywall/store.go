package main

import (
	"context"
	"fmt"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/paywall/config"
	"github.com/xraph/paywall/store"
	"github.com/xraph/paywall/store/memory"
	mongostore "github.com/xraph/paywall/store/mongo"
	"github.com/xraph/paywall/store/postgres"
	"github.com/xraph/paywall/store/sqlite"
)

// openStore connects the configured driver and wraps it in its store.
// Migrations run later, from Paywall.Start.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "", config.StoreMemory:
		return memory.New(), nil

	case config.StorePostgres:
		drv := pgdriver.New()
		if err := drv.Open(ctx, cfg.DSN); err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			_ = drv.Close()
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return postgres.New(db), nil

	case config.StoreSQLite:
		drv := sqlitedriver.New()
		if err := drv.Open(ctx, cfg.DSN); err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			_ = drv.Close()
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return sqlite.New(db), nil

	case config.StoreMongo:
		drv := mongodriver.New()
		if err := drv.Open(ctx, cfg.DSN); err != nil {
			return nil, fmt.Errorf("open mongo store: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			_ = drv.Close()
			return nil, fmt.Errorf("open mongo store: %w", err)
		}
		return mongostore.New(db), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
