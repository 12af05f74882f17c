package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/xraph/grove"

	"github.com/xraph/jobq/store"
	bunstore "github.com/xraph/jobq/store/bun"
	"github.com/xraph/jobq/store/memory"
	mongostore "github.com/xraph/jobq/store/mongo"
	"github.com/xraph/jobq/store/postgres"
	redisstore "github.com/xraph/jobq/store/redis"
	"github.com/xraph/jobq/store/sqlite"
)

// ownedStore closes the client connections the factory opened on behalf
// of a backend that does not own them.
type ownedStore struct {
	store.Store
	closers []func() error
}

func (o *ownedStore) Close() error {
	errs := []error{o.Store.Close()}
	for _, c := range o.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// openStore connects the backend named by cfg.Store.
func openStore(ctx context.Context, cfg *cliConfig, logger *slog.Logger) (store.Store, error) {
	if cfg.Store != "memory" && cfg.DSN == "" {
		return nil, fmt.Errorf("store %q requires JOBQ_DSN", cfg.Store)
	}

	switch cfg.Store {
	case "memory":
		return memory.New(), nil

	case "postgres":
		return postgres.New(ctx, cfg.DSN, postgres.WithLogger(logger))

	case "bun":
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
		db := bun.NewDB(sqldb, pgdialect.New())
		return &ownedStore{
			Store:   bunstore.New(db, bunstore.WithLogger(logger)),
			closers: []func() error{db.Close},
		}, nil

	case "sqlite":
		drv, err := grove.OpenDriver(ctx, "sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return &ownedStore{
			Store:   sqlite.New(db, sqlite.WithLogger(logger)),
			closers: []func() error{db.Close},
		}, nil

	case "redis":
		opts, err := goredis.ParseURL(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		return &ownedStore{
			Store:   redisstore.New(client, redisstore.WithLogger(logger)),
			closers: []func() error{client.Close},
		}, nil

	case "mongo":
		drv, err := grove.OpenDriver(ctx, "mongo", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		return &ownedStore{
			Store:   mongostore.New(db, mongostore.WithLogger(logger)),
			closers: []func() error{db.Close},
		}, nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}
