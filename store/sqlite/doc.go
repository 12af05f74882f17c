// Package sqlite implements store.Store on SQLite through the grove ORM and
// its sqlite driver. Suitable for embedded deployments, CLI tools and
// tests.
//
// Claims are a single UPDATE ... RETURNING statement and are atomic under
// SQLite's database-level write lock. Timestamps are stored as Unix
// nanoseconds. Schema changes live in the Migrations group and are applied
// by Migrate.
//
//	drv, _ := grove.OpenDriver(ctx, "sqlite", "jobq.db")
//	db, _ := grove.Open(drv)
//	s := sqlite.New(db)
//	err := s.Migrate(ctx)
package sqlite
