// Package mongo implements store.Store on MongoDB through the grove ORM and
// its mongo driver. Claims use FindOneAndUpdate per job sorted by
// created_at then _id, so each document moves to claimed exactly once.
//
// The caller owns the *grove.DB lifecycle; the store never closes it. The
// database is the one named in the connection string:
//
//	drv, _ := grove.OpenDriver(ctx, "mongo", "mongodb://localhost:27017/jobq")
//	db, _ := grove.Open(drv)
//	s := mongostore.New(db)
//	s.Migrate(ctx)
package mongo
