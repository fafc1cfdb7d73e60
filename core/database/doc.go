// Package database handles the optional database connection and the run lock.
//
// It provides a wrapper around GORM to configure MySQL or SQLite connections
// from the application's configuration.
//
// # Run Lock
//
// Several processes may be pointed at the same source and provider. The run
// lock table makes sure only one of them reconciles at a time. Locks carry an
// expiry so that a crashed process does not block the others forever.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    return err
//	}
//
//	locker := database.NewLocker(db, hostname, cfg.Database.LockTTL)
//	if err := locker.Migrate(ctx); err != nil {
//	    return err
//	}
//	err = locker.WithLock(ctx, "sync", func(ctx context.Context) error {
//	    return run(ctx)
//	})
package database
