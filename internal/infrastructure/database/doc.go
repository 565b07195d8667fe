// Package database provides the SQLite connection behind the run history.
//
// The database is optional: it is opened only when database.enabled is
// set (or FLEETRUNNER_DATABASE_PATH is given). Schema changes are plain SQL
// migrations embedded into the binary by the migrations package and applied
// with Migrate at startup.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
