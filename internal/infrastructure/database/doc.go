// Package database provides SQLite connectivity for the virt-foo daemon.
//
// This package manages:
//   - The database connection, with WAL mode and a busy timeout
//   - Versioned schema migrations read from an fs.FS
//   - Connection lifecycle and health checks
//
// The only table the daemon writes is counter_events, the audit journal of
// counter mutations. It is never read back to restore the counter.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional .down.sql, and are applied oldest first, one transaction each.
package database
