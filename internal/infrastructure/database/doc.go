// Package database provides SQLite storage for the gateway service.
//
// The gateway configuration table (and the last-known status of each
// gateway) lives here. The service is the only writer, so the pool is
// capped at one connection and WAL mode keeps admin API reads from
// blocking status writes.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are embedded by the top-level migrations package and follow
// the YYYYMMDD_HHMMSS_description.{up,down}.sql naming scheme.
package database
