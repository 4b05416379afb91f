// Package database handles database connections and schema inspection.
//
// It wraps GORM to open MySQL, PostgreSQL or SQLite connections from configuration. The
// same Config type describes the local recording database and every remote source
// database.
//
// # Connect
//
// Connect builds the driver DSN, applies pool settings and pings the server within the
// configured timeout, so an unreachable source fails fast instead of stalling a run.
//
// # Schema Inspection
//
// GetTableColumns lists the columns of a table for each supported dialect and
// MissingColumns checks that the columns a feature relies on are present before it
// starts writing.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
//
//	missing, err := database.MissingColumns(db, "records", []string{"imported_record_id"})
package database
