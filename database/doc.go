// Package database provides a unified interface for connecting to record stores.
//
// A record store persists the attribute map of each record (the file name,
// content type, size and update time of every attachment slot) keyed by
// class and id.
//
// # Supported Backends
//
//   - PostgreSQL: attributes stored as JSONB, using a pgx connection pool
//   - SQLite: attributes stored as JSON text, suitable for development and single-node deployments
//
// # Usage
//
//	db, err := database.Connect(ctx, database.Config{
//	    Type:   "sqlite",
//	    DSN:    "affix.db",
//	    Tables: affix.Tables{Records: "affix_records"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	repo := db.GetRepo()
//
// # Subpackages
//
//   - database/postgres: PostgreSQL implementation using pgx
//   - database/sqlite: SQLite implementation using modernc.org/sqlite
package database
