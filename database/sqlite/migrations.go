package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sagarc03/affix"
)

func quoteIdentifier(name string) string {
	return `"` + name + `"`
}

// recordsDDL returns the statements that create the records table and its
// listing index.
func recordsDDL(table string) []string {
	quoted := quoteIdentifier(table)
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + quoted + ` (
			class TEXT NOT NULL,
			id TEXT NOT NULL,
			attributes TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (class, id)
		)`,
		`CREATE INDEX IF NOT EXISTS ` + quoteIdentifier("idx_"+table+"_updated_at") + ` ON ` + quoted + ` (class, updated_at)`,
	}
}

// Migrate creates the records table in one transaction. It is safe to run
// repeatedly.
func Migrate(ctx context.Context, db *sql.DB, tables affix.Tables) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate %s: begin: %w", tables.Records, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range recordsDDL(tables.Records) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", tables.Records, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate %s: commit: %w", tables.Records, err)
	}
	return nil
}

// DropTables removes the records table and its index.
func DropTables(ctx context.Context, db *sql.DB, tables affix.Tables) error {
	if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdentifier(tables.Records)); err != nil {
		return fmt.Errorf("drop %s: %w", tables.Records, err)
	}
	return nil
}
