package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sagarc03/affix"
)

func recordsDDL(table string) []string {
	quoted := pgx.Identifier{table}.Sanitize()
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + quoted + ` (
			class TEXT NOT NULL,
			id TEXT NOT NULL,
			attributes JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (class, id)
		)`,
		`CREATE INDEX IF NOT EXISTS ` + pgx.Identifier{"idx_" + table + "_updated_at"}.Sanitize() + ` ON ` + quoted + ` (class, updated_at)`,
	}
}

// Migrate creates the records table in one transaction. It is safe to run
// repeatedly.
func Migrate(ctx context.Context, pool *pgxpool.Pool, tables affix.Tables) error {
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, stmt := range recordsDDL(tables.Records) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("migrate %s: %w", tables.Records, err)
	}
	return nil
}

// DropTables removes the records table and its index.
func DropTables(ctx context.Context, pool *pgxpool.Pool, tables affix.Tables) error {
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+pgx.Identifier{tables.Records}.Sanitize()); err != nil {
		return fmt.Errorf("drop %s: %w", tables.Records, err)
	}
	return nil
}
