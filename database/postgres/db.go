package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sagarc03/affix"
	"github.com/sagarc03/affix/database/internal"
)

var recordsSchema = internal.RecordsSchema("jsonb", "timestamp with time zone")

// ValidateSchema checks that the records table exists in the public schema
// with the expected column types.
func ValidateSchema(ctx context.Context, pool *pgxpool.Pool, tables affix.Tables) error {
	table := tables.Records
	if !affix.IsValidTableName(table) {
		return fmt.Errorf("validate schema: invalid table name: %s", table)
	}

	columns, err := tableColumns(ctx, pool, table)
	if err != nil {
		return fmt.Errorf("validate schema %s: %w", table, err)
	}
	if len(columns) == 0 {
		return fmt.Errorf("validate schema %s: table %s does not exist", table, table)
	}

	if err := recordsSchema.Check(table, columns); err != nil {
		return fmt.Errorf("validate schema %s: %w", table, err)
	}
	return nil
}

func tableColumns(ctx context.Context, pool *pgxpool.Pool, table string) (internal.Schema, error) {
	const query = `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
	`
	rows, err := pool.Query(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	columns := internal.Schema{}
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns[name] = internal.Column{Type: dataType, Nullable: nullable == "YES"}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	return columns, nil
}
