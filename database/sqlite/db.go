package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sagarc03/affix"
	"github.com/sagarc03/affix/database/internal"
)

// Timestamps are stored as RFC 3339 text.
var recordsSchema = internal.RecordsSchema("text", "text")

// ValidateSchema checks that the records table exists with the expected columns.
func ValidateSchema(ctx context.Context, db *sql.DB, tables affix.Tables) error {
	table := tables.Records
	if !affix.IsValidTableName(table) {
		return fmt.Errorf("validate schema: invalid table name: %s", table)
	}

	columns, err := tableColumns(ctx, db, table)
	if err != nil {
		return fmt.Errorf("validate schema %s: %w", table, err)
	}
	if columns == nil {
		return fmt.Errorf("validate schema %s: table %s does not exist", table, table)
	}

	if err := recordsSchema.Check(table, columns); err != nil {
		return fmt.Errorf("validate schema %s: %w", table, err)
	}
	return nil
}

// tableColumns reads the column list with PRAGMA table_info. It returns nil
// when the table is absent.
func tableColumns(ctx context.Context, db *sql.DB, table string) (internal.Schema, error) {
	var name string
	err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check table exists: %w", err)
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdentifier(table)))
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns := internal.Schema{}
	for rows.Next() {
		var (
			cid, notNull, pk int
			col, colType     string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &col, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns[col] = internal.Column{Type: colType, Nullable: notNull == 0}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	return columns, nil
}
