// Package sqlite implements the record repo using SQLite
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sagarc03/affix"
	"github.com/sagarc03/affix/database/internal"
)

type repo struct {
	db        *sql.DB
	tableName string
}

func (r *repo) Get(ctx context.Context, ref affix.RecordRef) (*affix.MapRecord, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT attributes FROM %s WHERE class = ? AND id = ?`, r.tableName)

	var attrs string
	err := r.db.QueryRowContext(ctx, query, ref.Class, ref.ID).Scan(&attrs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, affix.ErrNotFound
		}
		return nil, fmt.Errorf("get: %w", err)
	}

	rec, err := internal.DecodeRecord(ref.Class, ref.ID, []byte(attrs))
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	return rec, nil
}

func (r *repo) Save(ctx context.Context, rec *affix.MapRecord) error {
	attrs, err := internal.EncodeAttributes(rec)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`INSERT INTO %s (class, id, attributes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (class, id) DO UPDATE
		SET attributes = excluded.attributes, updated_at = excluded.updated_at`, r.tableName)

	if _, err := r.db.ExecContext(ctx, query, rec.ClassName(), rec.ID(), string(attrs), now, now); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

func (r *repo) Delete(ctx context.Context, ref affix.RecordRef) error {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`DELETE FROM %s WHERE class = ? AND id = ?`, r.tableName)

	result, err := r.db.ExecContext(ctx, query, ref.Class, ref.ID)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete: rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("delete: %w", affix.ErrNotFound)
	}

	return nil
}

func (r *repo) List(ctx context.Context, class string) ([]*affix.MapRecord, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT id, attributes FROM %s WHERE class = ? ORDER BY id`, r.tableName)

	rows, err := r.db.QueryContext(ctx, query, class)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]*affix.MapRecord, 0)
	for rows.Next() {
		var id, attrs string
		if scanErr := rows.Scan(&id, &attrs); scanErr != nil {
			return nil, fmt.Errorf("list: scan: %w", scanErr)
		}

		rec, decodeErr := internal.DecodeRecord(class, id, []byte(attrs))
		if decodeErr != nil {
			return nil, fmt.Errorf("list: %w", decodeErr)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list: rows: %w", err)
	}

	return records, nil
}
