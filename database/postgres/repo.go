// Package postgres implements the record repo using PostgreSQL
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sagarc03/affix"
	"github.com/sagarc03/affix/database/internal"
)

type repo struct {
	pool      *pgxpool.Pool
	tableName string
}

func (r *repo) Get(ctx context.Context, ref affix.RecordRef) (*affix.MapRecord, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is sanitized
		`SELECT attributes FROM %s WHERE class = $1 AND id = $2`, r.tableName)

	var attrs []byte
	err := r.pool.QueryRow(ctx, query, ref.Class, ref.ID).Scan(&attrs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, affix.ErrNotFound
		}
		return nil, fmt.Errorf("get: %w", err)
	}

	rec, err := internal.DecodeRecord(ref.Class, ref.ID, attrs)
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

	query := fmt.Sprintf( //nolint:gosec // G201: table name is sanitized
		`INSERT INTO %s (class, id, attributes)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (class, id) DO UPDATE
		SET attributes = EXCLUDED.attributes, updated_at = NOW()`, r.tableName)

	if _, err := r.pool.Exec(ctx, query, rec.ClassName(), rec.ID(), string(attrs)); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

func (r *repo) Delete(ctx context.Context, ref affix.RecordRef) error {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is sanitized
		`DELETE FROM %s WHERE class = $1 AND id = $2`, r.tableName)

	result, err := r.pool.Exec(ctx, query, ref.Class, ref.ID)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("delete: %w", affix.ErrNotFound)
	}

	return nil
}

func (r *repo) List(ctx context.Context, class string) ([]*affix.MapRecord, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is sanitized
		`SELECT id, attributes FROM %s WHERE class = $1 ORDER BY id`, r.tableName)

	rows, err := r.pool.Query(ctx, query, class)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()

	records := make([]*affix.MapRecord, 0)
	for rows.Next() {
		var id string
		var attrs []byte
		if scanErr := rows.Scan(&id, &attrs); scanErr != nil {
			return nil, fmt.Errorf("list: scan: %w", scanErr)
		}

		rec, decodeErr := internal.DecodeRecord(class, id, attrs)
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
