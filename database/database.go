package database

import (
	"context"
	"fmt"

	"github.com/sagarc03/affix"
	"github.com/sagarc03/affix/database/postgres"
	"github.com/sagarc03/affix/database/sqlite"
)

// Config holds the configuration for connecting to a record store.
type Config struct {
	// Type specifies the database type: "sqlite" or "postgres"
	Type string `mapstructure:"type" validate:"required,oneof=sqlite postgres"`
	// DSN is the data source name (connection string)
	DSN string `mapstructure:"dsn" validate:"required"`
	// Tables holds the table names used for records
	Tables affix.Tables `mapstructure:"tables"`
}

// Database is a connected record store.
type Database interface {
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Validate(ctx context.Context) error
	GetRepo() affix.RecordRepo
	Close() error
}

// Connect opens the configured database backend. Migrations are not run;
// call Migrate or Validate on the result.
func Connect(ctx context.Context, cfg Config) (Database, error) {
	if err := cfg.Tables.Validate(); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	switch cfg.Type {
	case "sqlite":
		return sqlite.Connect(ctx, cfg.DSN, cfg.Tables)
	case "postgres":
		return postgres.Connect(ctx, cfg.DSN, cfg.Tables)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}
