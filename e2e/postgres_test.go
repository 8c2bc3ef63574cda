package e2e_test

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// postgresEnv is the container shared by every postgres test in the run.
var postgresEnv struct {
	once sync.Once
	pool *pgxpool.Pool
	dsn  string
	err  error
}

// testCleanup is called by TestMain once all tests have finished.
var testCleanup func()

// getSharedPostgresDatabase starts the shared container on first use and
// returns its DSN.
func getSharedPostgresDatabase(t *testing.T) string {
	t.Helper()

	postgresEnv.once.Do(func() {
		ctx := context.Background()

		container, err := pgcontainer.Run(ctx, "postgres:18-alpine",
			pgcontainer.WithDatabase("affix_e2e"),
			pgcontainer.WithUsername("affix"),
			pgcontainer.WithPassword("affix"),
			pgcontainer.BasicWaitStrategies(),
		)
		if err != nil {
			postgresEnv.err = err
			return
		}
		testCleanup = func() {
			if postgresEnv.pool != nil {
				postgresEnv.pool.Close()
			}
			_ = testcontainers.TerminateContainer(container)
		}

		if postgresEnv.dsn, err = container.ConnectionString(ctx, "sslmode=disable"); err != nil {
			postgresEnv.err = err
			return
		}
		postgresEnv.pool, postgresEnv.err = pgxpool.New(ctx, postgresEnv.dsn)
	})

	require.NoError(t, postgresEnv.err, "postgres container")
	return postgresEnv.dsn
}

// dropPostgresTable removes table once the test finishes so reruns start empty.
func dropPostgresTable(t *testing.T, table string) {
	t.Helper()

	t.Cleanup(func() {
		_, err := postgresEnv.pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+pgx.Identifier{table}.Sanitize())
		require.NoError(t, err)
	})
}
