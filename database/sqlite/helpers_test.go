package sqlite_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/affix"
	"github.com/sagarc03/affix/database/sqlite"
)

func tableName(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// setupTestRepo migrates a fresh in-memory database.
func setupTestRepo(t *testing.T) affix.RecordRepo {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Connect(ctx, ":memory:", affix.Tables{Records: tableName("records")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate(ctx))
	return db.GetRepo()
}
