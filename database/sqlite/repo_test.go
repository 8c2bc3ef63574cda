package sqlite_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/affix"
	"github.com/sagarc03/affix/database/sqlite"
)

func TestRepo_SaveGet(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	rec := affix.NewRecord("User", "1")
	rec.Set("avatar_file_name", "a.png")
	rec.Set("avatar_file_size", int64(2048))
	rec.Set("avatar_updated_at", ts)

	require.NoError(t, repo.Save(ctx, rec))

	got, err := repo.Get(ctx, rec.Ref())
	require.NoError(t, err)
	assert.Equal(t, "a.png", got.Get("avatar_file_name"))
	assert.Equal(t, json.Number("2048"), got.Get("avatar_file_size"))

	reg := affix.NewRegistry()
	reg.RegisterBackend("noop", func(*affix.Attachment) (affix.Backend, error) { return nil, nil })
	a, err := affix.NewAttachment("avatar", got, affix.Options{Backend: "noop"}, reg)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), a.FileSize())
	assert.True(t, ts.Equal(a.UpdatedAt()))
}

func TestRepo_SaveOverwrites(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	rec := affix.NewRecord("User", "1")
	rec.Set("avatar_file_name", "a.png")
	require.NoError(t, repo.Save(ctx, rec))

	rec.Set("avatar_file_name", nil)
	rec.Set("resume_file_name", "cv.pdf")
	require.NoError(t, repo.Save(ctx, rec))

	got, err := repo.Get(ctx, rec.Ref())
	require.NoError(t, err)
	assert.Nil(t, got.Get("avatar_file_name"))
	assert.Equal(t, "cv.pdf", got.Get("resume_file_name"))
}

func TestRepo_GetNotFound(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.Get(context.Background(), affix.RecordRef{Class: "User", ID: "404"})
	assert.ErrorIs(t, err, affix.ErrNotFound)
}

func TestRepo_ClassesAreSeparate(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	user := affix.NewRecord("User", "1")
	user.Set("kind", "user")
	post := affix.NewRecord("Post", "1")
	post.Set("kind", "post")

	require.NoError(t, repo.Save(ctx, user))
	require.NoError(t, repo.Save(ctx, post))

	got, err := repo.Get(ctx, affix.RecordRef{Class: "Post", ID: "1"})
	require.NoError(t, err)
	assert.Equal(t, "post", got.Get("kind"))
}

func TestRepo_Delete(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	rec := affix.NewRecord("User", "1")
	require.NoError(t, repo.Save(ctx, rec))

	require.NoError(t, repo.Delete(ctx, rec.Ref()))

	_, err := repo.Get(ctx, rec.Ref())
	assert.ErrorIs(t, err, affix.ErrNotFound)

	err = repo.Delete(ctx, rec.Ref())
	assert.ErrorIs(t, err, affix.ErrNotFound)
}

func TestRepo_List(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	for _, id := range []string{"3", "1", "2"} {
		require.NoError(t, repo.Save(ctx, affix.NewRecord("User", id)))
	}
	require.NoError(t, repo.Save(ctx, affix.NewRecord("Post", "9")))

	records, err := repo.List(ctx, "User")
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, id := range []string{"1", "2", "3"} {
		assert.Equal(t, id, records[i].ID())
		assert.Equal(t, "User", records[i].ClassName())
	}

	records, err = repo.List(ctx, "Comment")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	tables := affix.Tables{Records: tableName("records")}

	require.NoError(t, sqlite.Migrate(ctx, db, tables))
	require.NoError(t, sqlite.Migrate(ctx, db, tables))
	require.NoError(t, sqlite.ValidateSchema(ctx, db, tables))

	require.NoError(t, sqlite.DropTables(ctx, db, tables))
	err = sqlite.ValidateSchema(ctx, db, tables)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestValidateSchema_Mismatch(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(ctx, `CREATE TABLE "legacy_records" (class TEXT NOT NULL, id INTEGER, created_at TEXT NOT NULL)`)
	require.NoError(t, err)

	err = sqlite.ValidateSchema(ctx, db, affix.Tables{Records: "legacy_records"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing columns")
	assert.Contains(t, err.Error(), "attributes")
	assert.Contains(t, err.Error(), "id: expected text, got integer")
}
