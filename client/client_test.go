package client_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/affix"
	"github.com/sagarc03/affix/client"
	"github.com/sagarc03/affix/database"
	"github.com/sagarc03/affix/filesystem"
	affixhttp "github.com/sagarc03/affix/http"
	"github.com/sagarc03/affix/keybackend"
	"github.com/sagarc03/affix/processor"
)

const (
	testAccessKey = "AKIATEST"
	testSecretKey = "testsecret"
)

var user42 = affix.RecordRef{Class: "user", ID: "42"}

// startServer runs the full handler stack on sqlite and a temp directory.
// Reads and writes both require a signature.
func startServer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	db, err := database.Connect(ctx, database.Config{
		Type:   "sqlite",
		DSN:    ":memory:",
		Tables: affix.Tables{Records: "records"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))

	root, err := os.OpenRoot(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = root.Close() })
	store := filesystem.NewFileStorage(root)

	reg := affix.NewRegistry()
	reg.RegisterBackend("filesystem", filesystem.Factory(store))
	processor.Register(reg)

	classes := affix.ClassOptions{
		"user": {
			"avatar": {Backend: "filesystem", Styles: map[string]affix.StyleOptions{"thumb": {Geometry: "8x8#", Format: "png"}}},
			"resume": {Backend: "filesystem"},
		},
	}
	svc, err := affix.NewAttachmentService(db.GetRepo(), reg, classes, affix.ServiceConfig{})
	require.NoError(t, err)

	keys := keybackend.NewMapSecretStore(map[string]string{testAccessKey: testSecretKey})
	verifier := affix.NewSignatureVerifier("us-east-1", "s3", keys.Find)

	handler := affixhttp.NewHandler(&affixhttp.HandlerConfig{
		ReadVerifier:  verifier,
		WriteVerifier: verifier,
	}, svc)

	server := httptest.NewServer(handler.Router())
	t.Cleanup(server.Close)
	return server.URL
}

func newClient(t *testing.T, endpoint string) *client.Client {
	t.Helper()
	c, err := client.New(&client.Config{
		Endpoint:  endpoint,
		AccessKey: testAccessKey,
		SecretKey: testSecretKey,
	})
	require.NoError(t, err)
	return c
}

func writePNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	path := filepath.Join(dir, "me.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *client.Config
		wantErr error
	}{
		{name: "nil config", cfg: nil, wantErr: client.ErrConfigRequired},
		{name: "defaults", cfg: &client.Config{}},
		{name: "missing secret", cfg: &client.Config{AccessKey: "AKIA"}, wantErr: client.ErrSecretKeyRequired},
		{name: "signed", cfg: &client.Config{Endpoint: "http://localhost:5708/", AccessKey: "AKIA", SecretKey: "s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := client.New(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := client.Config{Endpoint: "http://files.example.com/"}.WithDefaults()
	assert.Equal(t, "http://files.example.com", cfg.Endpoint)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, "s3", cfg.Service)

	assert.Equal(t, client.DefaultEndpoint, client.Config{}.WithDefaults().Endpoint)
}

func TestClient_AttachLifecycle(t *testing.T) {
	endpoint := startServer(t)
	c := newClient(t, endpoint)
	ctx := context.Background()

	path := writePNG(t, t.TempDir(), 20, 10)

	info, err := c.Attach(ctx, user42, "avatar", path)
	require.NoError(t, err)
	assert.True(t, info.Present)
	assert.Equal(t, "me.png", info.FileName)
	assert.Equal(t, "image/png", info.ContentType)
	assert.Equal(t, "/system/avatars/42/thumb/me.png", info.Styles["thumb"])

	got, err := c.Get(ctx, user42, "avatar")
	require.NoError(t, err)
	assert.Equal(t, info.FileSize, got.FileSize)

	rc, contentType, err := c.Download(ctx, user42, "avatar", "thumb")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)

	thumb, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 8), thumb.Bounds())

	rec, err := c.Record(ctx, user42)
	require.NoError(t, err)
	assert.Equal(t, "42", rec.ID)
	require.Len(t, rec.Attachments, 2)

	records, err := c.List(ctx, "user")
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NoError(t, c.Detach(ctx, user42, "avatar"))

	got, err = c.Get(ctx, user42, "avatar")
	require.NoError(t, err)
	assert.False(t, got.Present)
	assert.Equal(t, "/avatars/thumb/missing.png", got.Styles["thumb"])

	_, _, err = c.Download(ctx, user42, "avatar", "original")
	assert.ErrorIs(t, err, client.ErrNotFound)

	require.NoError(t, c.Delete(ctx, user42))
	_, err = c.Record(ctx, user42)
	assert.ErrorIs(t, err, client.ErrNotFound)
}

func TestClient_AttachReader(t *testing.T) {
	endpoint := startServer(t)
	c := newClient(t, endpoint)
	ctx := context.Background()

	info, err := c.AttachReader(ctx, user42, "resume", "cv.txt", bytes.NewReader([]byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, "cv.txt", info.FileName)
	assert.EqualValues(t, 5, info.FileSize)

	rc, _, err := c.Download(ctx, user42, "resume", "")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestClient_Errors(t *testing.T) {
	endpoint := startServer(t)
	ctx := context.Background()

	t.Run("unsigned requests are rejected", func(t *testing.T) {
		anon, err := client.New(&client.Config{Endpoint: endpoint})
		require.NoError(t, err)

		_, err = anon.Get(ctx, user42, "avatar")
		assert.ErrorIs(t, err, client.ErrUnauthorized)
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		bad, err := client.New(&client.Config{Endpoint: endpoint, AccessKey: testAccessKey, SecretKey: "nope"})
		require.NoError(t, err)

		_, err = bad.Get(ctx, user42, "avatar")
		assert.ErrorIs(t, err, client.ErrUnauthorized)
	})

	t.Run("unknown slot", func(t *testing.T) {
		_, err := newClient(t, endpoint).Get(ctx, user42, "banner")
		assert.ErrorIs(t, err, client.ErrInvalidInput)
	})

	t.Run("filesystem without base url cannot sign", func(t *testing.T) {
		c := newClient(t, endpoint)
		_, err := c.AttachReader(ctx, user42, "resume", "cv.txt", bytes.NewReader([]byte("hi")))
		require.NoError(t, err)

		_, err = c.SignedURL(ctx, user42, "resume", "", time.Minute)
		assert.ErrorIs(t, err, client.ErrUnsupported)

		var apiErr *client.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "unsupported", apiErr.Code)
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := newClient(t, endpoint).Attach(ctx, user42, "resume", "")
		assert.ErrorIs(t, err, client.ErrEmptyPath)
	})
}

func TestAPIError(t *testing.T) {
	err := &client.APIError{StatusCode: http.StatusNotFound, Code: "not_found", Message: "Not found"}
	assert.Equal(t, "server error: 404 not_found - Not found", err.Error())
	assert.ErrorIs(t, err, client.ErrNotFound)
	assert.NotErrorIs(t, err, client.ErrUnauthorized)
}
