// Package filesystem provides a local disk backend for affix attachments.
// Writes are atomic via temp file and rename, keys are sandboxed below an
// os.Root, and signed URLs are presigned for a configured base URL.
package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sagarc03/affix"
)

// Store provides file system storage operations.
type Store struct {
	root    *os.Root
	baseURL string
	creds   affix.Credentials
}

// Option configures a Store.
type Option func(*Store)

// WithSigning enables SignedURL: keys are served below baseURL and signed
// with creds.
func WithSigning(baseURL string, creds affix.Credentials) Option {
	return func(s *Store) {
		s.baseURL = strings.TrimSuffix(baseURL, "/")
		s.creds = creds
	}
}

// NewFileStorage creates a Store rooted at root. The root provides
// sandboxed file operations preventing path traversal.
func NewFileStorage(root *os.Root, opts ...Option) *Store {
	s := &Store{root: root}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Factory returns a backend factory sharing s between all attachments.
func Factory(s *Store) affix.BackendFactory {
	return func(*affix.Attachment) (affix.Backend, error) {
		return s, nil
	}
}

// Open opens a file for reading. Returns affix.ErrNotFound if the file does not exist.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !affix.IsValidKey(key) {
		return nil, fmt.Errorf("open %q: %w", key, affix.ErrInvalidInput)
	}

	f, err := s.root.Open(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, affix.ErrNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return f, nil
}

// Exists reports whether a regular file is stored at key.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !affix.IsValidKey(key) {
		return false, fmt.Errorf("exists %q: %w", key, affix.ErrInvalidInput)
	}

	info, err := s.root.Stat(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat file: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (n int, err error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// Write atomically writes f to key using a temp file and rename, creating
// intermediate directories as needed.
func (s *Store) Write(ctx context.Context, key string, f *affix.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !affix.IsValidKey(key) {
		return fmt.Errorf("write %q: %w", key, affix.ErrInvalidInput)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = src.Close() }()

	n, etag, err := s.writeFrom(ctx, key, src)
	if err != nil {
		return err
	}

	slog.Debug("file written", "key", key, "bytes", n, "etag", etag)
	return nil
}

func (s *Store) writeFrom(ctx context.Context, key string, content io.Reader) (int64, string, error) {
	tmpFile := tmpFileName()
	t, createErr := s.root.Create(tmpFile)
	if createErr != nil {
		return 0, "", fmt.Errorf("could not open temp file: %w", createErr)
	}

	success := false
	defer func() {
		if closeErr := t.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			slog.Warn("failed to close tmp file", "err", closeErr)
		}
		if !success {
			if rmErr := s.root.Remove(tmpFile); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				slog.Warn("failed to remove tmp file", "err", rmErr)
			}
		}
	}()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(h, t), &ctxReader{ctx: ctx, r: content})
	if err != nil {
		return 0, "", fmt.Errorf("could not copy file contents: %w", err)
	}

	if err := t.Sync(); err != nil {
		return 0, "", fmt.Errorf("could not sync written file: %w", err)
	}
	if err := t.Close(); err != nil {
		return 0, "", fmt.Errorf("could not close written file: %w", err)
	}

	if err := s.mkdirParent(key); err != nil {
		return 0, "", err
	}

	if err := s.root.Rename(tmpFile, key); err != nil {
		return 0, "", fmt.Errorf("failed to rename file: %w", err)
	}

	success = true
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// Delete removes the file at key and prunes directories left empty. A
// missing file is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !affix.IsValidKey(key) {
		return fmt.Errorf("delete %q: %w", key, affix.ErrInvalidInput)
	}

	if err := s.root.Remove(key); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("could not delete file: %w", err)
	}

	s.pruneEmptyDirs(key)
	return nil
}

// Rename moves oldKey to newKey. A missing source is not an error. When the
// move crosses devices the file is copied and the source removed only after
// the copy succeeded.
func (s *Store) Rename(ctx context.Context, oldKey, newKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !affix.IsValidKey(oldKey) || !affix.IsValidKey(newKey) {
		return fmt.Errorf("rename %q to %q: %w", oldKey, newKey, affix.ErrInvalidInput)
	}
	if oldKey == newKey {
		return nil
	}

	exists, err := s.Exists(ctx, oldKey)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	if err := s.mkdirParent(newKey); err != nil {
		return err
	}

	err = s.root.Rename(oldKey, newKey)
	if err == nil {
		s.pruneEmptyDirs(oldKey)
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("failed to rename file: %w", err)
	}

	slog.Debug("rename across devices, copying", "from", oldKey, "to", newKey)
	return s.copyThenDelete(ctx, oldKey, newKey)
}

func (s *Store) copyThenDelete(ctx context.Context, oldKey, newKey string) error {
	src, err := s.root.Open(oldKey)
	if err != nil {
		return fmt.Errorf("open rename source: %w", err)
	}

	_, _, copyErr := s.writeFrom(ctx, newKey, src)
	if closeErr := src.Close(); closeErr != nil {
		slog.Warn("failed to close file", "key", oldKey, "err", closeErr)
	}
	if copyErr != nil {
		return fmt.Errorf("copy %s: %w", oldKey, copyErr)
	}

	return s.Delete(ctx, oldKey)
}

// SignedURL presigns the URL of key below the configured base URL.
func (s *Store) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if s.baseURL == "" {
		return "", fmt.Errorf("signed url: %w: no base url configured", affix.ErrUnsupported)
	}
	if !affix.IsValidKey(key) {
		return "", fmt.Errorf("signed url %q: %w", key, affix.ErrInvalidInput)
	}

	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return affix.PresignURL(s.creds, http.MethodGet, s.baseURL+"/"+strings.Join(segments, "/"), ttl)
}

func (s *Store) mkdirParent(key string) error {
	dir := path.Dir(key)
	if dir == "." {
		return nil
	}
	if err := s.root.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create intermediate directories: %w", err)
	}
	return nil
}

// pruneEmptyDirs removes the now empty parents of key. Removal stops at the
// first directory that still has entries.
func (s *Store) pruneEmptyDirs(key string) {
	for dir := path.Dir(key); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if err := s.root.Remove(dir); err != nil {
			return
		}
	}
}

func tmpFileName() string {
	return fmt.Sprintf(".t%s", uuid.New().String())
}
