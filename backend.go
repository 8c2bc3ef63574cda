package affix

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"
)

// Backend persists attachment blobs. Implementations may be shared by many
// attachments and must be safe for concurrent use.
type Backend interface {
	// Write stores f at key, overwriting any existing blob. Implementations
	// should carry f.ContentType into the stored object's metadata.
	Write(ctx context.Context, key string, f *File) error

	// Delete removes the blob at key. Deleting an absent key returns nil.
	Delete(ctx context.Context, key string) error

	// Rename moves the blob at oldKey to newKey. A missing source returns
	// nil. Non-atomic implementations must finish the copy before removing
	// the source.
	Rename(ctx context.Context, oldKey, newKey string) error

	// Exists reports whether a blob is stored at key.
	Exists(ctx context.Context, key string) (bool, error)

	// Open returns a reader for the blob at key, or ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Signer is implemented by backends that can issue time-limited URLs for
// private blobs.
type Signer interface {
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// BackendFactory resolves the backend for a newly constructed attachment.
// The attachment's name, record and options are set when it is called; the
// factory may keep a reference to compute per-record settings lazily.
type BackendFactory func(a *Attachment) (Backend, error)

// Registry maps backend identifiers to factories and transform names to
// transforms. Populate it at startup; it is read-only afterwards and needs no
// locking.
type Registry struct {
	backends   map[string]BackendFactory
	transforms map[string]Transform
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		backends:   make(map[string]BackendFactory),
		transforms: make(map[string]Transform),
	}
}

// RegisterBackend adds a backend factory under name.
func (r *Registry) RegisterBackend(name string, factory BackendFactory) {
	r.backends[name] = factory
}

// RegisterTransform adds a transform under name.
func (r *Registry) RegisterTransform(name string, t Transform) {
	r.transforms[name] = t
}

// BackendFactory returns the factory registered under name.
func (r *Registry) BackendFactory(name string) (BackendFactory, error) {
	f, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("backend %q: %w: not registered (known: %v)", name, ErrConfiguration, r.BackendNames())
	}
	return f, nil
}

// Transform returns the transform registered under name.
func (r *Registry) Transform(name string) (Transform, error) {
	t, ok := r.transforms[name]
	if !ok {
		return nil, fmt.Errorf("transform %q: %w: not registered", name, ErrConfiguration)
	}
	return t, nil
}

// BackendNames lists registered backend identifiers.
func (r *Registry) BackendNames() []string {
	return slices.Sorted(maps.Keys(r.backends))
}

// TransformNames lists registered transform names.
func (r *Registry) TransformNames() []string {
	return slices.Sorted(maps.Keys(r.transforms))
}
