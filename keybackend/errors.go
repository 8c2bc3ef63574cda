package keybackend

import "errors"

var (
	// ErrKeyNotFound is returned when the access key does not exist in the store.
	ErrKeyNotFound = errors.New("access key not found")
	// ErrNoSigningKey is returned when the store holds no key to sign URLs with.
	ErrNoSigningKey = errors.New("no signing key configured")
)
