package affix

import "errors"

var (
	// ErrNotFound is returned when a blob or record does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized is returned when signature verification fails
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConfiguration is returned when options cannot be resolved at construction
	ErrConfiguration = errors.New("configuration error")
	// ErrProcessing is returned when a style transform fails
	ErrProcessing = errors.New("processing error")
	// ErrStorage is returned when a backend write, delete or rename fails
	ErrStorage = errors.New("storage error")
	// ErrUnsupported is returned when a backend lacks an optional capability
	ErrUnsupported = errors.New("unsupported")
)
