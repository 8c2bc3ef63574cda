package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
)

// Errors for configuration and input validation.
var (
	ErrConfigRequired    = errors.New("config is required")
	ErrEndpointRequired  = errors.New("endpoint is required")
	ErrSecretKeyRequired = errors.New("secret key is required")
	ErrEmptyPath         = errors.New("path is required")
)

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	msg := "server error: " + strconv.Itoa(e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += " - " + e.Message
	}
	return msg
}

// Is reports whether target matches this error.
// It matches if target is an *APIError with the same StatusCode.
func (e *APIError) Is(target error) bool {
	var t *APIError
	if !errors.As(target, &t) {
		return false
	}
	return t.StatusCode == e.StatusCode
}

// Sentinel errors for common API error conditions.
// Use errors.Is() to check for these conditions.
var (
	// ErrNotFound is returned when the record, slot or file does not exist (404).
	ErrNotFound = &APIError{StatusCode: http.StatusNotFound}

	// ErrInvalidInput is returned for rejected requests (400).
	ErrInvalidInput = &APIError{StatusCode: http.StatusBadRequest}

	// ErrUnauthorized is returned when the signature is missing or invalid (401).
	ErrUnauthorized = &APIError{StatusCode: http.StatusUnauthorized}

	// ErrUnsupported is returned when the backend cannot serve the request,
	// for example signing URLs without a base URL (501).
	ErrUnsupported = &APIError{StatusCode: http.StatusNotImplemented}
)

// parseServerError extracts the error code and message from a response body.
func parseServerError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Code = payload.Error
		apiErr.Message = payload.Message
	} else {
		apiErr.Message = string(body)
	}

	return apiErr
}
