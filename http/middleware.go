package http

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/sagarc03/affix"
)

// RequestVerifier checks the signature of a request.
// *affix.SignatureVerifier satisfies it.
type RequestVerifier interface {
	Verify(method, path string, query url.Values, headers http.Header) error
}

// AuthMiddleware creates middleware that enforces AWS Signature V4 authentication.
// Pass nil to disable authentication (public access).
func AuthMiddleware(verifier RequestVerifier) func(http.Handler) http.Handler {
	if verifier == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Go stores Host separately from Header
			headers := r.Header.Clone()
			headers.Set("Host", r.Host)

			if err := verifier.Verify(r.Method, r.URL.Path, r.URL.Query(), headers); err != nil {
				HandleError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// KeyValidationMiddleware rejects file requests whose key below prefix is
// not a valid storage key.
func KeyValidationMiddleware(prefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimPrefix(r.URL.Path, prefix)

			if !affix.IsValidKey(key) {
				WriteError(w, http.StatusBadRequest, "invalid_key", "Invalid key format")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
