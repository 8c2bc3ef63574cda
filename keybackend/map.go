// Package keybackend provides the access key store used to sign and verify
// attachment URLs.
package keybackend

import (
	"fmt"
	"slices"

	"github.com/sagarc03/affix"
)

// MapSecretStore retrieves keys from an in-memory map.
// Suitable for configuration file-based key storage.
type MapSecretStore struct {
	keys    map[string]string
	signing string
}

// NewMapSecretStore creates a new map-based secret store with the given access key to secret key mapping.
func NewMapSecretStore(keys map[string]string) *MapSecretStore {
	return &MapSecretStore{keys: keys}
}

// Lookup retrieves the secret key for the given access key from the map.
func (s *MapSecretStore) Lookup(accessKey string) (string, error) {
	secretKey, found := s.keys[accessKey]
	if !found {
		return "", fmt.Errorf("lookup %q: %w: %w", accessKey, ErrKeyNotFound, affix.ErrUnauthorized)
	}
	return secretKey, nil
}

// Find is Lookup in the shape expected by affix.NewSignatureVerifier.
func (s *MapSecretStore) Find(accessKey string) (string, bool) {
	secretKey, err := s.Lookup(accessKey)
	return secretKey, err == nil
}

// Len returns the number of stored keys.
func (s *MapSecretStore) Len() int {
	return len(s.keys)
}

// SigningKey returns the pair used to presign URLs: the configured signing
// key when set, otherwise the lexically first access key.
func (s *MapSecretStore) SigningKey() (KeyPair, error) {
	if s.signing != "" {
		secretKey, err := s.Lookup(s.signing)
		if err != nil {
			return KeyPair{}, fmt.Errorf("signing key: %w", err)
		}
		return KeyPair{AccessKey: s.signing, SecretKey: secretKey}, nil
	}

	if len(s.keys) == 0 {
		return KeyPair{}, ErrNoSigningKey
	}

	accessKeys := make([]string, 0, len(s.keys))
	for k := range s.keys {
		accessKeys = append(accessKeys, k)
	}
	slices.Sort(accessKeys)

	return KeyPair{AccessKey: accessKeys[0], SecretKey: s.keys[accessKeys[0]]}, nil
}

// Credentials returns the signing key as affix credentials for region and service.
func (s *MapSecretStore) Credentials(region, service string) (affix.Credentials, error) {
	pair, err := s.SigningKey()
	if err != nil {
		return affix.Credentials{}, err
	}
	return affix.Credentials{
		AccessKey: pair.AccessKey,
		SecretKey: pair.SecretKey,
		Region:    region,
		Service:   service,
	}, nil
}
