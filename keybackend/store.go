package keybackend

import "maps"

// KeysConfig holds configuration for loading access keys.
type KeysConfig struct {
	Inline  []KeyPair `mapstructure:"inline"`  // Inline key pairs from config
	File    string    `mapstructure:"file"`    // Path to a JSON or YAML file of key pairs
	Signing string    `mapstructure:"signing"` // Access key used to presign URLs
}

// NewSecretStore creates a store from the given configuration.
// It loads keys from both inline config and file (if specified),
// merging them into a single store. File keys take precedence over inline keys
// if there are duplicates.
func NewSecretStore(cfg KeysConfig) (*MapSecretStore, error) {
	keys := pairsToMap(cfg.Inline)

	if cfg.File != "" {
		fileKeys, err := LoadKeysFromFile(cfg.File)
		if err != nil {
			return nil, err
		}
		maps.Copy(keys, fileKeys)
	}

	store := NewMapSecretStore(keys)
	store.signing = cfg.Signing
	return store, nil
}
