package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sagarc03/affix"
	"github.com/sagarc03/affix/database"
	affixhttp "github.com/sagarc03/affix/http"
	"github.com/sagarc03/affix/keybackend"
	"github.com/sagarc03/affix/objectstore"
)

// Backend names accepted by attachments.<class>.<slot>.backend.
const (
	BackendFilesystem  = "filesystem"
	BackendObjectStore = "object_store"
)

// configKey is the context key for storing the loaded configuration.
type configKey struct{}

// WithContext returns a new context with the config stored.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config from context.
// Returns an error if config is not found.
func FromContext(ctx context.Context) (*Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*Config)
	if !ok || cfg == nil {
		return nil, errors.New("config not found in context")
	}
	return cfg, nil
}

// Config is the root configuration struct for affix.
type Config struct {
	Env         string                `mapstructure:"env" validate:"required"`
	Server      ServerConfig          `mapstructure:"server"`
	Service     ServiceConfig         `mapstructure:"service"`
	Database    DatabaseConfig        `mapstructure:"database"`
	Storage     StorageConfig         `mapstructure:"storage"`
	Auth        AuthConfig            `mapstructure:"auth"`
	CORS        affixhttp.CORSConfig  `mapstructure:"cors"`
	Log         LogConfig             `mapstructure:"log"`
	Attachments map[string]SlotConfig `mapstructure:"attachments" validate:"dive,dive"`
}

// IsProduction reports whether env names a production deployment.
func (c *Config) IsProduction() bool {
	return c.Env == "prod" || c.Env == "production"
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port          int   `mapstructure:"port" validate:"required,min=1,max=65535"`
	MaxUploadSize int64 `mapstructure:"max_upload_size" validate:"min=0"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	CleanupTimeout int `mapstructure:"cleanup_timeout" validate:"min=1"`
}

// AttachmentConfig converts to the affix service configuration.
func (s ServiceConfig) AttachmentConfig() affix.ServiceConfig {
	return affix.ServiceConfig{CleanupTimeout: time.Duration(s.CleanupTimeout) * time.Second}
}

// DatabaseConfig holds record store configuration.
type DatabaseConfig struct {
	database.Config `mapstructure:",squash"`
	AutoMigrate     bool `mapstructure:"auto_migrate"`
}

// StorageConfig holds the settings of both storage backends.
type StorageConfig struct {
	Filesystem  FilesystemConfig  `mapstructure:"filesystem"`
	ObjectStore ObjectStoreConfig `mapstructure:"object_store"`
}

// FilesystemConfig holds local storage configuration.
type FilesystemConfig struct {
	Path string `mapstructure:"path" validate:"required"`
	// BaseURL enables signed URLs served by the files route.
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
}

// ObjectStoreConfig holds the bucket settings plus per-environment overrides.
type ObjectStoreConfig struct {
	objectstore.Config `mapstructure:",squash"`
	Environments       map[string]objectstore.Config `mapstructure:"environments"`
}

// Resolve returns the settings for env: non-empty fields of the matching
// environment override the base settings and headers are merged.
func (c ObjectStoreConfig) Resolve(env string) objectstore.Config {
	out := c.Config
	out.Headers = maps.Clone(c.Headers)

	override, ok := c.Environments[env]
	if !ok {
		return out
	}

	overrideString(&out.Endpoint, override.Endpoint)
	overrideString(&out.Region, override.Region)
	overrideString(&out.AccessKey, override.AccessKey)
	overrideString(&out.SecretKey, override.SecretKey)
	overrideString(&out.Bucket, override.Bucket)
	overrideString(&out.BucketEnv, override.BucketEnv)
	overrideString(&out.Protocol, override.Protocol)
	overrideString(&out.HostAlias, override.HostAlias)
	overrideString(&out.Permissions, override.Permissions)
	out.UseSSL = out.UseSSL || override.UseSSL
	out.PathStyle = out.PathStyle || override.PathStyle

	if len(override.Headers) > 0 {
		if out.Headers == nil {
			out.Headers = make(map[string]string, len(override.Headers))
		}
		maps.Copy(out.Headers, override.Headers)
	}

	return out
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// AWSConfig holds the signature scope used for signed URLs.
type AWSConfig struct {
	Region  string `mapstructure:"region" validate:"required"`
	Service string `mapstructure:"service" validate:"required"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Read  string                `mapstructure:"read" validate:"required,oneof=public private"`
	Write string                `mapstructure:"write" validate:"required,oneof=public private"`
	AWS   AWSConfig             `mapstructure:"aws"`
	Keys  keybackend.KeysConfig `mapstructure:"keys"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}

// SlotConfig maps slot names of one class to their attachment settings.
type SlotConfig map[string]AttachmentConfig

// AttachmentConfig describes one attachment slot.
type AttachmentConfig struct {
	Backend      string                        `mapstructure:"backend" validate:"required,oneof=filesystem object_store"`
	Styles       map[string]affix.StyleOptions `mapstructure:"styles"`
	DefaultStyle string                        `mapstructure:"default_style"`
	Path         string                        `mapstructure:"path"`
	URL          string                        `mapstructure:"url"`
	DefaultURL   string                        `mapstructure:"default_url"`
}

// Options converts the slot settings to attachment options.
func (a AttachmentConfig) Options() affix.Options {
	return affix.Options{
		Backend:      a.Backend,
		Styles:       a.Styles,
		DefaultStyle: a.DefaultStyle,
		Path:         a.Path,
		URL:          a.URL,
		DefaultURL:   a.DefaultURL,
	}
}

// ClassOptions converts every configured slot to attachment options.
func (c *Config) ClassOptions() affix.ClassOptions {
	classes := make(affix.ClassOptions, len(c.Attachments))
	for class, slots := range c.Attachments {
		opts := make(map[string]affix.Options, len(slots))
		for slot, a := range slots {
			opts[slot] = a.Options()
		}
		classes[class] = opts
	}
	return classes
}

// UsesBackend reports whether any slot is stored on backend.
func (c *Config) UsesBackend(backend string) bool {
	for _, slots := range c.Attachments {
		for _, a := range slots {
			if a.Backend == backend {
				return true
			}
		}
	}
	return false
}

// flagToViperKey maps CLI flag names to viper configuration keys.
var flagToViperKey = map[string]string{
	"env":          "env",
	"db-type":      "database.type",
	"db-dsn":       "database.dsn",
	"storage-path": "storage.filesystem.path",
	"base-url":     "storage.filesystem.base_url",
	"port":         "server.port",
	"log-level":    "log.level",
}

// bindFlags binds CLI flags to viper keys with custom name mapping.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		viperKey := f.Name
		if mapped, ok := flagToViperKey[viperKey]; ok {
			viperKey = mapped
		}

		// Only bind if the flag was explicitly set
		if f.Changed {
			_ = v.BindPFlag(viperKey, f)
		}
	})
}

// setDefaults configures default values on the viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("server.port", 5708)
	v.SetDefault("server.max_upload_size", 0) // 0 means no limit

	v.SetDefault("service.cleanup_timeout", 30) // seconds

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "affix.db")
	v.SetDefault("database.tables.records", "affix_records")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.filesystem.path", "./data")

	v.SetDefault("storage.object_store.endpoint", objectstore.DefaultEndpoint)
	v.SetDefault("storage.object_store.protocol", objectstore.DefaultProtocol)
	v.SetDefault("storage.object_store.permissions", objectstore.DefaultPermissions)

	v.SetDefault("auth.read", "public")
	v.SetDefault("auth.write", "private")
	v.SetDefault("auth.aws.region", "us-east-1")
	v.SetDefault("auth.aws.service", "s3")

	v.SetDefault("log.level", "info")
}

// Load reads configuration and returns a validated Config struct.
// Order of precedence (highest to lowest): flags > env > config files > defaults
//
// Parameters:
//   - configFiles: list of config file paths (later files override earlier ones)
//   - flags: cobra flag set for flag binding (can be nil)
func Load(configFiles []string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if len(configFiles) > 0 {
		v.SetConfigFile(configFiles[0])
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("error reading config file", "file", configFiles[0], "err", err)
		}

		for _, cf := range configFiles[1:] {
			v.SetConfigFile(cf)
			if err := v.MergeInConfig(); err != nil {
				slog.Warn("error merging config file", "file", cf, "err", err)
			}
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				slog.Warn("error reading config file", "err", err)
			}
		}
	}

	v.SetEnvPrefix("AFFIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		bindFlags(v, flags)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if err := cfg.Database.Tables.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	for class, slots := range cfg.ClassOptions() {
		for slot, opts := range slots {
			if err := opts.WithDefaults().Validate(); err != nil {
				return nil, fmt.Errorf("validate config: attachments.%s.%s: %w", class, slot, err)
			}
		}
	}

	if cfg.Storage.Filesystem.BaseURL != "" && cfg.Auth.AWS.Service != "s3" {
		return nil, fmt.Errorf("validate config: storage.filesystem.base_url: signed urls require auth.aws.service s3, got %q", cfg.Auth.AWS.Service)
	}

	if cfg.UsesBackend(BackendObjectStore) {
		if err := cfg.ObjectStore().Validate(); err != nil {
			return nil, fmt.Errorf("validate config: %w", err)
		}
	}

	return &cfg, nil
}

// ObjectStore returns the object store settings resolved for Env.
func (c *Config) ObjectStore() objectstore.Config {
	return c.Storage.ObjectStore.Resolve(c.Env)
}
