package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/sagarc03/affix"
	"github.com/sagarc03/affix/config"
	"github.com/sagarc03/affix/database"
	"github.com/sagarc03/affix/filesystem"
	"github.com/sagarc03/affix/keybackend"
	"github.com/sagarc03/affix/objectstore"
	"github.com/sagarc03/affix/processor"
)

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	db      database.Database
	keys    *keybackend.MapSecretStore
	files   *filesystem.Store
	service *affix.AttachmentService

	root *os.Root
}

// openApp connects the database, opens the configured storage backends and
// builds the attachment service. Close must be called on success.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open(ctx context.Context) error {
	cfg := a.cfg

	db, err := database.Connect(ctx, cfg.Database.Config)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.db = db

	if err = db.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err = db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		slog.Debug("database migration complete")
	}

	if err = db.Validate(ctx); err != nil {
		return fmt.Errorf("validate database schema: %w", err)
	}
	slog.Debug("connected to database", "type", cfg.Database.Type)

	a.keys, err = keybackend.NewSecretStore(cfg.Auth.Keys)
	if err != nil {
		return fmt.Errorf("load access keys: %w", err)
	}

	reg := affix.NewRegistry()
	processor.Register(reg)

	if cfg.UsesBackend(config.BackendFilesystem) {
		if err = a.openFilesystem(); err != nil {
			return err
		}
		reg.RegisterBackend(config.BackendFilesystem, filesystem.Factory(a.files))
	}

	if cfg.UsesBackend(config.BackendObjectStore) {
		osCfg := cfg.ObjectStore()
		client, err := objectstore.NewClient(osCfg)
		if err != nil {
			return err
		}
		store, err := objectstore.New(client, osCfg)
		if err != nil {
			return err
		}
		reg.RegisterBackend(config.BackendObjectStore, objectstore.Factory(store))
		slog.Debug("object store configured", "endpoint", osCfg.Endpoint, "env", cfg.Env)
	}

	a.service, err = affix.NewAttachmentService(db.GetRepo(), reg, cfg.ClassOptions(), cfg.Service.AttachmentConfig())
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	return nil
}

func (a *app) openFilesystem() error {
	fsCfg := a.cfg.Storage.Filesystem

	if err := os.MkdirAll(fsCfg.Path, 0o750); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}

	root, err := os.OpenRoot(fsCfg.Path)
	if err != nil {
		return fmt.Errorf("open storage root: %w", err)
	}
	a.root = root

	var opts []filesystem.Option
	if fsCfg.BaseURL != "" {
		creds, err := a.keys.Credentials(a.cfg.Auth.AWS.Region, a.cfg.Auth.AWS.Service)
		if err != nil {
			return fmt.Errorf("storage.filesystem.base_url: %w", err)
		}
		opts = append(opts, filesystem.WithSigning(fsCfg.BaseURL, creds))
	}

	a.files = filesystem.NewFileStorage(root, opts...)
	slog.Debug("filesystem storage opened", "path", fsCfg.Path, "signing", fsCfg.BaseURL != "")
	return nil
}

// verifier returns the request verifier backed by the configured keys.
func (a *app) verifier() *affix.SignatureVerifier {
	return affix.NewSignatureVerifier(a.cfg.Auth.AWS.Region, a.cfg.Auth.AWS.Service, a.keys.Find)
}

func (a *app) Close() {
	if a.root != nil {
		_ = a.root.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Warn("close database", "err", err)
		}
	}
}

// parseRef builds a record reference from positional arguments.
func parseRef(class, id string) (affix.RecordRef, error) {
	ref := affix.RecordRef{Class: class, ID: id}
	if class == "" || id == "" {
		return ref, errors.New("class and id are required")
	}
	return ref, nil
}
