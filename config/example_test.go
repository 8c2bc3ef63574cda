package config_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/sagarc03/affix/config"
)

func ExampleLoad() {
	dir, err := os.MkdirTemp("", "affix-example")
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	path := filepath.Join(dir, "affix.yaml")
	err = os.WriteFile(path, []byte(`
attachments:
  user:
    avatar:
      backend: filesystem
      styles:
        thumb:
          geometry: 64x64#
`), 0o600)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.Load([]string{path}, nil)
	if err != nil {
		log.Fatal(err)
	}

	avatar := cfg.ClassOptions()["user"]["avatar"]
	fmt.Println(cfg.Server.Port, avatar.Backend, avatar.Styles["thumb"].Geometry)
	// Output: 5708 filesystem 64x64#
}

func ExampleFromContext() {
	cfg, err := config.Load(nil, nil)
	if err != nil {
		log.Fatal(err)
	}

	got, err := config.FromContext(config.WithContext(context.Background(), cfg))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(got.Env)
	// Output: development
}
