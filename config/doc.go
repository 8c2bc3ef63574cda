// Package config provides configuration loading and validation for affix.
//
// The package handles YAML configuration files, environment variables, and CLI flags
// with automatic merging and validation using go-playground/validator.
//
// # Configuration Precedence
//
// Values are loaded in this order (later sources override earlier ones):
//
//  1. Default values
//  2. Configuration file(s) - multiple files merged left-to-right
//  3. Environment variables (AFFIX_ prefix)
//  4. CLI flags
//
// # Usage
//
//	cfg, err := config.Load([]string{"config.yaml"}, cmd.Flags())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctx = config.WithContext(ctx, cfg)
//
// # Attachments
//
// Attachment slots are declared per class:
//
//	attachments:
//	  user:
//	    avatar:
//	      backend: object_store
//	      default_style: medium
//	      styles:
//	        medium: {geometry: "300x300>"}
//	        thumb:  {geometry: "100x100#", format: jpg}
//
// Keys are case-insensitive, so class and style names are read lowercased.
//
// # Environments
//
// storage.object_store.environments holds per-environment overrides. The
// entry named by env is layered over the base settings once, at startup:
//
//	env: production
//	storage:
//	  object_store:
//	    bucket: media-dev
//	    environments:
//	      production:
//	        bucket: media-prod
package config
