// Package config loads the settsync CLI configuration from flags, an
// optional config file, and environment variables.
package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/settsync/settsync/pkg/client"
)

// Config holds all configuration for the settsync CLI.
type Config struct {
	// Server is the settings server base URL.
	Server     string `mapstructure:"server"`
	Bucket     string `mapstructure:"bucket"`
	Collection string `mapstructure:"collection"`
	LogLevel   string `mapstructure:"log_level"`

	Storage StorageConfig `mapstructure:"storage"`
	Verify  VerifyConfig  `mapstructure:"verify"`
}

// StorageConfig selects and configures the snapshot store.
type StorageConfig struct {
	// Backend is one of: dummy, memory, file, badger, pebble, sqlite, s3.
	Backend string `mapstructure:"backend"`
	// Path is the data directory (file, badger, pebble) or database file
	// (sqlite) of the chosen backend.
	Path string `mapstructure:"path"`

	// S3 backend settings.
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3Region    string `mapstructure:"s3_region"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Prefix    string `mapstructure:"s3_prefix"`
}

// VerifyConfig configures signature verification.
type VerifyConfig struct {
	// Disable switches to the no-op verifier. Snapshots are accepted without
	// any signature check.
	Disable bool `mapstructure:"disable"`
	// RootsFile pins the trust anchors to a PEM bundle on disk.
	RootsFile string `mapstructure:"roots_file"`
}

// Load loads configuration from flags, the optional config file, and
// SETTSYNC_* environment variables.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("SETTSYNC")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server", client.DefaultServerURL)
	v.SetDefault("bucket", client.DefaultBucketName)
	// NO default for collection - must be explicitly configured
	v.SetDefault("log_level", "info")

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.s3_region", "us-east-1")

	v.SetDefault("verify.disable", false)
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"server":     "server",
		"bucket":     "bucket",
		"collection": "collection",
		"log-level":  "log_level",
		"storage":    "storage.backend",
		"data-dir":   "storage.path",
		"no-verify":  "verify.disable",
	}

	for flag, key := range flags {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	return nil
}

func validate(cfg *Config) error {
	if cfg.Collection == "" {
		return fmt.Errorf("collection is required: specify via --collection flag, config file, or SETTSYNC_COLLECTION environment variable")
	}

	switch cfg.Storage.Backend {
	case "dummy", "memory":
	case "file", "badger", "pebble", "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the %s backend", cfg.Storage.Backend)
		}
	case "s3":
		if cfg.Storage.S3Bucket == "" {
			return fmt.Errorf("storage.s3_bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	return nil
}
