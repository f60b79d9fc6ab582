package main

import (
	"context"
	"crypto/x509"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/settsync/settsync/internal/config"
	"github.com/settsync/settsync/pkg/client"
	"github.com/settsync/settsync/pkg/signatures"
	"github.com/settsync/settsync/pkg/storage"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "settsync",
		Short: "settsync - Synchronize signed remote settings collections",
		Long: `settsync fetches a signed, versioned collection of JSON records from a
remote settings server, verifies its content signature, caches the verified
snapshot locally, and prints the records.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		RunE:    runSync,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringP("server", "s", client.DefaultServerURL, "Settings server base URL")
	rootCmd.PersistentFlags().StringP("bucket", "b", client.DefaultBucketName, "Bucket name")
	rootCmd.PersistentFlags().StringP("collection", "", "", "Collection name (required)")
	rootCmd.PersistentFlags().StringP("storage", "", "memory", "Storage backend (dummy, memory, file, badger, pebble, sqlite, s3)")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "", "Data directory or database path for disk-backed storage")
	rootCmd.PersistentFlags().StringP("log-level", "", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Uint64P("expected", "e", 0, "Known collection timestamp; skips the monitor round trip")
	rootCmd.PersistentFlags().BoolP("no-verify", "", false, "Disable signature verification")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogging(cfg.LogLevel)

	store, cleanup, err := buildStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to set up storage: %w", err)
	}
	defer cleanup()

	verifier, err := buildVerifier(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to set up verifier: %w", err)
	}

	c, err := client.NewBuilder().
		ServerURL(cfg.Server).
		BucketName(cfg.Bucket).
		CollectionName(cfg.Collection).
		Verifier(verifier).
		Storage(store).
		Logger(logger).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		logger.Info("Received shutdown signal")
		cancel()
	}()

	var collection *client.Collection
	if expected, _ := cmd.Flags().GetUint64("expected"); expected > 0 {
		collection, err = c.SyncAt(ctx, expected)
	} else {
		collection, err = c.Sync(ctx)
	}
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"bucket":     collection.Bucket,
		"collection": collection.Collection,
		"timestamp":  collection.Timestamp,
		"records":    len(collection.Records),
	}).Info("Sync complete")

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(collection.Records)
}

func buildStorage(cfg *config.Config, logger *logrus.Logger) (storage.Store, func(), error) {
	noop := func() {}

	switch cfg.Storage.Backend {
	case "dummy":
		return storage.NewDummyStore(), noop, nil
	case "memory":
		return storage.NewMemoryStore(), noop, nil
	case "file":
		store, err := storage.NewFileStore(storage.FileOptions{Root: cfg.Storage.Path, Logger: logger})
		return store, noop, err
	case "badger":
		store, err := storage.NewBadgerStore(storage.BadgerOptions{DataDir: cfg.Storage.Path, SyncWrites: true, Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case "pebble":
		store, err := storage.NewPebbleStore(storage.PebbleOptions{DataDir: cfg.Storage.Path, Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.Storage.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		store, err := storage.NewSQLiteStore(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, func() { db.Close() }, nil
	case "s3":
		store, err := storage.NewS3Store(storage.S3Options{
			Endpoint:  cfg.Storage.S3Endpoint,
			Region:    cfg.Storage.S3Region,
			AccessKey: cfg.Storage.S3AccessKey,
			SecretKey: cfg.Storage.S3SecretKey,
			Bucket:    cfg.Storage.S3Bucket,
			Prefix:    cfg.Storage.S3Prefix,
			Logger:    logger,
		})
		return store, noop, err
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func buildVerifier(cfg *config.Config, logger *logrus.Logger) (client.Verification, error) {
	if cfg.Verify.Disable {
		logger.Warn("Signature verification disabled")
		return signatures.NewNoopVerifier(), nil
	}

	var roots *x509.CertPool
	if cfg.Verify.RootsFile != "" {
		pemBytes, err := os.ReadFile(cfg.Verify.RootsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read roots file: %w", err)
		}
		roots = x509.NewCertPool()
		if !roots.AppendCertsFromPEM(pemBytes) {
			return nil, fmt.Errorf("no certificate found in roots file %q", cfg.Verify.RootsFile)
		}
	}

	return signatures.NewContentSignatureVerifier(signatures.ContentSignatureOptions{
		Roots:  roots,
		Logger: logger,
	}), nil
}

func setupLogging(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	switch level {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	return logger
}
