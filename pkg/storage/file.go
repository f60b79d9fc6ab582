package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// FileStore keeps one file per key under a root directory. Writes go through
// a temporary file followed by a rename so that a crash mid-write can never
// leave a torn value behind.
type FileStore struct {
	root   string
	logger *logrus.Logger
}

// FileOptions contains configuration options for FileStore.
type FileOptions struct {
	// Root is the directory holding the value files. Created if missing.
	Root   string
	Logger *logrus.Logger
}

// NewFileStore creates a FileStore rooted at opts.Root.
func NewFileStore(opts FileOptions) (*FileStore, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Root == "" {
		return nil, fmt.Errorf("file store root directory is required")
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{root: opts.Root, logger: opts.Logger}, nil
}

// path maps a key to a file path. Keys contain "/" and ":" so they are
// escaped into a flat, filesystem-safe name.
func (s *FileStore) path(key string) string {
	return filepath.Join(s.root, url.QueryEscape(key))
}

// Store writes value under key atomically (temp file + rename).
func (s *FileStore) Store(ctx context.Context, key string, value []byte) error {
	target := s.path(key)

	tmp, err := os.CreateTemp(s.root, ".settsync-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file for %q: %w", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %q: %w", key, err)
	}

	s.logger.WithFields(logrus.Fields{"key": key, "bytes": len(value)}).Debug("Stored value on disk")
	return nil
}

// Retrieve reads the value under key, or (nil, nil) if the file is absent.
func (s *FileStore) Retrieve(ctx context.Context, key string) ([]byte, error) {
	value, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return value, nil
}
