package storage

import (
	"context"
	"errors"
	"fmt"

	pebble "github.com/cockroachdb/pebble/v2"
	"github.com/sirupsen/logrus"
)

// PebbleStore implements Store on top of an embedded Pebble instance. It
// offers the same surface as BadgerStore so hosts can switch engines without
// touching the client.
type PebbleStore struct {
	db     *pebble.DB
	logger *logrus.Logger
}

// PebbleOptions contains configuration options for PebbleStore.
type PebbleOptions struct {
	// DataDir is the directory holding the Pebble files.
	DataDir string
	Logger  *logrus.Logger
}

// NewPebbleStore opens (creating if necessary) a Pebble-backed store.
// The caller owns the store and must Close it.
func NewPebbleStore(opts PebbleOptions) (*PebbleStore, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	db, err := pebble.Open(opts.DataDir, &pebble.Options{
		Logger: &pebbleLogger{logger: opts.Logger},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}

	opts.Logger.WithField("path", opts.DataDir).Info("Pebble store initialized")
	return &PebbleStore{db: db, logger: opts.Logger}, nil
}

// Store writes value under key, synced to the WAL.
func (s *PebbleStore) Store(ctx context.Context, key string, value []byte) error {
	if err := s.db.Set([]byte(key), value, pebble.Sync); err != nil {
		return fmt.Errorf("failed to store %q: %w", key, err)
	}
	return nil
}

// Retrieve reads the value under key, or (nil, nil) if absent.
func (s *PebbleStore) Retrieve(ctx context.Context, key string) ([]byte, error) {
	value, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve %q: %w", key, err)
	}
	defer closer.Close()

	buf := make([]byte, len(value))
	copy(buf, value)
	return buf, nil
}

// Close releases the underlying database.
func (s *PebbleStore) Close() error {
	return s.db.Close()
}

// pebbleLogger routes Pebble's internal logging through logrus.
type pebbleLogger struct {
	logger *logrus.Logger
}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf("pebble: "+format, args...)
}

func (l *pebbleLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf("pebble: "+format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatalf("pebble: "+format, args...)
}

var _ Store = (*PebbleStore)(nil)
