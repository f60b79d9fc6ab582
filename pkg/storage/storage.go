// Package storage defines the byte-level key/value contract used to persist
// verified collection snapshots, together with several backends: in-memory,
// on-disk files, BadgerDB, Pebble, SQLite, S3-compatible object storage, and
// a no-op store.
package storage

import "context"

// Store persists opaque byte values under opaque string keys.
//
// Store is a complete replacement of the previous value; a partially written
// value must never be observable. Retrieve returns (nil, nil) for an absent
// key, distinct from an error. Single-key operations are atomic from the
// caller's perspective; there are no ordering guarantees across keys.
type Store interface {
	// Store writes value under key, replacing any previous value.
	Store(ctx context.Context, key string, value []byte) error

	// Retrieve reads the value stored under key. Absent keys yield (nil, nil).
	Retrieve(ctx context.Context, key string) ([]byte, error)
}
