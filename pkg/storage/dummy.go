package storage

import "context"

// DummyStore discards every write and reports every key as absent. With this
// store each read of the client returns nothing and each sync performs a full
// fetch. It is the default store of the client builder.
type DummyStore struct{}

// NewDummyStore creates a DummyStore.
func NewDummyStore() *DummyStore { return &DummyStore{} }

// Store discards the value.
func (s *DummyStore) Store(ctx context.Context, key string, value []byte) error { return nil }

// Retrieve always reports the key as absent.
func (s *DummyStore) Retrieve(ctx context.Context, key string) ([]byte, error) { return nil, nil }
