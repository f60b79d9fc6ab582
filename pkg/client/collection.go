package client

import (
	"context"

	"github.com/settsync/settsync/pkg/kinto"
)

// Record is one settings entry. It is an opaque JSON object; only "id" and
// "deleted" carry meaning for this library.
type Record = kinto.Record

// Collection is the locally persisted, verified state of one server
// collection at one timestamp.
//
// The JSON field names ("bid", "cid") are the persisted wire format; caches
// written by other implementations of this protocol stay readable.
//
// Invariants of a stored collection: no record is a tombstone, record ids are
// pairwise distinct, and the verifier accepted the records against Metadata
// before the bytes were written.
type Collection struct {
	Bucket     string                 `json:"bid"`
	Collection string                 `json:"cid"`
	Metadata   map[string]interface{} `json:"metadata"`
	Records    []Record               `json:"records"`
	Timestamp  uint64                 `json:"timestamp"`
}

// Verification is the gate over a candidate snapshot. Implementations consume
// the snapshot's metadata (signing material, typically an x5u certificate
// chain URL plus a detached signature) and the records.
//
// Verify must be pure: same input, same outcome, no mutation of the
// collection. A verifier that accepts everything is a valid, explicit opt-out
// of verification.
type Verification interface {
	Verify(ctx context.Context, collection *Collection) error
}
