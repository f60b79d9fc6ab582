// Package client synchronises signed, versioned collections of JSON records
// from a remote settings service into a local store and exposes the most
// recent verified snapshot.
//
// A Client is built for one (server, bucket, collection) triple with a chosen
// signature verifier and storage backend:
//
//	c, err := client.NewBuilder().
//		CollectionName("blocklist").
//		Verifier(signatures.NewContentSignatureVerifier(signatures.ContentSignatureOptions{})).
//		Storage(storage.NewMemoryStore()).
//		Build()
//
// Sync reconciles the local snapshot with the server and only ever persists a
// snapshot the verifier accepted. Get returns the locally cached records
// without contacting the server. A client instance is exclusive to its
// caller; concurrent syncs against the same storage key from two instances
// must be serialised by the host.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/settsync/settsync/internal/metrics"
	"github.com/settsync/settsync/pkg/kinto"
	"github.com/settsync/settsync/pkg/storage"
)

// Server defaults. The collection name has no default: a client is always
// built for an explicitly named collection.
const (
	DefaultServerURL  = "https://firefox.settings.services.mozilla.com/v1"
	DefaultBucketName = "main"
)

// Client fetches, verifies and caches the records of one collection.
type Client struct {
	serverURL      string
	bucketName     string
	collectionName string
	verifier       Verification
	store          storage.Store
	transport      *kinto.Client
	logger         *logrus.Logger
}

// Builder assembles a Client. The zero value is not usable; start from
// NewBuilder, which seeds the server/bucket defaults and a DummyStore.
type Builder struct {
	serverURL      string
	bucketName     string
	collectionName string
	verifier       Verification
	store          storage.Store
	httpClient     *http.Client
	logger         *logrus.Logger
}

// NewBuilder creates a Builder with the default server URL, the default
// bucket and a DummyStore.
func NewBuilder() *Builder {
	return &Builder{
		serverURL:  DefaultServerURL,
		bucketName: DefaultBucketName,
		store:      storage.NewDummyStore(),
	}
}

// ServerURL sets the settings server base URL, e.g.
// "https://settings.stage.mozaws.net/v1".
func (b *Builder) ServerURL(serverURL string) *Builder {
	b.serverURL = serverURL
	return b
}

// BucketName sets the server-side bucket.
func (b *Builder) BucketName(bucketName string) *Builder {
	b.bucketName = bucketName
	return b
}

// CollectionName sets the collection to synchronise. Required.
func (b *Builder) CollectionName(collectionName string) *Builder {
	b.collectionName = collectionName
	return b
}

// Verifier sets the signature verifier. Required: hosts that want no
// verification opt in visibly with signatures.NewNoopVerifier().
func (b *Builder) Verifier(verifier Verification) *Builder {
	b.verifier = verifier
	return b
}

// Storage sets the snapshot store.
func (b *Builder) Storage(store storage.Store) *Builder {
	b.store = store
	return b
}

// HTTPClient overrides the HTTP client used for server requests.
func (b *Builder) HTTPClient(httpClient *http.Client) *Builder {
	b.httpClient = httpClient
	return b
}

// Logger sets the logger used by the client.
func (b *Builder) Logger(logger *logrus.Logger) *Builder {
	b.logger = logger
	return b
}

// Build validates the configuration and creates the Client.
func (b *Builder) Build() (*Client, error) {
	if b.collectionName == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if b.verifier == nil {
		return nil, fmt.Errorf("a verifier is required; use signatures.NewNoopVerifier() to opt out of verification")
	}
	logger := b.logger
	if logger == nil {
		logger = logrus.New()
	}
	store := b.store
	if store == nil {
		store = storage.NewDummyStore()
	}
	return &Client{
		serverURL:      b.serverURL,
		bucketName:     b.bucketName,
		collectionName: b.collectionName,
		verifier:       b.verifier,
		store:          store,
		transport:      kinto.NewClient(b.httpClient, logger),
		logger:         logger,
	}, nil
}

// storageKey composes the storage key for this collection. Consumers may
// share the store with other collections and unrelated keys.
func (c *Client) storageKey() string {
	return fmt.Sprintf("%s/%s:collection", c.bucketName, c.collectionName)
}

// Get returns the locally cached records. It never contacts the server and
// never verifies: the persistence invariant guarantees stored records were
// verified at write time. An absent or undecodable snapshot yields an empty
// list; only a hard storage read failure is reported.
func (c *Client) Get(ctx context.Context) ([]Record, error) {
	stored, err := c.loadLocal(ctx, c.logger.WithField("collection", c.collectionName))
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return []Record{}, nil
	}
	return stored.Records, nil
}

// Sync resolves the current collection timestamp from the server's monitor
// endpoint, then reconciles like SyncAt.
func (c *Client) Sync(ctx context.Context) (*Collection, error) {
	return c.sync(ctx, nil)
}

// SyncAt reconciles the local snapshot against the server state at least as
// new as expected. Callers that already know a trusted timestamp (e.g. from a
// push notification) skip the monitor round trip this way. expected is not
// compared to the server's answer; a newer server timestamp is accepted.
func (c *Client) SyncAt(ctx context.Context, expected uint64) (*Collection, error) {
	return c.sync(ctx, &expected)
}

func (c *Client) sync(ctx context.Context, expected *uint64) (*Collection, error) {
	start := time.Now()
	log := c.logger.WithFields(logrus.Fields{
		"sync_id":    uuid.NewString(),
		"bucket":     c.bucketName,
		"collection": c.collectionName,
	})

	collection, outcome, err := c.doSync(ctx, expected, log)
	metrics.ObserveSync(c.bucketName, c.collectionName, outcome, time.Since(start))
	if err != nil {
		return nil, err
	}
	metrics.SetRecordCount(c.bucketName, c.collectionName, len(collection.Records))
	return collection, nil
}

// doSync is the state machine: load local → resolve target → fast path →
// fetch delta → merge → verify → persist → return.
func (c *Client) doSync(ctx context.Context, expected *uint64, log *logrus.Entry) (*Collection, string, error) {
	stored, err := c.loadLocal(ctx, log)
	if err != nil {
		return nil, metrics.OutcomeError, err
	}

	var target uint64
	if expected != nil {
		target = *expected
	} else {
		log.Debug("Obtaining current timestamp from monitor endpoint")
		target, err = c.transport.GetLatestChangeTimestamp(ctx, c.serverURL, c.bucketName, c.collectionName)
		if err != nil {
			return nil, metrics.OutcomeError, &Error{Name: err.Error(), Cause: err}
		}
	}

	// Fast path: only on exact timestamp equality, and only when the stored
	// snapshot still verifies. A verifier failure here forces a refetch
	// instead of a hard error, so a corrupted or tampered cache heals itself.
	if stored != nil && stored.Timestamp == target {
		if verr := c.verifier.Verify(ctx, stored); verr == nil {
			log.Debug("Local data is up-to-date and valid")
			return stored, metrics.OutcomeFresh, nil
		}
		log.Warn("Local snapshot failed verification, refetching from server")
	}

	var localRecords []Record
	var since *uint64
	if stored != nil {
		localRecords = stored.Records
		since = &stored.Timestamp
	}

	log.Info("Local data is empty, outdated, or has been tampered. Fetch from server.")
	changeset, err := c.transport.GetChangeset(ctx, c.serverURL, c.bucketName, c.collectionName, target, since)
	if err != nil {
		return nil, metrics.OutcomeError, &Error{Name: err.Error(), Cause: err}
	}

	log.WithFields(logrus.Fields{
		"changes":       len(changeset.Changes),
		"local_records": len(localRecords),
	}).Debug("Applying changes to local records")
	merged := mergeChanges(localRecords, changeset.Changes)

	candidate := &Collection{
		Bucket:     c.bucketName,
		Collection: c.collectionName,
		Metadata:   changeset.Metadata,
		Records:    merged,
		Timestamp:  changeset.Timestamp,
	}

	// The signature covers the merged state, not the raw changeset. On
	// failure the candidate is discarded and the stored snapshot is left
	// untouched.
	if verr := c.verifier.Verify(ctx, candidate); verr != nil {
		return nil, metrics.OutcomeRejected, &VerificationError{Name: verr.Error(), Cause: verr}
	}

	// Persist before returning so a crash after this call still finds the
	// verified snapshot on the next one.
	encoded, err := json.Marshal(candidate)
	if err != nil {
		return nil, metrics.OutcomeError, &StorageError{Name: fmt.Sprintf("Could not de/serialize data: %s", err), Cause: err}
	}
	if err := c.store.Store(ctx, c.storageKey(), encoded); err != nil {
		return nil, metrics.OutcomeError, &StorageError{Name: err.Error(), Cause: err}
	}

	log.WithFields(logrus.Fields{
		"timestamp": candidate.Timestamp,
		"records":   len(candidate.Records),
	}).Info("Stored verified snapshot")
	return candidate, metrics.OutcomeSynced, nil
}

// loadLocal reads and decodes the stored snapshot. An absent key or
// undecodable bytes yield (nil, nil): decode failure never surfaces, the
// caller proceeds as if nothing was stored. Hard read failures are reported.
func (c *Client) loadLocal(ctx context.Context, log *logrus.Entry) (*Collection, error) {
	key := c.storageKey()
	log.WithField("key", key).Debug("Retrieving from storage")

	raw, err := c.store.Retrieve(ctx, key)
	if err != nil {
		return nil, &StorageError{Name: err.Error(), Cause: err}
	}
	if raw == nil {
		return nil, nil
	}

	stored := &Collection{}
	if err := json.Unmarshal(raw, stored); err != nil {
		log.WithError(err).Warn("Stored snapshot is malformed, treating as absent")
		return nil, nil
	}
	return stored, nil
}
