// Package kinto implements the HTTP transport against a Kinto-compatible
// settings server: changeset fetches and the monitor/changes timestamp lookup.
package kinto

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// monitorBucket/monitorCollection address the special changeset that lists the
// current timestamp of every (bucket, collection) pair on the server.
const (
	monitorBucket     = "monitor"
	monitorCollection = "changes"
)

const defaultTimeout = 30 * time.Second

// Record is one settings entry as served by the server. It is an opaque JSON
// object; only "id" and "deleted" are ever inspected by this library.
type Record map[string]interface{}

// ID returns the record identifier, or "" when absent or not a string.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Deleted reports whether the record is a tombstone.
func (r Record) Deleted() bool {
	deleted, _ := r["deleted"].(bool)
	return deleted
}

// Changeset is the decoded response of a changeset endpoint.
type Changeset struct {
	Metadata  map[string]interface{} `json:"metadata"`
	Changes   []Record               `json:"changes"`
	Timestamp uint64                 `json:"timestamp"`
}

// monitorEntry is one row of the monitor/changes changeset.
type monitorEntry struct {
	ID           string `json:"id"`
	Bucket       string `json:"bucket"`
	Collection   string `json:"collection"`
	LastModified uint64 `json:"last_modified"`
}

// Client issues requests against a settings server. The zero value is not
// usable; construct with NewClient.
type Client struct {
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a transport client. Both arguments may be nil, in which
// case a default HTTP client with a 30s timeout and a default logger are used.
func NewClient(httpClient *http.Client, logger *logrus.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{httpClient: httpClient, logger: logger}
}

// GetChangeset fetches the changeset of a collection at the expected
// timestamp. expected is a cache-buster: the server may answer with any state
// at least as new. since, when non-nil, carries the caller's last known
// timestamp and switches the server into delta mode.
func (c *Client) GetChangeset(ctx context.Context, server, bucket, collection string, expected uint64, since *uint64) (*Changeset, error) {
	endpoint := fmt.Sprintf("%s/buckets/%s/collections/%s/changeset", server, bucket, collection)

	query := url.Values{}
	query.Set("_expected", strconv.FormatUint(expected, 10))
	if since != nil {
		query.Set("_since", strconv.FormatUint(*since, 10))
	}

	c.logger.WithFields(logrus.Fields{
		"bucket":     bucket,
		"collection": collection,
		"expected":   expected,
		"delta":      since != nil,
	}).Debug("Fetching changeset")

	changeset := &Changeset{}
	if err := c.getJSON(ctx, endpoint+"?"+query.Encode(), changeset); err != nil {
		return nil, err
	}
	return changeset, nil
}

// GetLatestChangeTimestamp returns the current timestamp of a collection as
// advertised by the monitor/changes changeset.
func (c *Client) GetLatestChangeTimestamp(ctx context.Context, server, bucket, collection string) (uint64, error) {
	endpoint := fmt.Sprintf("%s/buckets/%s/collections/%s/changeset?_expected=0", server, monitorBucket, monitorCollection)

	var envelope struct {
		Changes []monitorEntry `json:"changes"`
	}
	if err := c.getJSON(ctx, endpoint, &envelope); err != nil {
		return 0, err
	}

	for _, entry := range envelope.Changes {
		if entry.Bucket == bucket && entry.Collection == collection {
			return entry.LastModified, nil
		}
	}

	return 0, &ClientError{Name: fmt.Sprintf("Unknown collection %s/%s", bucket, collection)}
}

// getJSON performs one GET and decodes the JSON body into out. Non-2xx
// responses and transport failures are classified into ServerError
// (retryable) and ClientError (not retryable).
func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &ClientError{Name: fmt.Sprintf("invalid request for %s: %s", rawURL, err), Cause: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts, connection resets, DNS failures: the server may well
		// answer on a later attempt.
		return &ServerError{Name: fmt.Sprintf("fetching %s: %s", rawURL, err), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &ServerError{Name: fmt.Sprintf("%s returned %d: %s", rawURL, resp.StatusCode, string(body))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &ClientError{Name: fmt.Sprintf("%s returned %d: %s", rawURL, resp.StatusCode, string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ClientError{Name: fmt.Sprintf("decoding response of %s: %s", rawURL, err), Cause: err}
	}
	return nil
}
