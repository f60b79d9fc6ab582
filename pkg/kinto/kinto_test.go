package kinto

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietClient() *Client {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewClient(nil, logger)
}

func TestRecordHelpers(t *testing.T) {
	assert.Equal(t, "record-1", Record{"id": "record-1"}.ID())
	assert.Equal(t, "", Record{"id": float64(3)}.ID())
	assert.Equal(t, "", Record{}.ID())

	assert.True(t, Record{"deleted": true}.Deleted())
	assert.False(t, Record{"deleted": "yes"}.Deleted())
	assert.False(t, Record{}.Deleted())
}

func TestGetChangesetDecodesEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/buckets/main/collections/cfr/changeset", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("_expected"))
		assert.False(t, r.URL.Query().Has("_since"))
		io.WriteString(w, `{
			"metadata": {"signature": {"x5u": "https://example.com/chain.pem"}},
			"changes": [{"id": "record-1", "last_modified": 42}],
			"timestamp": 42
		}`)
	}))
	defer server.Close()

	changeset, err := quietClient().GetChangeset(context.Background(), server.URL, "main", "cfr", 42, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), changeset.Timestamp)
	require.Len(t, changeset.Changes, 1)
	assert.Equal(t, "record-1", changeset.Changes[0].ID())
	assert.Contains(t, changeset.Metadata, "signature")
}

func TestGetChangesetSendsSince(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "15", r.URL.Query().Get("_since"))
		io.WriteString(w, `{"metadata": {}, "changes": [], "timestamp": 42}`)
	}))
	defer server.Close()

	since := uint64(15)
	_, err := quietClient().GetChangeset(context.Background(), server.URL, "main", "cfr", 42, &since)
	require.NoError(t, err)
}

func TestGetChangesetClassifiesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := quietClient().GetChangeset(context.Background(), server.URL, "main", "cfr", 42, nil)
	require.Error(t, err)

	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Contains(t, serverErr.Name, "503")
}

func TestGetChangesetClassifiesClientErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such collection", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := quietClient().GetChangeset(context.Background(), server.URL, "main", "nope", 42, nil)
	require.Error(t, err)

	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Contains(t, clientErr.Name, "404")
}

func TestGetChangesetDecodeFailureIsClientError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>not json</html>")
	}))
	defer server.Close()

	_, err := quietClient().GetChangeset(context.Background(), server.URL, "main", "cfr", 42, nil)
	require.Error(t, err)

	var clientErr *ClientError
	assert.ErrorAs(t, err, &clientErr)
}

func TestGetChangesetTransportFailureIsServerError(t *testing.T) {
	// Nothing listens here.
	_, err := quietClient().GetChangeset(context.Background(), "http://127.0.0.1:1", "main", "cfr", 42, nil)
	require.Error(t, err)

	var serverErr *ServerError
	assert.ErrorAs(t, err, &serverErr)
}

func TestGetLatestChangeTimestamp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/buckets/monitor/collections/changes/changeset", r.URL.Path)
		io.WriteString(w, `{
			"metadata": {},
			"changes": [
				{"id": "a", "last_modified": 10, "bucket": "blocklists", "collection": "certificates"},
				{"id": "b", "last_modified": 123, "bucket": "main", "collection": "fxmonitor"}
			],
			"timestamp": 42
		}`)
	}))
	defer server.Close()

	timestamp, err := quietClient().GetLatestChangeTimestamp(context.Background(), server.URL, "main", "fxmonitor")
	require.NoError(t, err)
	assert.Equal(t, uint64(123), timestamp)
}

func TestGetLatestChangeTimestampUnknownCollection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"metadata": {}, "changes": [], "timestamp": 42}`)
	}))
	defer server.Close()

	_, err := quietClient().GetLatestChangeTimestamp(context.Background(), server.URL, "main", "url-classifier-skip-urls")
	require.Error(t, err)

	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, "Unknown collection main/url-classifier-skip-urls", clientErr.Name)
}
