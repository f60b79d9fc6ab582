// Package metrics exposes Prometheus instrumentation for sync operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sync outcomes.
const (
	OutcomeFresh    = "fresh"    // local snapshot was up to date and valid
	OutcomeSynced   = "synced"   // changeset fetched, merged, verified, stored
	OutcomeRejected = "rejected" // verifier refused the merged candidate
	OutcomeError    = "error"    // transport or storage failure
)

var (
	syncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settsync_sync_total",
			Help: "Sync attempts by outcome",
		},
		[]string{"bucket", "collection", "outcome"},
	)

	syncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "settsync_sync_duration_seconds",
			Help:    "Duration of sync calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"bucket", "collection"},
	)

	recordCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "settsync_collection_records",
			Help: "Record count of the last verified snapshot",
		},
		[]string{"bucket", "collection"},
	)
)

func init() {
	prometheus.MustRegister(syncTotal, syncDuration, recordCount)
}

// ObserveSync records the outcome and duration of one sync call.
func ObserveSync(bucket, collection, outcome string, elapsed time.Duration) {
	syncTotal.WithLabelValues(bucket, collection, outcome).Inc()
	syncDuration.WithLabelValues(bucket, collection).Observe(elapsed.Seconds())
}

// SetRecordCount tracks the size of the last verified snapshot.
func SetRecordCount(bucket, collection string, n int) {
	recordCount.WithLabelValues(bucket, collection).Set(float64(n))
}
