package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveSyncCountsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(syncTotal.WithLabelValues("main", "cfr", OutcomeSynced))

	ObserveSync("main", "cfr", OutcomeSynced, 25*time.Millisecond)
	ObserveSync("main", "cfr", OutcomeSynced, 30*time.Millisecond)
	ObserveSync("main", "cfr", OutcomeRejected, 10*time.Millisecond)

	assert.Equal(t, before+2, testutil.ToFloat64(syncTotal.WithLabelValues("main", "cfr", OutcomeSynced)))
	assert.Equal(t, float64(1), testutil.ToFloat64(syncTotal.WithLabelValues("main", "cfr", OutcomeRejected)))
}

func TestSetRecordCount(t *testing.T) {
	SetRecordCount("main", "regions", 17)
	assert.Equal(t, float64(17), testutil.ToFloat64(recordCount.WithLabelValues("main", "regions")))

	SetRecordCount("main", "regions", 3)
	assert.Equal(t, float64(3), testutil.ToFloat64(recordCount.WithLabelValues("main", "regions")))
}
