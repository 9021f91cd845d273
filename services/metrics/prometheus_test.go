package metricsvc

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.QueryIssued("comments")
	r.QueryIssued("comments")
	r.QueryIssued("students")
	r.ReceiptLookup(true)
	r.ReceiptLookup(false)
	r.AggregationFailed()
	r.StaleDiscarded()
	r.ObserveAggregation(20 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.queries.WithLabelValues("comments")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.queries.WithLabelValues("students")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.receipts.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.staleDiscards))

	n, err := testutil.GatherAndCount(reg, "wazazi_readtrack_aggregation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
