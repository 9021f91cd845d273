package metricsvc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/wazazi/core/readtrack"
)

const namespace = "wazazi"

// Recorder exports aggregation measurements to prometheus.
type Recorder struct {
	queries        *prometheus.CounterVec
	receipts       *prometheus.CounterVec
	failures       prometheus.Counter
	staleDiscards  prometheus.Counter
	aggregationDur prometheus.Histogram
}

var _ readtrack.Recorder = (*Recorder)(nil)

// NewRecorder registers the aggregation metrics on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "readtrack",
			Name:      "queries_total",
			Help:      "Document queries issued by the unread aggregator, per collection.",
		}, []string{"collection"}),
		receipts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "readtrack",
			Name:      "receipt_lookups_total",
			Help:      "Read receipt lookups, by outcome.",
		}, []string{"outcome"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "readtrack",
			Name:      "aggregation_failures_total",
			Help:      "Aggregation passes that yielded an empty feed because of an error.",
		}),
		staleDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "readtrack",
			Name:      "stale_results_total",
			Help:      "Aggregation results discarded because a newer request started.",
		}),
		aggregationDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "readtrack",
			Name:      "aggregation_duration_seconds",
			Help:      "Duration of aggregation passes.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(r.queries, r.receipts, r.failures, r.staleDiscards, r.aggregationDur)
	return r
}

func (r *Recorder) QueryIssued(collection string) {
	r.queries.WithLabelValues(collection).Inc()
}

func (r *Recorder) ReceiptLookup(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	r.receipts.WithLabelValues(outcome).Inc()
}

func (r *Recorder) AggregationFailed() { r.failures.Inc() }

func (r *Recorder) StaleDiscarded() { r.staleDiscards.Inc() }

func (r *Recorder) ObserveAggregation(d time.Duration) {
	r.aggregationDur.Observe(d.Seconds())
}
