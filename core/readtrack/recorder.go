package readtrack

import "time"

// Recorder receives aggregation measurements.
type Recorder interface {
	QueryIssued(collection string)
	ReceiptLookup(ok bool)
	AggregationFailed()
	StaleDiscarded()
	ObserveAggregation(d time.Duration)
}

type NopRecorder struct{}

var _ Recorder = NopRecorder{} // interface compliance check

func (NopRecorder) QueryIssued(string)               {}
func (NopRecorder) ReceiptLookup(bool)               {}
func (NopRecorder) AggregationFailed()               {}
func (NopRecorder) StaleDiscarded()                  {}
func (NopRecorder) ObserveAggregation(time.Duration) {}
