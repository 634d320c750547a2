package metrics

import (
	"net/http"
	"time"
)

// Metrics is the interface used by the proxy and the filters to record
// measurements.
type Metrics interface {
	// MeasureServe records the total processing time of a request.
	MeasureServe(method string, code int, start time.Time)
	// MeasureUpstream records the time of an upstream round trip.
	MeasureUpstream(start time.Time)
	// IncUpstreamErrors counts failed upstream round trips by kind,
	// e.g. timeout or blocked.
	IncUpstreamErrors(kind string)
	// IncRewrite counts the outcome of a content rewrite.
	IncRewrite(kind, result string)
	// RegisterHandler registers the metrics endpoint on mux.
	RegisterHandler(path string, mux *http.ServeMux)
}

// Options for initializing metrics collection.
type Options struct {
	// Common prefix of the metric names. Defaults to subgate.
	Prefix string

	// If set, Go runtime and process metrics are collected in
	// addition to the traffic metrics.
	EnableRuntimeMetrics bool

	// Histogram buckets used for the duration metrics, in seconds.
	// When empty, the Prometheus default buckets are used.
	HistogramBuckets []float64
}

// Void discards all measurements.
var Void Metrics = void{}

type void struct{}

func (void) MeasureServe(string, int, time.Time)    {}
func (void) MeasureUpstream(time.Time)              {}
func (void) IncUpstreamErrors(string)               {}
func (void) IncRewrite(string, string)              {}
func (void) RegisterHandler(string, *http.ServeMux) {}
