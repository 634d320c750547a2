package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	promNamespace         = "subgate"
	promServeSubsystem    = "serve"
	promUpstreamSubsystem = "upstream"
	promRewriteSubsystem  = "rewrite"
)

// Prometheus implements the prometheus metrics backend.
type Prometheus struct {
	serveCounterM   *prometheus.CounterVec
	serveDurationM  *prometheus.HistogramVec
	upstreamM       prometheus.Histogram
	upstreamErrorsM *prometheus.CounterVec
	rewriteCounterM *prometheus.CounterVec

	opts     Options
	registry *prometheus.Registry
	handler  http.Handler
}

// NewPrometheus returns a new Prometheus metric backend.
func NewPrometheus(opts Options) *Prometheus {
	namespace := promNamespace
	if opts.Prefix != "" {
		namespace = strings.TrimSuffix(opts.Prefix, "_")
	}

	buckets := opts.HistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	serveCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promServeSubsystem,
		Name:      "requests_total",
		Help:      "Total number of requests served.",
	}, []string{"code", "method"})

	serveDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: promServeSubsystem,
		Name:      "duration_seconds",
		Help:      "Duration in seconds of serving a request.",
		Buckets:   buckets,
	}, []string{"code", "method"})

	upstream := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: promUpstreamSubsystem,
		Name:      "duration_seconds",
		Help:      "Duration in seconds of an upstream round trip.",
		Buckets:   buckets,
	})

	upstreamErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promUpstreamSubsystem,
		Name:      "errors_total",
		Help:      "Total number of failed upstream round trips.",
	}, []string{"kind"})

	rewriteCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promRewriteSubsystem,
		Name:      "total",
		Help:      "Total number of content rewrites by content kind and result.",
	}, []string{"kind", "result"})

	p := &Prometheus{
		serveCounterM:   serveCounter,
		serveDurationM:  serveDuration,
		upstreamM:       upstream,
		upstreamErrorsM: upstreamErrors,
		rewriteCounterM: rewriteCounter,
		opts:            opts,
		registry:        prometheus.NewRegistry(),
	}

	p.registerMetrics()
	return p
}

// sinceS returns the seconds passed since the start time until now.
func (p *Prometheus) sinceS(start time.Time) float64 {
	return time.Since(start).Seconds()
}

func (p *Prometheus) registerMetrics() {
	p.registry.MustRegister(p.serveCounterM)
	p.registry.MustRegister(p.serveDurationM)
	p.registry.MustRegister(p.upstreamM)
	p.registry.MustRegister(p.upstreamErrorsM)
	p.registry.MustRegister(p.rewriteCounterM)

	if p.opts.EnableRuntimeMetrics {
		p.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		p.registry.MustRegister(collectors.NewGoCollector())
	}
}

func (p *Prometheus) CreateHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) getHandler() http.Handler {
	if p.handler != nil {
		return p.handler
	}

	p.handler = p.CreateHandler()
	return p.handler
}

// RegisterHandler satisfies Metrics interface.
func (p *Prometheus) RegisterHandler(path string, mux *http.ServeMux) {
	mux.Handle(path, p.getHandler())
}

// MeasureServe satisfies Metrics interface.
func (p *Prometheus) MeasureServe(method string, code int, start time.Time) {
	c := strconv.Itoa(code)
	p.serveCounterM.WithLabelValues(c, method).Inc()
	p.serveDurationM.WithLabelValues(c, method).Observe(p.sinceS(start))
}

// MeasureUpstream satisfies Metrics interface.
func (p *Prometheus) MeasureUpstream(start time.Time) {
	p.upstreamM.Observe(p.sinceS(start))
}

// IncUpstreamErrors satisfies Metrics interface.
func (p *Prometheus) IncUpstreamErrors(kind string) {
	p.upstreamErrorsM.WithLabelValues(kind).Inc()
}

// IncRewrite satisfies Metrics interface.
func (p *Prometheus) IncRewrite(kind, result string) {
	p.rewriteCounterM.WithLabelValues(kind, result).Inc()
}
