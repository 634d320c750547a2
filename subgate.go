package subgate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ot "github.com/opentracing/opentracing-go"
	log "github.com/sirupsen/logrus"

	"github.com/subgate/subgate/filters"
	"github.com/subgate/subgate/filters/content"
	"github.com/subgate/subgate/filters/cors"
	"github.com/subgate/subgate/filters/redirect"
	"github.com/subgate/subgate/filters/sanitize"
	"github.com/subgate/subgate/landing"
	"github.com/subgate/subgate/logging"
	"github.com/subgate/subgate/metrics"
	snet "github.com/subgate/subgate/net"
	"github.com/subgate/subgate/proxy"
	"github.com/subgate/subgate/proxylistener"
	"github.com/subgate/subgate/rewrite"
	"github.com/subgate/subgate/status"
	"github.com/subgate/subgate/tracing"
)

const (
	defaultReadHeaderTimeout = 60 * time.Second
	defaultShutdownTimeout   = 30 * time.Second
)

// Options to start the gateway.
type Options struct {
	// Network address that the gateway should listen on.
	Address string

	// Network address of the support listener exposing /metrics and
	// /health. When empty, no support listener is started.
	SupportListener string

	// ReadHeaderTimeout of the main listener.
	ReadHeaderTimeout time.Duration

	// ShutdownTimeout bounds the draining of the open connections
	// after SIGTERM.
	ShutdownTimeout time.Duration

	// When set, the main listener accepts the PROXY protocol header of
	// the load balancers, see the proxylistener package.
	EnableProxyProtocol         bool
	ProxyProtocolAllowListCIDRs []string
	ProxyProtocolSkipListCIDRs  []string
	ProxyProtocolDenyListCIDRs  []string

	// First label of the landing host, e.g. proxy in proxy.gw.tld.
	LandingLabel string

	// Bound of an upstream request, until the response headers are
	// received.
	UpstreamTimeout time.Duration

	// Larger bodies are streamed without rewriting.
	MaxRewriteBodySize int64

	// When set, the certificates of the upstream servers are not
	// verified.
	Insecure bool

	// Methods that can be proxied. Defaults to cors.DefaultMethods.
	AllowedMethods []string

	// Host suffixes excluded from the content rewriting. Defaults to
	// rewrite.DefaultCDNSuffixes.
	CDNSuffixes []string

	// Request headers never forwarded upstream. Defaults to
	// net.DefaultRequestHeaderBlocklist.
	RequestHeaderBlocklist []string

	// Response headers removed from the upstream responses. Defaults
	// to net.DefaultResponseHeaderBlocklist.
	ResponseHeaderBlocklist []string

	// When set, the private and loopback targets are rejected, both as
	// literals and as resolved addresses.
	BlockPrivateTargets bool

	// Additional networks that cannot be targeted.
	BlockedCIDRs []string

	ApplicationLogLevel       log.Level
	ApplicationLogPrefix      string
	ApplicationLogJSONEnabled bool
	AccessLogDisabled         bool
	AccessLogJSONEnabled      bool

	EnableRuntimeMetrics   bool
	HistogramMetricBuckets []float64

	// OpenTracing selects the tracer and its options, see the tracing
	// package. Ignored when OpenTracingTracer is set.
	OpenTracing []string

	// OpenTracingTracer receives the spans of the proxy. When neither
	// this nor OpenTracing is set, the no-op tracer is used.
	OpenTracingTracer ot.Tracer

	OpenTracingInitialSpan              string
	OpenTracingExcludedProxyTags        []string
	OpenTracingLogFilterLifecycleEvents bool
	OpenTracingLogStreamEvents          bool
}

type gateway struct {
	handler   http.Handler
	proxy     *proxy.Proxy
	transport *snet.Transport
	metrics   metrics.Metrics
}

func (g *gateway) Close() {
	g.proxy.Close()
	g.transport.Close()
}

func newGateway(o Options) (*gateway, error) {
	if len(o.CDNSuffixes) == 0 {
		o.CDNSuffixes = rewrite.DefaultCDNSuffixes
	}

	if len(o.RequestHeaderBlocklist) == 0 {
		o.RequestHeaderBlocklist = snet.DefaultRequestHeaderBlocklist
	}

	if len(o.ResponseHeaderBlocklist) == 0 {
		o.ResponseHeaderBlocklist = snet.DefaultResponseHeaderBlocklist
	}

	classifier, err := snet.NewClassifier(o.BlockedCIDRs)
	if err != nil {
		return nil, err
	}

	tracer := o.OpenTracingTracer
	if tracer == nil && len(o.OpenTracing) > 0 {
		tracer, err = tracing.InitTracer(o.OpenTracing)
		if err != nil {
			return nil, fmt.Errorf("failed to create the tracer: %w", err)
		}
	}

	var proxyClassifier *snet.Classifier
	if o.BlockPrivateTargets {
		proxyClassifier = classifier
	}

	m := metrics.NewPrometheus(metrics.Options{
		EnableRuntimeMetrics: o.EnableRuntimeMetrics,
		HistogramBuckets:     o.HistogramMetricBuckets,
	})

	policy := cors.NewPolicy(o.AllowedMethods, nil, nil, 0)
	sw := status.NewWriter(policy)

	lh, err := landing.New(landing.Options{
		CORS:       policy,
		Status:     sw,
		Classifier: classifier,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create the landing handler: %w", err)
	}

	tr := snet.NewTransport(snet.Options{
		Timeout:    o.UpstreamTimeout,
		Insecure:   o.Insecure,
		Classifier: proxyClassifier,
	})

	chain := []filters.Named{
		{Name: filters.CorsName, Filter: cors.New(policy)},
		{Name: filters.SanitizeName, Filter: sanitize.New(snet.NewHeaderPolicy(o.RequestHeaderBlocklist, o.ResponseHeaderBlocklist))},
		{Name: filters.RedirectName, Filter: redirect.New()},
		{Name: filters.ContentName, Filter: content.New(content.Options{MaxBodySize: o.MaxRewriteBodySize, Metrics: m})},
	}

	p := proxy.New(proxy.Params{
		RoundTripper: tr,
		Timeout:      o.UpstreamTimeout,
		Filters:      chain,
		CORS:         policy,
		Classifier:   proxyClassifier,
		LandingLabel: o.LandingLabel,
		Landing:      lh,
		CDNSuffixes:  o.CDNSuffixes,
		Metrics:      m,
		OpenTracing: &proxy.OpenTracingParams{
			Tracer:          tracer,
			InitialSpan:     o.OpenTracingInitialSpan,
			ExcludeTags:     o.OpenTracingExcludedProxyTags,
			LogFilterEvents: o.OpenTracingLogFilterLifecycleEvents,
			LogStreamEvents: o.OpenTracingLogStreamEvents,
		},
		AccessLogDisabled: o.AccessLogDisabled,
		Status:            sw,
	})

	return &gateway{handler: p, proxy: p, transport: tr, metrics: m}, nil
}

func supportHandler(m metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	m.RegisterHandler("/metrics", mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

func listen(o *Options) (net.Listener, error) {
	l, err := net.Listen("tcp", o.Address)
	if err != nil {
		return nil, err
	}

	if !o.EnableProxyProtocol {
		return l, nil
	}

	pl, err := proxylistener.NewListener(proxylistener.Options{
		Listener:       l,
		AllowListCIDRs: o.ProxyProtocolAllowListCIDRs,
		SkipListCIDRs:  o.ProxyProtocolSkipListCIDRs,
		DenyListCIDRs:  o.ProxyProtocolDenyListCIDRs,
	})
	if err != nil {
		l.Close()
		return nil, err
	}

	return pl, nil
}

// listenAndServeQuit serves handler on the main address until a signal
// arrives on sig, then shuts the server down, waiting for the open
// connections at most for the shutdown timeout. When idleConnsCH is not
// nil, it is closed after the shutdown completed.
func listenAndServeQuit(handler http.Handler, o *Options, sig chan os.Signal, idleConnsCH chan struct{}) error {
	readHeaderTimeout := o.ReadHeaderTimeout
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = defaultReadHeaderTimeout
	}

	shutdownTimeout := o.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	l, err := listen(o)
	if err != nil {
		return err
	}

	sl := snet.NewShutdownListener(l)

	if sig == nil {
		sig = make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGTERM)
		defer signal.Stop(sig)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)

		select {
		case <-sig:
		case <-stop:
			return
		}

		log.Infof("Got shutdown signal, draining connections for at most %s", shutdownTimeout)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("Failed to graceful shutdown: %v", err)
		}

		if err := sl.Shutdown(ctx); err != nil {
			log.Errorf("Failed to wait for the open connections: %v", err)
		}

		if idleConnsCH != nil {
			close(idleConnsCH)
		}
	}()

	log.Infof("Listen on %v", l.Addr())
	if err := srv.Serve(sl); !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("Failed to start to ListenAndServe: %v", err)
		close(stop)
		<-done
		return err
	}

	<-done
	return nil
}

func runSupportListener(o *Options, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              o.SupportListener,
		Handler:           handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}

	go func() {
		log.Infof("Support listener on %s", o.SupportListener)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Failed to start the support listener: %v", err)
		}
	}()

	return srv
}

func run(o Options, sig chan os.Signal, idleConnsCH chan struct{}) error {
	logging.Init(logging.Options{
		ApplicationLogPrefix:      o.ApplicationLogPrefix,
		ApplicationLogLevel:       o.ApplicationLogLevel,
		ApplicationLogJSONEnabled: o.ApplicationLogJSONEnabled,
		AccessLogDisabled:         o.AccessLogDisabled,
		AccessLogJSONEnabled:      o.AccessLogJSONEnabled,
	})

	g, err := newGateway(o)
	if err != nil {
		return err
	}
	defer g.Close()

	if o.SupportListener != "" {
		support := runSupportListener(&o, supportHandler(g.metrics))
		defer support.Close()
	}

	return listenAndServeQuit(g.handler, &o, sig, idleConnsCH)
}

// Run starts the gateway with the given options. It returns after the
// server was shut down gracefully on SIGTERM, or when it failed to start.
func Run(o Options) error {
	return run(o, nil, nil)
}
