package proxy

import (
	stdlibcontext "context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	ot "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	"github.com/subgate/subgate/filters"
	"github.com/subgate/subgate/filters/cors"
	"github.com/subgate/subgate/logging"
	"github.com/subgate/subgate/metrics"
	snet "github.com/subgate/subgate/net"
	"github.com/subgate/subgate/rewrite"
	"github.com/subgate/subgate/status"
	"github.com/subgate/subgate/subdomain"
)

const (
	proxyBufferSize = 8192

	// DefaultTimeout is the default bound of an upstream round trip.
	DefaultTimeout = 30 * time.Second

	// DefaultLandingLabel is the default first label of the landing host.
	DefaultLandingLabel = "proxy"

	// status code used in the logs and metrics when the client went away
	statusClientClosedRequest = 499
)

const (
	upstreamErrorTimeout  = "timeout"
	upstreamErrorBlocked  = "blocked"
	upstreamErrorCanceled = "canceled"
	upstreamErrorOther    = "other"
)

type OpenTracingParams struct {
	// Tracer holds the tracer enabled for this proxy instance
	Tracer ot.Tracer

	// InitialSpan can override the default initial span name.
	// Default: "ingress".
	InitialSpan string

	// LogFilterEvents enables the behavior to mark start and completion times of filters
	// on the span representing request filters being processed.
	// Default: false
	LogFilterEvents bool

	// LogStreamEvents enables the logs that marks the times when response headers & payload are streamed to
	// the client
	// Default: false
	LogStreamEvents bool

	// ExcludeTags controls what tags are disabled. Any tag that is listed here will be ignored.
	ExcludeTags []string
}

// Proxy initialization options.
type Params struct {
	// RoundTripper executes the upstream requests. Defaults to a
	// transport created with net.NewTransport.
	RoundTripper http.RoundTripper

	// Timeout bounds the upstream round trip, until the response
	// headers are received. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Filters applied to every proxied request, in order.
	Filters []filters.Named

	// CORS defines the allowed methods and the CORS headers of the
	// error responses. Defaults to cors.Default().
	CORS *cors.Policy

	// Classifier, when set, rejects the targets that are literal
	// private or loopback addresses.
	Classifier *snet.Classifier

	// LandingLabel is the first label of the landing host. Defaults
	// to DefaultLandingLabel.
	LandingLabel string

	// Landing handles the requests to the landing host. When nil, the
	// landing label is decoded like any other label.
	Landing http.Handler

	// CDNSuffixes is passed to the rewrite context of every request.
	CDNSuffixes []string

	// Metrics collector. Defaults to metrics.Void.
	Metrics metrics.Metrics

	// OpenTracing contains parameters related to OpenTracing instrumentation.
	OpenTracing *OpenTracingParams

	// AccessLogDisabled disables the access log entries of the proxy.
	AccessLogDisabled bool

	// Status writes the error responses. Defaults to a writer using
	// the CORS policy.
	Status *status.Writer
}

type flushedResponseWriter interface {
	http.ResponseWriter
	http.Flusher
}

// Proxy is the http.Handler of the gateway.
type Proxy struct {
	roundTripper      http.RoundTripper
	closeTransport    func()
	timeout           time.Duration
	filters           []filters.Named
	cors              *cors.Policy
	classifier        *snet.Classifier
	landingLabel      string
	landing           http.Handler
	cdnSuffixes       []string
	metrics           metrics.Metrics
	tracing           *proxyTracing
	accessLogDisabled bool
	status            *status.Writer
}

// proxyError is used to wrap errors during proxying and to indicate
// the required status code for the response sent from the main
// ServeHTTP method. Alternatively, it can indicate that the request
// was already handled, e.g. by the landing handler.
type proxyError struct {
	err     error
	code    int
	message string
	handled bool
}

func (e *proxyError) Error() string {
	if e.handled {
		return "request handled in a non-standard way"
	}

	code := e.code
	if code == 0 {
		code = http.StatusInternalServerError
	}

	if e.err != nil {
		return fmt.Sprintf("proxy error: %d: %v", code, e.err)
	}

	return fmt.Sprintf("proxy error: %d", code)
}

func (e *proxyError) Unwrap() error { return e.err }

var (
	errInvalidSubdomain = &proxyError{code: http.StatusBadRequest, message: "Invalid subdomain"}
	errMethodNotAllowed = &proxyError{code: http.StatusMethodNotAllowed, message: "Method not allowed"}
	errLandingHandled   = &proxyError{handled: true}
	errUpstreamTimeout  = errors.New("upstream timeout")
	hostname            = os.Getenv("HOSTNAME")
)

// cancelBody releases the upstream request context when the response body
// is closed.
type cancelBody struct {
	io.ReadCloser
	cancel stdlibcontext.CancelCauseFunc
}

func (b cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel(nil)
	return err
}

// copies a stream with flushing on every successful read operation
// (similar to io.Copy but with flushing)
func copyStream(to flushedResponseWriter, from io.Reader, tracing *proxyTracing, span ot.Span) error {
	b := make([]byte, proxyBufferSize)

	for {
		l, rerr := from.Read(b)

		tracing.logStreamEvent(span, "streamBody.byte", fmt.Sprintf("%d", l))

		if rerr != nil && rerr != io.EOF {
			return rerr
		}

		if l > 0 {
			_, werr := to.Write(b[:l])
			if werr != nil {
				return werr
			}

			to.Flush()
		}

		if rerr == io.EOF {
			return nil
		}
	}
}

// New creates a proxy with the provided parameters.
func New(p Params) *Proxy {
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}

	closeTransport := func() {}
	if p.RoundTripper == nil {
		tr := snet.NewTransport(snet.Options{
			Timeout:    p.Timeout,
			Classifier: p.Classifier,
		})

		p.RoundTripper = tr
		closeTransport = tr.Close
	}

	if p.CORS == nil {
		p.CORS = cors.Default()
	}

	if p.LandingLabel == "" {
		p.LandingLabel = DefaultLandingLabel
	}

	if p.Metrics == nil {
		p.Metrics = metrics.Void
	}

	if p.Status == nil {
		p.Status = status.NewWriter(p.CORS)
	}

	return &Proxy{
		roundTripper:      p.RoundTripper,
		closeTransport:    closeTransport,
		timeout:           p.Timeout,
		filters:           p.Filters,
		cors:              p.CORS,
		classifier:        p.Classifier,
		landingLabel:      strings.ToLower(p.LandingLabel),
		landing:           p.Landing,
		cdnSuffixes:       p.CDNSuffixes,
		metrics:           p.Metrics,
		tracing:           newProxyTracing(p.OpenTracing),
		accessLogDisabled: p.AccessLogDisabled,
		status:            p.Status,
	}
}

var caughtPanic atomic.Bool

// tryCatch executes function `p` and `onErr` if `p` panics
// onErr will receive a stack trace string of the first panic
// further panics are ignored for efficiency reasons
func tryCatch(p func(), onErr func(err any, stack string)) {
	defer func() {
		if err := recover(); err != nil {
			s := ""
			if caughtPanic.CompareAndSwap(false, true) {
				buf := make([]byte, 1024)
				l := runtime.Stack(buf, false)
				s = string(buf[:l])
			}
			onErr(err, s)
		}
	}()

	p()
}

// applies filters to a request
func (p *Proxy) applyFiltersToRequest(ctx *context) []filters.Named {
	if len(p.filters) == 0 {
		return nil
	}

	filtersSpan := p.tracing.createSpan("request_filters", ctx.request.Context())
	defer filtersSpan.Finish()

	var processed = make([]filters.Named, 0, len(p.filters))
	for _, fi := range p.filters {
		p.tracing.logFilterStart(filtersSpan, fi.Name)
		tryCatch(func() {
			fi.Request(ctx)
		}, func(err any, stack string) {
			ctx.logger.Errorf("error while processing filter during request: %s: %v (%s)", fi.Name, err, stack)
		})
		p.tracing.logFilterEnd(filtersSpan, fi.Name)

		if ctx.served {
			break
		}

		processed = append(processed, fi)
	}

	return processed
}

// applies filters to a response in reverse order
func (p *Proxy) applyFiltersToResponse(filters []filters.Named, ctx *context) {
	if len(filters) == 0 {
		return
	}

	filtersSpan := p.tracing.createSpan("response_filters", ctx.request.Context())
	defer filtersSpan.Finish()

	last := len(filters) - 1
	for i := range filters {
		fi := filters[last-i]
		p.tracing.logFilterStart(filtersSpan, fi.Name)
		tryCatch(func() {
			fi.Response(ctx)
		}, func(err any, stack string) {
			ctx.logger.Errorf("error while processing filters during response: %s: %v (%s)", fi.Name, err, stack)
		})
		p.tracing.logFilterEnd(filtersSpan, fi.Name)
	}
}

// parseTarget maps the incoming host to the target of the request, or
// serves the landing page.
func (p *Proxy) parseTarget(ctx *context) (*url.URL, string, error) {
	host := snet.GatewayHostPatch.Apply(ctx.request.Host)
	label, base, ok := subdomain.SplitHost(host)
	if !ok {
		return nil, "", errInvalidSubdomain
	}

	if label == p.landingLabel && p.landing != nil {
		p.landing.ServeHTTP(ctx.responseWriter, ctx.request)
		return nil, "", errLandingHandled
	}

	target, err := subdomain.Decode(label)
	if err != nil {
		ctx.logger.Debugf("Invalid subdomain %q: %v", label, err)
		return nil, "", errInvalidSubdomain
	}

	return &url.URL{
		Scheme:   "https",
		Host:     target,
		Path:     ctx.request.URL.Path,
		RawPath:  ctx.request.URL.RawPath,
		RawQuery: ctx.request.URL.RawQuery,
	}, base, nil
}

func (p *Proxy) validate(ctx *context, target *url.URL) error {
	if ctx.request.Method != http.MethodOptions && !p.cors.Allows(ctx.request.Method) {
		return errMethodNotAllowed
	}

	// the preflight is answered without contacting the target
	if p.classifier != nil && ctx.request.Method != http.MethodOptions {
		if err := p.classifier.CheckHost(target.Hostname()); err != nil {
			return &proxyError{err: err, code: http.StatusForbidden, message: "Access to private networks is not allowed"}
		}
	}

	return nil
}

func mapRequest(ctx stdlibcontext.Context, r *http.Request, target *url.URL) (*http.Request, error) {
	body := r.Body
	if r.Method == http.MethodGet || r.Method == http.MethodHead || body == nil {
		body = http.NoBody
	}

	rr, err := http.NewRequestWithContext(ctx, r.Method, target.String(), body)
	if err != nil {
		return nil, err
	}

	if body != http.NoBody {
		rr.ContentLength = r.ContentLength
	}

	rr.Header = r.Header.Clone()
	rr.Host = target.Host
	return rr, nil
}

func (p *Proxy) upstreamError(ctx *context, req *http.Request, err error) *proxyError {
	p.tracing.setTag(ctx.proxySpan, ErrorTag, true)
	ctx.proxySpan.LogKV(
		"event", "error",
		"message", err.Error())

	var nerr net.Error
	switch {
	case ctx.request.Context().Err() != nil:
		// the client closed the request
		p.metrics.IncUpstreamErrors(upstreamErrorCanceled)
		return &proxyError{err: err, code: statusClientClosedRequest}
	case errors.Is(stdlibcontext.Cause(req.Context()), errUpstreamTimeout),
		errors.As(err, &nerr) && nerr.Timeout():
		p.metrics.IncUpstreamErrors(upstreamErrorTimeout)
		p.tracing.setTag(ctx.proxySpan, HTTPStatusCodeTag, uint16(http.StatusGatewayTimeout))
		return &proxyError{err: err, code: http.StatusGatewayTimeout, message: "Upstream request timed out"}
	case errors.Is(err, snet.ErrPrivateNetwork):
		p.metrics.IncUpstreamErrors(upstreamErrorBlocked)
		p.tracing.setTag(ctx.proxySpan, HTTPStatusCodeTag, uint16(http.StatusForbidden))
		return &proxyError{err: err, code: http.StatusForbidden, message: "Access to private networks is not allowed"}
	default:
		p.metrics.IncUpstreamErrors(upstreamErrorOther)
		p.tracing.setTag(ctx.proxySpan, HTTPStatusCodeTag, uint16(http.StatusInternalServerError))
		return &proxyError{err: err, code: http.StatusInternalServerError, message: err.Error()}
	}
}

// makeUpstreamRequest sends the request to the target. The timeout only
// bounds the time until the response headers arrive, the body may take
// longer. The upstream request is canceled when the timeout expires, when
// the client goes away, or when the response body is closed.
func (p *Proxy) makeUpstreamRequest(ctx *context) (*http.Response, *proxyError) {
	target := ctx.target.Target
	rctx, cancel := stdlibcontext.WithCancelCause(ctx.request.Context())
	timer := time.AfterFunc(p.timeout, func() { cancel(errUpstreamTimeout) })

	req, err := mapRequest(rctx, ctx.request, target)
	if err != nil {
		timer.Stop()
		cancel(nil)
		ctx.logger.Errorf("could not map upstream request, caused by: %v", err)
		return nil, &proxyError{err: err}
	}

	ctx.proxySpan = p.tracing.createSpan("proxy", ctx.request.Context())
	p.tracing.
		setTag(ctx.proxySpan, SpanKindTag, SpanKindClient).
		setTag(ctx.proxySpan, TargetHostTag, ctx.targetHost())

	u := *target
	u.RawQuery = ""
	p.setCommonSpanInfo(&u, req, ctx.proxySpan)
	req = req.WithContext(ot.ContextWithSpan(req.Context(), ctx.proxySpan))

	start := time.Now()
	ctx.proxySpan.LogKV("http_roundtrip", StartEvent)
	rsp, err := p.roundTripper.RoundTrip(req)
	ctx.proxySpan.LogKV("http_roundtrip", EndEvent)
	stopped := timer.Stop()
	p.metrics.MeasureUpstream(start)

	// the timer fired after the headers arrived, the body is canceled
	if err == nil && !stopped && errors.Is(stdlibcontext.Cause(rctx), errUpstreamTimeout) {
		rsp.Body.Close()
		err = stdlibcontext.Cause(rctx)
	}

	if err != nil {
		perr := p.upstreamError(ctx, req, err)
		cancel(nil)
		return nil, perr
	}

	rsp.Body = cancelBody{ReadCloser: rsp.Body, cancel: cancel}
	p.tracing.setTag(ctx.proxySpan, HTTPStatusCodeTag, uint16(rsp.StatusCode))
	return rsp, nil
}

func (p *Proxy) do(ctx *context) error {
	target, base, err := p.parseTarget(ctx)
	if err != nil {
		return err
	}

	ctx.setTarget(rewrite.NewContext(target, base, p.cdnSuffixes))
	if err := p.validate(ctx, target); err != nil {
		return err
	}

	processedFilters := p.applyFiltersToRequest(ctx)
	if !ctx.served {
		rsp, perr := p.makeUpstreamRequest(ctx)
		if perr != nil {
			return perr
		}

		ctx.response = rsp
	}

	p.applyFiltersToResponse(processedFilters, ctx)
	return nil
}

func (p *Proxy) serveResponse(ctx *context) {
	p.tracing.logStreamEvent(ctx.proxySpan, StreamHeadersEvent, StartEvent)
	h := ctx.responseWriter.Header()
	for k, v := range ctx.response.Header {
		h[http.CanonicalHeaderKey(k)] = v
	}
	p.tracing.logStreamEvent(ctx.proxySpan, StreamHeadersEvent, EndEvent)

	if err := ctx.request.Context().Err(); err != nil {
		// deadline exceeded or canceled in stdlib, client closed request
		ctx.logger.Infof("Client request: %v", err)
		ctx.response.StatusCode = statusClientClosedRequest
		p.tracing.setTag(ctx.proxySpan, ClientRequestStateTag, ClientRequestCanceled)
	}

	ctx.responseWriter.WriteHeader(ctx.response.StatusCode)
	ctx.responseWriter.Flush()
	if err := copyStream(ctx.responseWriter, ctx.response.Body, p.tracing, ctx.proxySpan); err != nil {
		ctx.logger.Errorf("error while copying the response stream: %v", err)
	}
}

func (p *Proxy) errorResponse(ctx *context, span ot.Span, err error) {
	var perr *proxyError
	ok := errors.As(err, &perr)
	if ok && perr.handled {
		return
	}

	code := http.StatusInternalServerError
	if ok && perr.code != 0 {
		code = perr.code
	}

	message := ""
	if ok {
		message = perr.message
	}

	p.tracing.setTag(span, ErrorTag, true)
	p.tracing.setTag(span, HTTPStatusCodeTag, uint16(code))

	if code >= http.StatusInternalServerError {
		ctx.logger.Errorf("error while proxying, status code %d: %v", code, err)
	} else {
		ctx.logger.Debugf("request rejected, status code %d: %v", code, err)
	}

	if code == statusClientClosedRequest {
		// nobody to send the response to
		return
	}

	p.status.WriteError(ctx.responseWriter, code, message)
}

// http.Handler implementation
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lw := logging.NewLoggingWriter(w)

	var span ot.Span
	wireContext, err := p.tracing.tracer.Extract(ot.HTTPHeaders, ot.HTTPHeadersCarrier(r.Header))
	if err == nil {
		span = p.tracing.tracer.StartSpan(p.tracing.initialOperationName, ext.RPCServerOption(wireContext))
	} else {
		span = p.tracing.tracer.StartSpan(p.tracing.initialOperationName)
	}

	id := uuid.NewString()
	p.tracing.
		setTag(span, SpanKindTag, SpanKindServer).
		setTag(span, RequestIDTag, id)
	p.setCommonSpanInfo(r.URL, r, span)
	r = r.WithContext(ot.ContextWithSpan(r.Context(), span))

	ctx := newContext(lw, r, id)

	defer func() {
		if ctx.proxySpan != nil {
			ctx.proxySpan.Finish()
		}
		span.Finish()
	}()

	defer func() {
		statusCode := lw.GetCode()
		if statusCode == 0 {
			statusCode = statusClientClosedRequest
		}

		p.metrics.MeasureServe(r.Method, statusCode, ctx.startServe)
		if p.accessLogDisabled {
			return
		}

		logging.LogAccess(&logging.AccessEntry{
			Request:      r,
			ResponseSize: lw.GetBytes(),
			StatusCode:   statusCode,
			RequestTime:  ctx.startServe,
			Duration:     time.Since(ctx.startServe),
			TargetHost:   ctx.targetHost(),
			RequestID:    id,
		})
	}()

	defer func() {
		if ctx.response != nil && ctx.response.Body != nil {
			if err := ctx.response.Body.Close(); err != nil {
				ctx.logger.Errorf("error during closing the response body: %v", err)
			}
		}
	}()

	if err := p.do(ctx); err != nil {
		p.errorResponse(ctx, span, err)
		return
	}

	p.serveResponse(ctx)
}

// Close releases the idle connections of the default transport.
func (p *Proxy) Close() error {
	p.closeTransport()
	return nil
}

func (p *Proxy) setCommonSpanInfo(u *url.URL, r *http.Request, s ot.Span) {
	p.tracing.
		setTag(s, ComponentTag, "subgate").
		setTag(s, HTTPUrlTag, u.String()).
		setTag(s, HTTPMethodTag, r.Method).
		setTag(s, HostnameTag, hostname).
		setTag(s, HTTPRemoteAddrTag, r.RemoteAddr).
		setTag(s, HTTPPathTag, u.Path).
		setTag(s, HTTPHostTag, r.Host)
}
