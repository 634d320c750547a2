package net

import (
	"crypto/tls"
	"net/http"
	"net/http/httptrace"
	"time"

	"github.com/opentracing/opentracing-go"
)

// Options configure the upstream transport. Options.Timeout is used as
// default for all timeouts that are not set.
type Options struct {
	// Timeout sets all timeouts that are set to 0 to the given value.
	Timeout time.Duration
	// TLSHandshakeTimeout see
	// https://golang.org/pkg/net/http/#Transport.TLSHandshakeTimeout
	TLSHandshakeTimeout time.Duration
	// ResponseHeaderTimeout see
	// https://golang.org/pkg/net/http/#Transport.ResponseHeaderTimeout
	ResponseHeaderTimeout time.Duration
	// MaxResponseHeaderBytes see
	// https://golang.org/pkg/net/http/#Transport.MaxResponseHeaderBytes
	MaxResponseHeaderBytes int64
	// Insecure skips the verification of upstream certificates.
	Insecure bool
	// Classifier, when set, makes the transport refuse connections to
	// addresses it blocks.
	Classifier *Classifier
}

// Transport is the round tripper used for upstream requests. Every request
// uses a fresh connection. Redirects are returned to the caller, never
// followed.
type Transport struct {
	tr *http.Transport
}

func NewTransport(options Options) *Transport {
	if options.TLSHandshakeTimeout == 0 {
		options.TLSHandshakeTimeout = options.Timeout
	}
	if options.ResponseHeaderTimeout == 0 {
		options.ResponseHeaderTimeout = options.Timeout
	}

	htransport := &http.Transport{
		Proxy:                  nil,
		DisableKeepAlives:      true,
		DisableCompression:     true,
		ForceAttemptHTTP2:      true,
		MaxResponseHeaderBytes: options.MaxResponseHeaderBytes,
		ResponseHeaderTimeout:  options.ResponseHeaderTimeout,
		TLSHandshakeTimeout:    options.TLSHandshakeTimeout,
	}

	if options.Classifier != nil {
		htransport.DialContext = NewSafeDialer(options.Classifier, options.Timeout).DialContext
	}

	if options.Insecure {
		/* #nosec */
		htransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Transport{tr: htransport}
}

// RoundTrip implements http.RoundTripper. When the request context carries
// a span, connection events are logged on it. The span context is not
// injected into the request headers: nothing identifying the gateway
// deployment is sent upstream.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if span := opentracing.SpanFromContext(req.Context()); span != nil {
		req = injectClientTrace(req, span)
	}

	return t.tr.RoundTrip(req)
}

func (t *Transport) Close() {
	t.tr.CloseIdleConnections()
}

func injectClientTrace(req *http.Request, span opentracing.Span) *http.Request {
	trace := &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) {
			span.LogKV("DNS", "start")
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			span.LogKV("DNS", "end")
		},
		ConnectStart: func(string, string) {
			span.LogKV("connect", "start")
		},
		ConnectDone: func(string, string, error) {
			span.LogKV("connect", "end")
		},
		TLSHandshakeStart: func() {
			span.LogKV("TLS", "start")
		},
		TLSHandshakeDone: func(tls.ConnectionState, error) {
			span.LogKV("TLS", "end")
		},
		GotFirstResponseByte: func() {
			span.LogKV("first_byte", "received")
		},
	}
	return req.WithContext(httptrace.WithClientTrace(req.Context(), trace))
}
