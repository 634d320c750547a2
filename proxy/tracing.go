package proxy

import (
	stdlibcontext "context"

	ot "github.com/opentracing/opentracing-go"
)

const (
	ClientRequestStateTag = "client.request"
	ComponentTag          = "component"
	ErrorTag              = "error"
	HostnameTag           = "hostname"
	HTTPHostTag           = "http.host"
	HTTPMethodTag         = "http.method"
	HTTPRemoteAddrTag     = "http.remote_addr"
	HTTPPathTag           = "http.path"
	HTTPUrlTag            = "http.url"
	HTTPStatusCodeTag     = "http.status_code"
	RequestIDTag          = "subgate.request_id"
	TargetHostTag         = "subgate.target_host"
	SpanKindTag           = "span.kind"

	ClientRequestCanceled = "canceled"
	SpanKindClient        = "client"
	SpanKindServer        = "server"

	EndEvent           = "end"
	StartEvent         = "start"
	StreamHeadersEvent = "stream_Headers"
)

type proxyTracing struct {
	tracer                   ot.Tracer
	initialOperationName     string
	logFilterLifecycleEvents bool
	logStreamEvents          bool
	excludeTags              map[string]bool
}

func newProxyTracing(p *OpenTracingParams) *proxyTracing {
	if p == nil {
		p = &OpenTracingParams{}
	}

	initialSpan := p.InitialSpan
	if initialSpan == "" {
		initialSpan = "ingress"
	}

	tracer := p.Tracer
	if tracer == nil {
		tracer = &ot.NoopTracer{}
	}

	excludedTags := map[string]bool{}

	for _, t := range p.ExcludeTags {
		excludedTags[t] = true
	}

	return &proxyTracing{
		tracer:                   tracer,
		initialOperationName:     initialSpan,
		logFilterLifecycleEvents: p.LogFilterEvents,
		logStreamEvents:          p.LogStreamEvents,
		excludeTags:              excludedTags,
	}
}

// createSpan starts a span as a child of the span found in ctx, if any.
func (t *proxyTracing) createSpan(name string, ctx stdlibcontext.Context) ot.Span {
	if parent := ot.SpanFromContext(ctx); parent != nil {
		return t.tracer.StartSpan(name, ot.ChildOf(parent.Context()))
	}

	return t.tracer.StartSpan(name)
}

func (t *proxyTracing) logEvent(span ot.Span, eventName, eventValue string) {
	if span == nil {
		return
	}

	span.LogKV(eventName, eventValue)
}

func (t *proxyTracing) setTag(span ot.Span, key string, value any) *proxyTracing {
	if span == nil {
		return t
	}

	if !t.excludeTags[key] {
		span.SetTag(key, value)
	}

	return t
}

func (t *proxyTracing) logFilterEvent(span ot.Span, filterName, event string) {
	if !t.logFilterLifecycleEvents {
		return
	}

	t.logEvent(span, filterName, event)
}

func (t *proxyTracing) logStreamEvent(span ot.Span, eventName, eventValue string) {
	if !t.logStreamEvents {
		return
	}

	t.logEvent(span, eventName, eventValue)
}

func (t *proxyTracing) logFilterStart(span ot.Span, filterName string) {
	t.logFilterEvent(span, filterName, StartEvent)
}

func (t *proxyTracing) logFilterEnd(span ot.Span, filterName string) {
	t.logFilterEvent(span, filterName, EndEvent)
}
