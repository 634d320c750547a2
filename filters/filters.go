package filters

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/subgate/subgate/rewrite"
)

const (
	CorsName     = "cors"
	SanitizeName = "sanitize"
	RedirectName = "redirect"
	ContentName  = "content"
)

// FilterContext object providing state and information that is unique to a
// request.
type FilterContext interface {
	// The response writer object belonging to the incoming request. Used by
	// filters that handle the requests themselves.
	ResponseWriter() http.ResponseWriter

	// The incoming request object. It is forwarded to the upstream, the
	// filters may modify it.
	Request() *http.Request

	// The response object. It is returned to the client with the
	// modifications of the filters. Nil during the request phase.
	Response() *http.Response

	// Serve a request with the provided response. It can be used by the
	// filters that handle the requests themselves. Calling Serve() stops
	// the request processing: the upstream is not called and the filters
	// after the current one are skipped.
	Serve(*http.Response)

	// Served returns true if the request was served by a filter.
	Served() bool

	// Target describes where the request is proxied to and how URLs
	// pointing there are written in gateway form.
	Target() *rewrite.Context

	// Provides the request scoped logger, carrying the request id.
	Logger() log.FieldLogger

	// Provides a read-write state bag, unique to a request and shared by
	// all the filters in the pipeline.
	StateBag() map[string]any
}

// Filter is created once at startup with its settings. The Request method
// is called with every incoming request before the upstream is called, the
// Response method after the upstream response was received.
type Filter interface {
	// The Request method is called while processing the incoming request.
	Request(FilterContext)

	// The Response method is called while processing the response to be
	// returned.
	Response(FilterContext)
}

// Named pairs a filter with the name used in the logs and traces.
type Named struct {
	Name string
	Filter
}
