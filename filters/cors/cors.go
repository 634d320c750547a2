package cors

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/subgate/subgate/filters"
)

const (
	allowOriginHeader    = "Access-Control-Allow-Origin"
	allowMethodsHeader   = "Access-Control-Allow-Methods"
	allowHeadersHeader   = "Access-Control-Allow-Headers"
	exposeHeadersHeader  = "Access-Control-Expose-Headers"
	maxAgeHeader         = "Access-Control-Max-Age"
	requestMethodHeader  = "Access-Control-Request-Method"
	requestHeadersHeader = "Access-Control-Request-Headers"
)

var (
	DefaultMethods        = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"}
	DefaultAllowedHeaders = []string{"Content-Type", "Authorization", "X-Requested-With", "Range"}
	DefaultExposedHeaders = []string{"Content-Length", "Content-Range", "Content-Type", "Accept-Ranges", "ETag"}
)

const DefaultMaxAge = 24 * time.Hour

// Policy holds the values of the CORS headers. It is not modified after
// creation.
type Policy struct {
	methods        map[string]bool
	methodsValue   string
	allowedHeaders string
	exposedHeaders string
	maxAge         string
}

// NewPolicy creates a policy. Empty lists and a zero max age are replaced
// with the defaults.
func NewPolicy(methods, allowedHeaders, exposedHeaders []string, maxAge time.Duration) *Policy {
	if len(methods) == 0 {
		methods = DefaultMethods
	}

	if len(allowedHeaders) == 0 {
		allowedHeaders = DefaultAllowedHeaders
	}

	if len(exposedHeaders) == 0 {
		exposedHeaders = DefaultExposedHeaders
	}

	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	p := &Policy{
		methods:        make(map[string]bool),
		allowedHeaders: strings.Join(allowedHeaders, ", "),
		exposedHeaders: strings.Join(exposedHeaders, ", "),
		maxAge:         strconv.Itoa(int(maxAge.Seconds())),
	}

	var ms []string
	for _, m := range methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m != "" && !p.methods[m] {
			p.methods[m] = true
			ms = append(ms, m)
		}
	}

	p.methodsValue = strings.Join(ms, ", ")
	return p
}

// Default is the policy with the default values.
func Default() *Policy {
	return NewPolicy(nil, nil, nil, 0)
}

// Allows tells whether the method is in the allowed methods.
func (p *Policy) Allows(method string) bool {
	return p.methods[strings.ToUpper(method)]
}

// SetHeaders sets the CORS headers of a regular response.
func (p *Policy) SetHeaders(h http.Header) {
	h.Set(allowOriginHeader, "*")
	h.Set(allowMethodsHeader, p.methodsValue)
	h.Set(allowHeadersHeader, p.allowedHeaders)
	h.Set(exposeHeadersHeader, p.exposedHeaders)
	h.Set(maxAgeHeader, p.maxAge)
}

// Preflight returns the response to a preflight request.
func (p *Policy) Preflight(r *http.Request) *http.Response {
	h := make(http.Header)
	p.SetHeaders(h)
	h.Del(exposeHeadersHeader)

	if m := strings.TrimSpace(r.Header.Get(requestMethodHeader)); m != "" && p.Allows(m) {
		h.Set(allowMethodsHeader, strings.ToUpper(m))
	}

	if rh := strings.TrimSpace(r.Header.Get(requestHeadersHeader)); rh != "" {
		h.Set(allowHeadersHeader, rh)
	}

	return &http.Response{
		StatusCode: http.StatusNoContent,
		Header:     h,
		Body:       http.NoBody,
		Request:    r,
	}
}

type filter struct {
	policy *Policy
}

// New creates the filter answering preflight requests and setting the
// CORS headers on every response.
func New(p *Policy) filters.Filter {
	return filter{policy: p}
}

// Request serves the OPTIONS requests.
func (f filter) Request(ctx filters.FilterContext) {
	if ctx.Request().Method == http.MethodOptions {
		ctx.Serve(f.policy.Preflight(ctx.Request()))
	}
}

// Response sets the CORS headers.
func (f filter) Response(ctx filters.FilterContext) {
	f.policy.SetHeaders(ctx.Response().Header)
}
