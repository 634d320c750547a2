package net

import (
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/subgate/subgate/subdomain"
)

// DefaultRequestHeaderBlocklist contains the request headers that reveal
// the client address or the presence of proxies in front of the gateway.
var DefaultRequestHeaderBlocklist = []string{
	"cf-connecting-ip",
	"cf-connecting-ipv6",
	"cf-ipcountry",
	"cf-ray",
	"cf-visitor",
	"cf-worker",
	"cf-ew-via",
	"cdn-loop",
	"x-forwarded-for",
	"x-forwarded-host",
	"x-forwarded-proto",
	"x-forwarded-port",
	"x-forwarded-server",
	"x-original-forwarded-for",
	"x-real-ip",
	"x-client-ip",
	"x-cluster-client-ip",
	"true-client-ip",
	"fastly-client-ip",
	"forwarded",
	"via",
	"proxy-authorization",
}

// DefaultResponseHeaderBlocklist contains the response headers that
// fingerprint the upstream server or would keep the content from working
// when served from the gateway host.
var DefaultResponseHeaderBlocklist = []string{
	"server",
	"x-powered-by",
	"x-aspnet-version",
	"x-aspnetmvc-version",
	"x-runtime",
	"x-generator",
	"content-security-policy",
	"content-security-policy-report-only",
	"x-frame-options",
	"x-content-type-options",
}

// headers that only make sense for a single connection
var hopHeaders = map[string]bool{
	"te":                 true,
	"connection":         true,
	"proxy-connection":   true,
	"keep-alive":         true,
	"proxy-authenticate": true,
	"trailer":            true,
	"transfer-encoding":  true,
	"upgrade":            true,
}

// browserDefaults are set on the outgoing request when the client did not
// send them, so the upstream cannot tell the gateway apart from a browser
// by missing headers.
var browserDefaults = [][2]string{
	{"User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"},
	{"Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"},
	{"Accept-Language", "en-US,en;q=0.9"},
	{"Accept-Encoding", "gzip, deflate, br"},
}

// HeaderPolicy sanitizes the headers crossing the gateway. It is
// immutable after creation and safe for concurrent use.
type HeaderPolicy struct {
	request  map[string]bool
	response map[string]bool
}

func lowerSet(names []string) map[string]bool {
	s := make(map[string]bool, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			s[strings.ToLower(n)] = true
		}
	}

	return s
}

// NewHeaderPolicy creates a policy from the lists of blocked request and
// response header names. Matching is case-insensitive.
func NewHeaderPolicy(requestBlocklist, responseBlocklist []string) *HeaderPolicy {
	return &HeaderPolicy{
		request:  lowerSet(requestBlocklist),
		response: lowerSet(responseBlocklist),
	}
}

// RequestBlocked tells whether the request header name is dropped.
func (p *HeaderPolicy) RequestBlocked(name string) bool {
	name = strings.ToLower(name)
	return p.request[name] || hopHeaders[name]
}

// ResponseBlocked tells whether the response header name is dropped.
func (p *HeaderPolicy) ResponseBlocked(name string) bool {
	name = strings.ToLower(name)
	return p.response[name] || hopHeaders[name]
}

// Request builds the outgoing header set for a request to target from the
// incoming headers. gatewayBase is the base domain of the gateway host the
// request arrived on; it is used to translate a Referer pointing at the
// gateway back to the page it stands for.
func (p *HeaderPolicy) Request(in http.Header, target *url.URL, gatewayBase string) http.Header {
	out := make(http.Header, len(in)+len(browserDefaults))
	var origin, referer string
	for k, v := range in {
		if p.RequestBlocked(k) {
			continue
		}

		switch strings.ToLower(k) {
		case "host":
			continue
		case "origin":
			origin = firstValue(v)
			continue
		case "referer":
			referer = firstValue(v)
			continue
		}

		ck := http.CanonicalHeaderKey(k)
		out[ck] = append(out[ck], slices.Clone(v)...)
	}

	out.Set("Host", target.Hostname())
	if origin != "" {
		out.Set("Origin", target.Scheme+"://"+target.Host)
	}

	if referer != "" {
		if r, ok := translateReferer(referer, target, gatewayBase); ok {
			out.Set("Referer", r)
		}
	}

	for _, d := range browserDefaults {
		if out.Get(d[0]) == "" {
			out.Set(d[0], d[1])
		}
	}

	return out
}

// Response removes the blocked headers from h in place.
func (p *HeaderPolicy) Response(h http.Header) {
	for k := range h {
		if p.ResponseBlocked(k) {
			delete(h, k)
		}
	}
}

func firstValue(v []string) string {
	if len(v) == 0 {
		return ""
	}

	return v[0]
}

func translateReferer(referer string, target *url.URL, gatewayBase string) (string, bool) {
	u, err := url.Parse(referer)
	if err != nil || u.Host == "" {
		return "", false
	}

	host := target.Host
	if label, base, ok := subdomain.SplitHost(strings.ToLower(u.Host)); ok && gatewayBase != "" && base == gatewayBase {
		if decoded, err := subdomain.Decode(label); err == nil {
			host = decoded
		}
	}

	u.Scheme = target.Scheme
	u.Host = host
	u.User = nil
	return u.String(), true
}
