package rewrite

import (
	"net/url"
	"strings"

	"github.com/subgate/subgate/subdomain"
)

// DefaultCDNSuffixes lists the host suffixes of common asset delivery
// networks. Subdomains of the target host matching any of them keep
// pointing at the original host.
var DefaultCDNSuffixes = []string{
	"cdnjs.cloudflare.com",
	"cdn.jsdelivr.net",
	"unpkg.com",
	"fonts.googleapis.com",
	"fonts.gstatic.com",
	"ajax.googleapis.com",
	"cloudfront.net",
	"akamaihd.net",
	"fastly.net",
	"bootstrapcdn.com",
}

// Context describes the request a response body belongs to. It is created
// once per request and not modified afterwards.
type Context struct {
	// Target is the full URL the request was proxied to. Relative
	// references are resolved against it.
	Target *url.URL

	// GatewayBase is the base domain of the gateway, with the port when
	// the gateway was addressed with one, e.g. gw.tld or gw.tld:8443.
	GatewayBase string

	// CDNSuffixes excludes matching hosts from the rewriting, except for
	// the target host itself.
	CDNSuffixes []string

	host string
}

// NewContext creates the rewrite context for a request proxied to target
// and received under the gateway base domain.
func NewContext(target *url.URL, gatewayBase string, cdnSuffixes []string) *Context {
	return &Context{
		Target:      target,
		GatewayBase: gatewayBase,
		CDNSuffixes: cdnSuffixes,
		host:        strings.ToLower(target.Hostname()),
	}
}

// TargetHost returns the lower case host name of the target.
func (c *Context) TargetHost() string { return c.host }

// TargetOrigin returns the scheme and host of the target, e.g.
// https://youtube.com.
func (c *Context) TargetOrigin() string {
	return c.Target.Scheme + "://" + c.Target.Host
}

func defaultPort(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}

func (c *Context) isCDN(host string) bool {
	for _, s := range c.CDNSuffixes {
		if host == s || strings.HasSuffix(host, "."+s) {
			return true
		}
	}

	return false
}

// ShouldProxy tells whether an absolute URL is reached through the
// gateway: its host is the target host or a subdomain of it, and it is
// not on the CDN list. URLs with an explicit non-default port are not
// eligible, the gateway host has no place for it.
func (c *Context) ShouldProxy(u *url.URL) bool {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}

	if p := u.Port(); p != "" && p != defaultPort(scheme) {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" || !subdomain.IsStandard(host) {
		return false
	}

	if host == c.host {
		return true
	}

	return strings.HasSuffix(host, "."+c.host) && !c.isCDN(host)
}

// gatewayHost returns the gateway host for host, or false when host does
// not survive the encoding.
func (c *Context) gatewayHost(host string) (string, bool) {
	label, err := subdomain.Encode(host)
	if err != nil {
		return "", false
	}

	if _, err := subdomain.Decode(label); err != nil {
		return "", false
	}

	return label + "." + c.GatewayBase, true
}

func skipURL(s string) bool {
	if s == "" || s[0] == '#' {
		return true
	}

	if len(s) >= 5 {
		switch strings.ToLower(s[:5]) {
		case "data:", "blob:":
			return true
		}
	}

	return false
}

// RewriteURL returns the gateway form of a URL found in content.
// Relative references are resolved against the target URL first. When
// the URL is not eligible or cannot be parsed, it is returned unchanged.
func (c *Context) RewriteURL(raw string) string {
	s := strings.TrimSpace(raw)
	if skipURL(s) {
		return raw
	}

	u, err := url.Parse(s)
	if err != nil {
		return raw
	}

	abs := c.Target.ResolveReference(u)
	if !c.ShouldProxy(abs) {
		return raw
	}

	host, ok := c.gatewayHost(strings.ToLower(abs.Hostname()))
	if !ok {
		return raw
	}

	abs.Scheme = "https"
	abs.Host = host
	abs.User = nil
	return abs.String()
}

// rewriteOrigin rewrites a scheme://host[:port] prefix matched in text.
// The prefix has no path, so it is never resolved against the target.
func (c *Context) rewriteOrigin(origin string) (string, bool) {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" || !c.ShouldProxy(u) {
		return origin, false
	}

	host, ok := c.gatewayHost(strings.ToLower(u.Hostname()))
	if !ok {
		return origin, false
	}

	return "https://" + host, true
}
