package net

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"

	"go4.org/netipx"
)

var (
	// ErrUnsupportedScheme is returned for URLs that are neither http nor https.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")

	// ErrPrivateNetwork is returned for URLs and addresses pointing into
	// loopback, link-local or private networks.
	ErrPrivateNetwork = errors.New("private network address")
)

// DefaultPrivateCIDRs lists the networks a gateway must never reach on
// behalf of a client.
var DefaultPrivateCIDRs = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"0.0.0.0/32",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

var localHostnames = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
}

// Classifier decides whether a target may be reached through the gateway.
// It only inspects literals and never resolves names; the resolved address
// check happens in the dialer, see SafeDialer.
type Classifier struct {
	blocked *netipx.IPSet
}

var defaultClassifier = mustClassifier(nil)

func mustClassifier(extra []string) *Classifier {
	c, err := NewClassifier(extra)
	if err != nil {
		panic(err)
	}

	return c
}

// NewClassifier creates a classifier blocking DefaultPrivateCIDRs and the
// additional CIDRs or addresses passed in.
func NewClassifier(extraCIDRs []string) (*Classifier, error) {
	cidrs := append(append([]string(nil), DefaultPrivateCIDRs...), extraCIDRs...)
	ips, err := ParseIPCIDRs(cidrs)
	if err != nil {
		return nil, fmt.Errorf("invalid blocked CIDRs: %w", err)
	}

	return &Classifier{blocked: ips}, nil
}

// BlockedAddr tells whether addr falls into a blocked network.
func (c *Classifier) BlockedAddr(addr netip.Addr) bool {
	return c.blocked.Contains(addr.Unmap())
}

// CheckHost rejects local host names and literal addresses in blocked
// networks. Other names are accepted.
func (c *Classifier) CheckHost(host string) error {
	host = strings.ToLower(strings.TrimSuffix(strings.Trim(host, "[]"), "."))
	if localHostnames[host] || strings.HasSuffix(host, ".localhost") {
		return ErrPrivateNetwork
	}

	if addr, err := netip.ParseAddr(host); err == nil && c.BlockedAddr(addr) {
		return ErrPrivateNetwork
	}

	return nil
}

// Check validates the scheme and the host of u.
func (c *Classifier) Check(u *url.URL) error {
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ErrUnsupportedScheme
	}

	if u.Hostname() == "" {
		return fmt.Errorf("missing host in %q", u.String())
	}

	return c.CheckHost(u.Hostname())
}

// IsPublicURL tells whether u is an http(s) URL that does not point to a
// local or private network, using the default private networks.
func IsPublicURL(u *url.URL) bool {
	return defaultClassifier.Check(u) == nil
}
