package net

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"
)

// Resolver looks up the addresses of a host.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// SafeDialer resolves the target host itself, refuses to connect when any
// of the resolved addresses is blocked by the classifier, and then dials
// the first address. Dialing a pinned address keeps a second resolution
// from returning a different, private, answer.
type SafeDialer struct {
	Dialer     *net.Dialer
	Resolver   Resolver
	Classifier *Classifier
}

func NewSafeDialer(c *Classifier, timeout time.Duration) *SafeDialer {
	return &SafeDialer{
		Dialer: &net.Dialer{
			Timeout:   timeout,
			KeepAlive: -1,
		},
		Resolver:   net.DefaultResolver,
		Classifier: c,
	}
}

func (d *SafeDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}

	if err := d.Classifier.CheckHost(host); err != nil {
		return nil, fmt.Errorf("dial %s: %w", host, err)
	}

	ips, err := d.Resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", host, err)
	}

	if len(ips) == 0 {
		return nil, fmt.Errorf("no addresses resolved for %q", host)
	}

	for _, ip := range ips {
		if d.Classifier.BlockedAddr(ip) {
			return nil, fmt.Errorf("dial %s (%s): %w", host, ip, ErrPrivateNetwork)
		}
	}

	return d.Dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].Unmap().String(), port))
}
