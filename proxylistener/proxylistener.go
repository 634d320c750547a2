// Package proxylistener accepts the PROXY protocol header sent by a TCP
// load balancer in front of the gateway, so that the access log and the
// metrics see the client address instead of the load balancer.
//
// The client address is never forwarded upstream, the sanitize filter
// removes every header that could carry it.
package proxylistener

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/pires/go-proxyproto"

	snet "github.com/subgate/subgate/net"
)

const (
	defaultReadHeaderTimeout = time.Second
	defaultReadBufferSize    = 256
)

var errUnsupportedProtocol = errors.New("proxylistener: unsupported protocol")

// Options of the PROXY protocol listener.
type Options struct {
	// Listener accepting the TCP connections.
	Listener net.Listener

	// ReadHeaderTimeout bounds the wait for the PROXY header.
	ReadHeaderTimeout time.Duration

	ReadBufferSize int

	// AllowListCIDRs are the load balancers that must send the header.
	// When empty, the header is accepted from every peer that is not
	// on the deny list, and not required.
	AllowListCIDRs []string

	// SkipListCIDRs are the peers connecting directly, their header is
	// ignored.
	SkipListCIDRs []string

	// DenyListCIDRs are the peers that must not send the header, their
	// connections fail when they do.
	DenyListCIDRs []string
}

// NewListener wraps the listener of the options.
func NewListener(opt Options) (net.Listener, error) {
	if opt.ReadHeaderTimeout == 0 {
		opt.ReadHeaderTimeout = defaultReadHeaderTimeout
	}

	if opt.ReadBufferSize == 0 {
		opt.ReadBufferSize = defaultReadBufferSize
	}

	skipSet, err := snet.ParseIPCIDRs(opt.SkipListCIDRs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse skip list: %w", err)
	}

	allowSet, err := snet.ParseIPCIDRs(opt.AllowListCIDRs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse allow list: %w", err)
	}

	denySet, err := snet.ParseIPCIDRs(opt.DenyListCIDRs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse deny list: %w", err)
	}

	allowAll := len(opt.AllowListCIDRs) == 0
	policy := func(cpo proxyproto.ConnPolicyOptions) (proxyproto.Policy, error) {
		ap, err := netip.ParseAddrPort(cpo.Upstream.String())
		if err != nil {
			return proxyproto.REJECT, nil
		}

		addr := ap.Addr()
		addr = addr.Unmap().WithZone("")
		switch {
		case denySet.Contains(addr):
			return proxyproto.REJECT, nil
		case skipSet.Contains(addr):
			return proxyproto.SKIP, nil
		case allowSet.Contains(addr):
			return proxyproto.REQUIRE, nil
		case allowAll:
			return proxyproto.USE, nil
		default:
			return proxyproto.REJECT, nil
		}
	}

	return &proxyproto.Listener{
		Listener:          opt.Listener,
		ReadHeaderTimeout: opt.ReadHeaderTimeout,
		ReadBufferSize:    opt.ReadBufferSize,
		ConnPolicy:        policy,
		ValidateHeader: func(h *proxyproto.Header) error {
			if h == nil {
				return errors.New("proxylistener: header is nil")
			}

			if h.Command == proxyproto.LOCAL {
				return nil
			}

			if h.SourceAddr == nil || h.DestinationAddr == nil {
				return fmt.Errorf("proxylistener: header missing addresses src: %v, dst: %v", h.SourceAddr, h.DestinationAddr)
			}

			if h.TransportProtocol != proxyproto.TCPv4 && h.TransportProtocol != proxyproto.TCPv6 {
				return fmt.Errorf("%w: %v", errUnsupportedProtocol, h.TransportProtocol)
			}

			return nil
		},
	}, nil
}
