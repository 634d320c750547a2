package net

import (
	"net"
	"net/netip"
	"strings"

	"go4.org/netipx"
)

// strip port from addresses with hostname, ipv4 or ipv6
func stripPort(address string) string {
	if h, _, err := net.SplitHostPort(address); err == nil {
		return h
	}

	return address
}

// ParseIPCIDRs returns a valid IPSet even in case there are parsing
// errors of some partial provided input cidrs. So recently added
// bogus values can be logged and ignored at runtime.
func ParseIPCIDRs(cidrs []string) (*netipx.IPSet, error) {
	var (
		b   netipx.IPSetBuilder
		err error
	)

	for _, w := range cidrs {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}

		if strings.Contains(w, "/") {
			if pref, e := netip.ParsePrefix(w); e != nil {
				err = e
			} else {
				b.AddPrefix(pref)
			}
		} else if addr, e := netip.ParseAddr(w); e != nil {
			err = e
		} else {
			b.Add(addr)
		}
	}

	ips, e := b.IPSet()
	if e != nil {
		return ips, e
	}

	return ips, err
}
