package net

import (
	"net"
	"strings"
)

// HostPatch is used to modify host[:port] string
type HostPatch struct {
	// Remove port if present
	RemovePort bool

	// Remove trailing dot if present
	RemoveTrailingDot bool

	// Convert to lowercase
	ToLower bool
}

// GatewayHostPatch normalizes the inbound host before its first label is
// decoded. The port is kept, because it belongs to the gateway base domain.
var GatewayHostPatch = HostPatch{RemoveTrailingDot: true, ToLower: true}

func (h HostPatch) Apply(original string) string {
	host, port := original, ""

	// avoid net.SplitHostPort for value without port
	if strings.IndexByte(original, ':') != -1 {
		if sh, sp, err := net.SplitHostPort(original); err == nil {
			host, port = sh, sp
		}
	}

	if h.RemovePort {
		port = ""
	}

	if h.RemoveTrailingDot {
		host = strings.TrimSuffix(host, ".")
	}

	if h.ToLower {
		host = strings.ToLower(host)
	}

	if port == "" {
		return host
	}

	return net.JoinHostPort(host, port)
}
