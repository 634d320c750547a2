/*
Package sanitize implements the header hygiene of the gateway.

On the way to the upstream, the headers revealing the client address or
the proxies in front of the gateway are removed, Host is set to the
target host, Origin and Referer are made to point at the target, and the
usual browser headers are added when the client did not send them.

On the way back, the headers identifying the upstream server and the
security headers that would keep the content from working under the
gateway host are removed.
*/
package sanitize

import (
	"github.com/subgate/subgate/filters"
	snet "github.com/subgate/subgate/net"
)

type filter struct {
	policy *snet.HeaderPolicy
}

// New creates the header sanitizing filter.
func New(p *snet.HeaderPolicy) filters.Filter {
	return filter{policy: p}
}

func (f filter) Request(ctx filters.FilterContext) {
	req := ctx.Request()
	target := ctx.Target()

	req.Header = f.policy.Request(req.Header, target.Target, target.GatewayBase)
	req.Host = target.Target.Hostname()
}

func (f filter) Response(ctx filters.FilterContext) {
	f.policy.Response(ctx.Response().Header)
}
