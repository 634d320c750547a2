/*
Package subgate provides a subdomain gateway: a reverse proxy that serves
any public website under a subdomain of its own domain.

A request to aaa--bb--com.gw.tld is forwarded to https://aaa.bb.com with
the same path and query. The double hyphen of the first label stands for
the dots of the target host name, single hyphens are kept as they are.
The headers that could reveal the client are removed from the outgoing
request, the redirects of the upstream are translated back into gateway
hosts, and the URLs in the textual responses are rewritten so that the
pages keep working inside the gateway.

The first label reserved for the gateway itself, proxy by default, serves
a landing page and the link generation API:

	POST /api/generate
	{"url": "github.com/zalando"}

	{"success": true, "originalUrl": "https://github.com/zalando", "proxyUrl": "https://github--com.gw.tld/zalando"}

# Quickstart

	go install github.com/subgate/subgate/cmd/subgate@latest
	subgate -address :9090 -support-listener :9911

The gateway expects a wildcard DNS record and TLS termination in front of
it, e.g. *.gw.tld pointing to the host running subgate. The upstream
requests always use https.

# Packages

The subdomain package maps the first label of the host to the target
host and back. The net package decides which targets are allowed and
which headers are forwarded. The proxy package implements the request
processing, and applies the filters from the filters package to every
request and response: cors, sanitize, redirect and content, in this
order. The rewrite package holds the URL rewriting of the response
bodies.

Errors are answered with a JSON body, see the status package:

	{"error": "Invalid subdomain", "status": 400, "timestamp": "2024-05-01T10:00:00.042Z"}

# Operations

Prometheus metrics are exposed on the /metrics path of the support
listener, together with a /health endpoint. The proxy logs every request
in the Apache combined format, extended with the duration, the requested
and the target host, and the request id. On SIGTERM, the gateway stops
accepting connections and waits for the open ones, at most for the
shutdown timeout.

Behind a TCP load balancer, -enable-proxy-protocol lets the main listener
read the client address from the PROXY protocol header, see the
proxylistener package. Spans of the proxy can be recorded with
-opentracing basic, see the tracing package.
*/
package subgate
