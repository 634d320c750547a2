/*
Package metrics implements collection of the gateway performance
metrics.

The collected metrics include the total request processing time by
status code and method, the time waiting for the upstream response, the
upstream failures by kind, and the outcome of the content rewriting by
content kind.

Metrics are exposed in the Prometheus format. To enable them, the gateway
needs to be started with a support listener address, where the current
values can be scraped from the /metrics path.
*/
package metrics
