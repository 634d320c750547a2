/*
Package cors implements the CORS headers of the gateway.

# How It Works

Every response leaving the gateway, including the error responses, carries
a wildcard Access-Control-Allow-Origin header together with the allowed
methods, the allowed and exposed headers and the max age of the policy.
Any CORS header set by the upstream is overwritten.

Preflight requests, the requests with the OPTIONS method, are answered
by the gateway itself with 204 No Content and are never forwarded. The
requested method is echoed back when the policy allows it, and the
requested headers are mirrored.
*/
package cors
