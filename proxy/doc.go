// Copyright 2015 Zalando SE
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package proxy implements the HTTP handler of the gateway, proxying the
requests addressed to gateway hosts to the hosts encoded in their first
label.

A request to youtube--com.gw.tld/watch?v=1 is proxied to
https://youtube.com/watch?v=1. The host carries no routing table: the
target is a pure function of the first label of the host, and the base
domain, gw.tld, is whatever the rest of the host is.

# Proxy Mechanism

1. host parsing:

The host of the incoming request is lower cased and split into its first
label and the base domain. Requests to the landing label, e.g.
proxy.gw.tld, are handed to the landing handler. Other first labels are
decoded into the target host; when this fails, the request is rejected
with 400 Bad Request before any network I/O.

2. validation:

Methods outside the allowed set are rejected with 405 Method Not
Allowed. When a classifier is configured, targets that are literal
private or loopback addresses are rejected with 403 Forbidden. OPTIONS
requests skip both checks, the cors filter answers them locally.

3. upstream request augmentation:

The request handling method of all filters is executed in order. The
filters share a context object, that provides the request, the response
writer, the rewrite context of the target and a free-form state bag.
Filters can break the filter chain, serving their own response object.
This is how preflight requests are answered without reaching the
upstream.

4. upstream request:

The augmented request is sent to the target with the scheme forced to
https, the path and the query copied verbatim, and redirects not
followed. The round trip is bounded by a timeout, after which it is
canceled and the client receives 504 Gateway Timeout. Any other failure
results in 500 Internal Server Error, or 403 Forbidden when the target
resolved to a blocked address.

5. downstream response augmentation:

The response handling method of all the filters processed in step 3 is
executed in reverse order, with the same filter context, now including
the response.

6. response:

The response is streamed to the client. Every request is logged in the
access log, measured and traced.

Errors produced by the proxy itself are sent as JSON, see package status.
Filters never produce errors: a panicking filter is logged and the
processing continues.
*/
package proxy
