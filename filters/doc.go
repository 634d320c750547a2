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
Package filters contains the definitions of the gateway filters.

Filters are the steps of the processing pipeline that run on every
proxied request. The proxy calls the Request method of each filter in
order, before the upstream request is made, and the Response method in
reverse order, after the upstream response was received.

A filter can stop the processing of a request by serving a response
itself with FilterContext.Serve. In this case the upstream is not called,
and only the Response methods of the filters that already processed the
request are called.

The gateway uses the following filters, in this order:

	cors      CORS response headers and local answering of preflight requests
	sanitize  request and response header hygiene
	redirect  rewriting of redirect locations into gateway form
	content   rewriting of URLs in textual response bodies

Filter instances are shared between all requests. Any state stored with
a filter is shared between concurrent requests, request scoped state
belongs to the state bag of the filter context.
*/
package filters
