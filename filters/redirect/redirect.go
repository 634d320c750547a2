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

// Package redirect keeps the clients following upstream redirects inside
// the gateway.
//
// For 3xx responses, an absolute Location pointing at an ordinary domain
// name is changed to point at the gateway host serving that domain:
//
//	Location: https://x.b.com/path  ->  Location: https://x--b--com.gw.tld/path
//
// Relative locations already resolve against the gateway host and are
// left alone. When the location cannot be translated, the redirect is
// delivered as received.
package redirect

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/subgate/subgate/filters"
	"github.com/subgate/subgate/subdomain"
)

type filter struct{}

// New creates the redirect location filter.
func New() filters.Filter { return filter{} }

func (filter) Request(filters.FilterContext) {}

func (filter) Response(ctx filters.FilterContext) {
	rsp := ctx.Response()
	if rsp.StatusCode < http.StatusMultipleChoices || rsp.StatusCode >= http.StatusBadRequest {
		return
	}

	location := rsp.Header.Get("Location")
	if location == "" {
		return
	}

	if l, ok := Translate(location, ctx.Target().GatewayBase); ok {
		rsp.Header.Set("Location", l)
	} else {
		ctx.Logger().Debugf("redirect location kept: %s", location)
	}
}

// Translate returns the gateway form of an absolute redirect location
// under the gateway base domain. The second return value is false when
// location has to be kept.
func Translate(location, gatewayBase string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(location))
	if err != nil || u.Host == "" {
		return "", false
	}

	switch strings.ToLower(u.Scheme) {
	case "", "http", "https":
	default:
		return "", false
	}

	if p := u.Port(); p != "" && p != "80" && p != "443" {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	if !subdomain.IsStandard(host) {
		return "", false
	}

	gw, err := subdomain.GatewayHost(host, gatewayBase)
	if err != nil {
		return "", false
	}

	u.Scheme = "https"
	u.Host = gw
	return u.String(), true
}
