package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/subgate/subgate/filters/filtertest"
)

func TestResponseHeaders(t *testing.T) {
	f := New(Default())

	ctx := &filtertest.Context{FResponse: &http.Response{Header: http.Header{
		allowOriginHeader: {"https://youtube.com"},
		"Content-Type":    {"text/html"},
	}}}
	f.Response(ctx)

	h := ctx.Response().Header
	assert.Equal(t, "*", h.Get(allowOriginHeader))
	assert.Equal(t, "GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS", h.Get(allowMethodsHeader))
	assert.Equal(t, "Content-Type, Authorization, X-Requested-With, Range", h.Get(allowHeadersHeader))
	assert.Equal(t, "86400", h.Get(maxAgeHeader))
	assert.NotEmpty(t, h.Get(exposeHeadersHeader))
	assert.Equal(t, "text/html", h.Get("Content-Type"))
}

func TestPreflight(t *testing.T) {
	f := New(NewPolicy([]string{"get", "post", "options", "GET"}, nil, nil, time.Hour))

	for _, tc := range []struct {
		name            string
		requestMethod   string
		requestHeaders  string
		expectedMethods string
		expectedHeaders string
	}{{
		name:            "no request headers",
		expectedMethods: "GET, POST, OPTIONS",
		expectedHeaders: "Content-Type, Authorization, X-Requested-With, Range",
	}, {
		name:            "allowed method mirrored",
		requestMethod:   "post",
		requestHeaders:  "X-Custom, Content-Type",
		expectedMethods: "POST",
		expectedHeaders: "X-Custom, Content-Type",
	}, {
		name:            "disallowed method",
		requestMethod:   "DELETE",
		expectedMethods: "GET, POST, OPTIONS",
		expectedHeaders: "Content-Type, Authorization, X-Requested-With, Range",
	}} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("OPTIONS", "https://youtube--com.gw.tld/api", nil)
			if tc.requestMethod != "" {
				req.Header.Set(requestMethodHeader, tc.requestMethod)
			}

			if tc.requestHeaders != "" {
				req.Header.Set(requestHeadersHeader, tc.requestHeaders)
			}

			ctx := &filtertest.Context{FRequest: req}
			f.Request(ctx)

			assert.True(t, ctx.Served())
			rsp := ctx.FServedResponse
			assert.Equal(t, http.StatusNoContent, rsp.StatusCode)
			assert.Equal(t, "*", rsp.Header.Get(allowOriginHeader))
			assert.Equal(t, tc.expectedMethods, rsp.Header.Get(allowMethodsHeader))
			assert.Equal(t, tc.expectedHeaders, rsp.Header.Get(allowHeadersHeader))
			assert.Equal(t, "3600", rsp.Header.Get(maxAgeHeader))
		})
	}
}

func TestNonPreflightNotServed(t *testing.T) {
	f := New(Default())
	for _, m := range []string{"GET", "POST", "HEAD"} {
		ctx := &filtertest.Context{FRequest: httptest.NewRequest(m, "https://youtube--com.gw.tld/", nil)}
		f.Request(ctx)
		assert.False(t, ctx.Served(), m)
	}
}

func TestAllows(t *testing.T) {
	p := Default()
	assert.True(t, p.Allows("GET"))
	assert.True(t, p.Allows("patch"))
	assert.False(t, p.Allows("TRACE"))
	assert.False(t, p.Allows("CONNECT"))
}
