package net

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testPolicy() *HeaderPolicy {
	return NewHeaderPolicy(DefaultRequestHeaderBlocklist, DefaultResponseHeaderBlocklist)
}

func TestRequestHeadersBlocklist(t *testing.T) {
	target, _ := url.Parse("https://youtube.com/watch?v=1")

	in := http.Header{}
	for _, name := range DefaultRequestHeaderBlocklist {
		in[name] = []string{"1.2.3.4"}
		in[strings.ToUpper(name)] = []string{"1.2.3.4"}
		in[http.CanonicalHeaderKey(name)] = []string{"1.2.3.4"}
	}
	in["Connection"] = []string{"keep-alive"}
	in["Cookie"] = []string{"a=b"}
	in["X-Custom"] = []string{"kept"}

	out := testPolicy().Request(in, target, "gw.tld")

	for k := range out {
		assert.False(t, testPolicy().RequestBlocked(k), "blocked header %s was forwarded", k)
	}

	assert.Equal(t, "a=b", out.Get("Cookie"))
	assert.Equal(t, "kept", out.Get("X-Custom"))
	assert.Empty(t, out.Get("Connection"))
}

func TestRequestHeadersHost(t *testing.T) {
	target, _ := url.Parse("https://youtube.com/")

	for _, in := range []http.Header{
		{},
		{"Host": {"youtube--com.gw.tld"}},
		{"host": {"evil.example"}},
	} {
		out := testPolicy().Request(in, target, "gw.tld")
		assert.Equal(t, "youtube.com", out.Get("Host"))
		assert.Len(t, out.Values("Host"), 1)
	}
}

func TestRequestHeadersOriginReferer(t *testing.T) {
	target, _ := url.Parse("https://youtube.com/watch")

	t.Run("absent", func(t *testing.T) {
		out := testPolicy().Request(http.Header{}, target, "gw.tld")
		assert.Empty(t, out.Get("Origin"))
		assert.Empty(t, out.Get("Referer"))
	})

	t.Run("origin rewritten", func(t *testing.T) {
		out := testPolicy().Request(http.Header{"Origin": {"https://youtube--com.gw.tld"}}, target, "gw.tld")
		assert.Equal(t, "https://youtube.com", out.Get("Origin"))
	})

	t.Run("gateway referer decoded", func(t *testing.T) {
		out := testPolicy().Request(http.Header{"Referer": {"https://m--youtube--com.gw.tld/feed?x=1"}}, target, "gw.tld")
		assert.Equal(t, "https://m.youtube.com/feed?x=1", out.Get("Referer"))
	})

	t.Run("foreign referer retargeted", func(t *testing.T) {
		out := testPolicy().Request(http.Header{"Referer": {"http://other.example/page"}}, target, "gw.tld")
		assert.Equal(t, "https://youtube.com/page", out.Get("Referer"))
	})

	t.Run("invalid referer dropped", func(t *testing.T) {
		out := testPolicy().Request(http.Header{"Referer": {"::not a url"}}, target, "gw.tld")
		assert.Empty(t, out.Get("Referer"))

		out = testPolicy().Request(http.Header{"Referer": {"/relative"}}, target, "gw.tld")
		assert.Empty(t, out.Get("Referer"))
	})
}

func TestRequestHeadersBrowserDefaults(t *testing.T) {
	target, _ := url.Parse("https://example.com/")

	out := testPolicy().Request(http.Header{}, target, "gw.tld")
	for _, d := range browserDefaults {
		assert.Equal(t, d[1], out.Get(d[0]))
	}

	out = testPolicy().Request(http.Header{"User-Agent": {"curl/8"}, "Accept": {"*/*"}}, target, "gw.tld")
	assert.Equal(t, "curl/8", out.Get("User-Agent"))
	assert.Equal(t, "*/*", out.Get("Accept"))
	assert.NotEmpty(t, out.Get("Accept-Language"))
}

func TestResponseHeaders(t *testing.T) {
	h := http.Header{
		"Server":                  {"nginx"},
		"x-powered-by":            {"PHP"},
		"Content-Security-Policy": {"default-src 'self'"},
		"X-Frame-Options":         {"DENY"},
		"X-Content-Type-Options":  {"nosniff"},
		"Content-Type":            {"text/html"},
		"Set-Cookie":              {"a=b"},
	}

	testPolicy().Response(h)

	assert.Equal(t, http.Header{
		"Content-Type": {"text/html"},
		"Set-Cookie":   {"a=b"},
	}, h)
}
