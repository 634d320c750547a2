package redirect

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/subgate/subgate/filters/filtertest"
	"github.com/subgate/subgate/rewrite"
)

func TestTranslate(t *testing.T) {
	for _, tc := range []struct {
		location string
		expected string
		ok       bool
	}{
		{"https://x.b.com/path", "https://x--b--com.gw.tld/path", true},
		{"http://X.B.com/path?q=1#f", "https://x--b--com.gw.tld/path?q=1#f", true},
		{"//accounts.google.com/login", "https://accounts--google--com.gw.tld/login", true},
		{"https://b.com:443/", "https://b--com.gw.tld/", true},
		{"https://b.com:8443/", "", false},
		{"/relative/path", "", false},
		{"https://localhost/", "", false},
		{"https://already--encoded.gw.tld/", "", false},
		{"ftp://b.com/", "", false},
		{"https://b_c.com/", "", false},
		{"http://[::1", "", false},
	} {
		t.Run(tc.location, func(t *testing.T) {
			l, ok := Translate(tc.location, "gw.tld")
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.expected, l)
		})
	}
}

func testContext(status int, location string) *filtertest.Context {
	target, _ := url.Parse("https://b.com/")
	rsp := &http.Response{StatusCode: status, Header: http.Header{}}
	if location != "" {
		rsp.Header.Set("Location", location)
	}

	return &filtertest.Context{
		FResponse: rsp,
		FTarget:   rewrite.NewContext(target, "gw.tld", nil),
	}
}

func TestResponse(t *testing.T) {
	f := New()

	for _, tc := range []struct {
		name     string
		status   int
		location string
		expected string
	}{
		{"found", http.StatusFound, "https://x.b.com/path", "https://x--b--com.gw.tld/path"},
		{"moved permanently", http.StatusMovedPermanently, "https://b.com/", "https://b--com.gw.tld/"},
		{"see other relative", http.StatusSeeOther, "/login", "/login"},
		{"not modified without location", http.StatusNotModified, "", ""},
		{"unparsable kept", http.StatusFound, "http://[::1", "http://[::1"},
		{"not a redirect", http.StatusCreated, "https://x.b.com/new", "https://x.b.com/new"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := testContext(tc.status, tc.location)
			f.Request(ctx)
			f.Response(ctx)
			assert.Equal(t, tc.expected, ctx.Response().Header.Get("Location"))
			assert.Equal(t, tc.status, ctx.Response().StatusCode)
		})
	}
}
