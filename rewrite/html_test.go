package rewrite

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTMLLinkRewrite(t *testing.T) {
	ctx := testContext(t, "https://youtube.com/watch?v=1", "gw.tld")

	doc := `<!DOCTYPE html><html><head><title>t</title></head><body><a href="https://youtube.com/next">next</a></body></html>`
	expected := `<!DOCTYPE html><html><head><script>` + ctx.Shim() + `</script><title>t</title></head>` +
		`<body><a href="https://youtube--com.gw.tld/next">next</a></body></html>`

	out, changed := ctx.Body(HTML, []byte(doc))
	assert.True(t, changed)
	assert.Equal(t, expected, string(out))
}

func TestHTMLThirdPartyOnlyIsUnchanged(t *testing.T) {
	ctx := testContext(t, "https://youtube.com/", "gw.tld")

	doc := "<!doctype html>\n<HTML><Head>\n" +
		"<LINK REL=stylesheet HREF='https://fonts.googleapis.com/css?family=Roboto'>\n" +
		"<script src=\"https://cdnjs.cloudflare.com/ajax/libs/x.js\"   defer></script>\n" +
		"</Head><body>\n" +
		"<img src=https://fonts.gstatic.com/x alt=\"a &amp; b\">\n" +
		"<a href=\"https://example.com/?a=1&amp;b=2\">ext</a>\n" +
		"<a href=\"#top\">top</a><img src=\"data:image/png;base64,AAAA\">\n" +
		"<!-- https://youtube.com/in-a-comment -->\n" +
		"<textarea>https://youtube.com/in-text</textarea>\n" +
		"</body></HTML>\n"

	out, changed := ctx.Body(HTML, []byte(doc))
	assert.False(t, changed)
	assert.Equal(t, doc, string(out))
}

func TestHTMLAttributes(t *testing.T) {
	ctx := testContext(t, "https://youtube.com/watch", "gw.tld")

	for _, tc := range []struct {
		name     string
		doc      string
		expected string
	}{{
		name:     "relative href",
		doc:      `<a href="/feed">`,
		expected: `<a href="https://youtube--com.gw.tld/feed">`,
	}, {
		name:     "form action",
		doc:      `<form action="/search" method="get">`,
		expected: `<form action="https://youtube--com.gw.tld/search" method="get">`,
	}, {
		name:     "action outside form",
		doc:      `<div action="/search">`,
		expected: `<div action="/search">`,
	}, {
		name:     "srcset keeps descriptors",
		doc:      `<img srcset="https://youtube.com/a.png 1x, https://fonts.gstatic.com/b.png 2x">`,
		expected: `<img srcset="https://youtube--com.gw.tld/a.png 1x, https://fonts.gstatic.com/b.png 2x">`,
	}, {
		name:     "srcset URL with commas",
		doc:      `<img srcset="https://youtube.com/img/w_100,h_100/a.png 1x">`,
		expected: `<img srcset="https://youtube--com.gw.tld/img/w_100,h_100/a.png 1x">`,
	}, {
		name:     "integrity dropped",
		doc:      `<script src="https://youtube.com/s.js" integrity="sha384-abc" crossorigin="anonymous"></script>`,
		expected: `<script src="https://youtube--com.gw.tld/s.js" crossorigin="anonymous"></script>`,
	}, {
		name:     "meta refresh",
		doc:      `<meta http-equiv="refresh" content="0; url=https://youtube.com/home">`,
		expected: `<meta http-equiv="refresh" content="0; url=https://youtube--com.gw.tld/home">`,
	}, {
		name:     "meta content URL",
		doc:      `<meta property="og:url" content="https://m.youtube.com/watch">`,
		expected: `<meta property="og:url" content="https://m--youtube--com.gw.tld/watch">`,
	}, {
		name:     "meta content text",
		doc:      `<meta name="description" content="videos">`,
		expected: `<meta name="description" content="videos">`,
	}, {
		name:     "meta csp removed",
		doc:      `<meta http-equiv="Content-Security-Policy" content="default-src 'self'"><p>`,
		expected: `<p>`,
	}, {
		name:     "query escaped",
		doc:      `<a href="https://youtube.com/results?a=1&amp;b=2">`,
		expected: `<a href="https://youtube--com.gw.tld/results?a=1&amp;b=2">`,
	}, {
		name:     "self closing",
		doc:      `<img src="/logo.png"/>`,
		expected: `<img src="https://youtube--com.gw.tld/logo.png" />`,
	}, {
		name:     "inline style",
		doc:      `<div style="background:url(/bg.png)">`,
		expected: `<div style="background:url(https://youtube--com.gw.tld/bg.png)">`,
	}} {
		t.Run(tc.name, func(t *testing.T) {
			out, changed := ctx.rewriteHTML([]byte(tc.doc))
			if tc.doc == tc.expected {
				assert.False(t, changed)
				assert.Equal(t, tc.doc, string(out))
				return
			}

			assert.True(t, changed)
			assert.Equal(t, "<script>"+ctx.Shim()+"</script>"+tc.expected, string(out))
		})
	}
}

func TestHTMLInlineContent(t *testing.T) {
	ctx := testContext(t, "https://youtube.com/", "gw.tld")

	doc := `<body>` +
		`<script>var u = "https://youtube.com/api";</script>` +
		`<script type="application/ld+json">{"url":"https://youtube.com/v","name":"x"}</script>` +
		`<script type="text/template">"https://youtube.com/tpl"</script>` +
		`<style>body{background:url('/bg.png')}</style>` +
		`</body>`

	expected := `<body>` +
		`<script>` + ctx.Shim() + `</script>` +
		`<script>var u = "https://youtube--com.gw.tld/api";</script>` +
		`<script type="application/ld+json">{"url":"https://youtube--com.gw.tld/v","name":"x"}</script>` +
		`<script type="text/template">"https://youtube.com/tpl"</script>` +
		`<style>body{background:url('https://youtube--com.gw.tld/bg.png')}</style>` +
		`</body>`

	out, changed := ctx.Body(HTML, []byte(doc))
	assert.True(t, changed)
	assert.Equal(t, expected, string(out))
}

func TestHTMLShimInjectedOnce(t *testing.T) {
	ctx := testContext(t, "https://youtube.com/", "gw.tld")

	doc := `<html><head><script>fetch("/a")</script></head><body><script>fetch("https://youtube.com/b")</script><a href="/c"></a></body></html>`
	out, changed := ctx.Body(HTML, []byte(doc))
	assert.True(t, changed)
	assert.Equal(t, 1, strings.Count(string(out), "__subgateShim = true"))
	assert.True(t, strings.HasPrefix(string(out), "<html><head><script>(function(){"))
}

func TestHTMLMalformedDoesNotFail(t *testing.T) {
	ctx := testContext(t, "https://youtube.com/", "gw.tld")

	for _, doc := range []string{
		``,
		`<`,
		`<a href="https://youtube.com/x`,
		`<<<>>>`,
		"\x00\xff<a\x00>",
	} {
		assert.NotPanics(t, func() {
			ctx.Body(HTML, []byte(doc))
		})
	}
}

func TestSrcset(t *testing.T) {
	ctx := testContext(t, "https://youtube.com/watch", "gw.tld")

	for _, tc := range []struct {
		name     string
		srcset   string
		expected string
	}{{
		name:     "commas inside the URL",
		srcset:   "https://youtube.com/img/w_100,h_100/a.png 1x, /b.png 2x",
		expected: "https://youtube--com.gw.tld/img/w_100,h_100/a.png 1x, https://youtube--com.gw.tld/b.png 2x",
	}, {
		name:     "no space after the separating comma",
		srcset:   "/a.png 100w,/b.png 200w",
		expected: "https://youtube--com.gw.tld/a.png 100w, https://youtube--com.gw.tld/b.png 200w",
	}, {
		name:     "candidates without descriptors",
		srcset:   "/a.png, /b.png",
		expected: "https://youtube--com.gw.tld/a.png, https://youtube--com.gw.tld/b.png",
	}, {
		name:     "data URL kept",
		srcset:   "data:image/png;base64,AAAA 1x, /b.png 2x",
		expected: "data:image/png;base64,AAAA 1x, https://youtube--com.gw.tld/b.png 2x",
	}, {
		name:     "third party only",
		srcset:   "https://fonts.gstatic.com/a,b.png 1x",
		expected: "https://fonts.gstatic.com/a,b.png 1x",
	}} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ctx.rewriteSrcset(tc.srcset))
		})
	}
}
