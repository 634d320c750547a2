/*
Package rewrite relocates the URLs found in textual content into gateway
form, so that following them keeps the client inside the gateway.

A URL is relocated when its host is the target host of the request, or
a subdomain of it that is not on the CDN list. Its host is encoded into
the first label of a gateway host, and the scheme is set to https:

	https://m.youtube.com/feed  ->  https://m--youtube--com.gw.tld/feed

The rewriting is pattern based and best effort. It is not a parser of
the content kinds it handles, except for JSON: HTML is scanned with a
tokenizer for tag attributes only, CSS and JavaScript with regular
expressions. Content that cannot be processed is returned as it was.
*/
package rewrite

import (
	log "github.com/sirupsen/logrus"
)

// Body rewrites a UTF-8 encoded body of kind k. It returns the body
// unchanged, and false, when there was nothing to rewrite or the content
// could not be processed.
func (c *Context) Body(k Kind, body []byte) (out []byte, changed bool) {
	defer func() {
		if err := recover(); err != nil {
			log.Errorf("rewrite %s content of %s: %v", k, c.TargetHost(), err)
			out, changed = body, false
		}
	}()

	switch k {
	case HTML:
		return c.rewriteHTML(body)
	case CSS:
		return c.rewriteCSS(body)
	case JavaScript:
		return c.rewriteScript(body)
	case JSON:
		return c.rewriteJSON(body)
	case XML, Generic:
		return c.rewriteGeneric(body)
	default:
		return body, false
	}
}

// rewriteScript rewrites a standalone script and prepends the runtime
// shim to it.
func (c *Context) rewriteScript(js []byte) ([]byte, bool) {
	out, changed := c.rewriteJS(js)
	shim := c.Shim()
	if shim == "" {
		return out, changed
	}

	b := make([]byte, 0, len(shim)+len(out))
	b = append(b, shim...)
	return append(b, out...), true
}
