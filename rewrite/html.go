package rewrite

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
)

type rawText int

const (
	rawNone rawText = iota
	rawSkip
	rawJS
	rawJSON
	rawCSS
)

type htmlRewriter struct {
	ctx     *Context
	out     bytes.Buffer
	changed bool
	raw     rawText

	// offset of the shim in out, -1 until known
	shimAt   int
	docStart int
	seenTag  bool
}

// rewriteHTML rewrites the URLs in the attributes, the inline scripts and
// the inline styles of an HTML document. Tags that are not changed are
// written back byte by byte as they were received. When anything was
// rewritten, the runtime shim is injected once, after the opening head
// tag, or before the first inline script, or at the start of the
// document.
func (c *Context) rewriteHTML(doc []byte) ([]byte, bool) {
	r := &htmlRewriter{ctx: c, shimAt: -1}
	r.out.Grow(len(doc) + len(doc)/8)

	z := html.NewTokenizer(bytes.NewReader(doc))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				return doc, false
			}

			break
		}

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			// Token() lowercases the tag name in the tokenizer buffer
			raw := bytes.Clone(z.Raw())
			r.tag(z.Token(), raw, tt == html.SelfClosingTagToken)
			r.seenTag = true
		case html.EndTagToken:
			r.raw = rawNone
			r.out.Write(z.Raw())
			r.seenTag = true
		case html.TextToken:
			r.text(z.Raw())
		case html.DoctypeToken:
			r.out.Write(z.Raw())
			if !r.seenTag {
				r.docStart = r.out.Len()
			}
		default:
			r.out.Write(z.Raw())
		}
	}

	if !r.changed {
		return doc, false
	}

	return r.withShim(), true
}

func (r *htmlRewriter) withShim() []byte {
	out := r.out.Bytes()
	shim := r.ctx.Shim()
	if shim == "" {
		return out
	}

	at := r.shimAt
	if at < 0 {
		at = r.docStart
	}

	const open, end = "<script>", "</script>"
	b := make([]byte, 0, len(out)+len(open)+len(shim)+len(end))
	b = append(b, out[:at]...)
	b = append(b, open...)
	b = append(b, shim...)
	b = append(b, end...)
	return append(b, out[at:]...)
}

func (r *htmlRewriter) text(raw []byte) {
	var (
		out     []byte
		changed bool
	)

	switch r.raw {
	case rawJS:
		out, changed = r.ctx.rewriteJS(raw)
	case rawJSON:
		out, changed = r.ctx.rewriteJSON(raw)
	case rawCSS:
		out, changed = r.ctx.rewriteCSS(raw)
	}

	if changed {
		r.changed = true
		r.out.Write(out)
		return
	}

	r.out.Write(raw)
}

func getAttr(attrs []html.Attribute, key string) (string, bool) {
	for _, a := range attrs {
		if a.Key == key {
			return a.Val, true
		}
	}

	return "", false
}

func scriptText(attrs []html.Attribute) rawText {
	if _, ok := getAttr(attrs, "src"); ok {
		return rawSkip
	}

	t, _ := getAttr(attrs, "type")
	t, _, _ = strings.Cut(t, ";")
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "", "module", "text/javascript", "application/javascript", "text/ecmascript", "application/ecmascript":
		return rawJS
	case "application/ld+json", "application/json":
		return rawJSON
	default:
		return rawSkip
	}
}

func (r *htmlRewriter) tag(t html.Token, raw []byte, selfClosing bool) {
	if t.Data == "meta" {
		he, _ := getAttr(t.Attr, "http-equiv")
		switch strings.ToLower(strings.TrimSpace(he)) {
		case "content-security-policy", "content-security-policy-report-only":
			// dropped like the response header of the same name
			r.changed = true
			return
		}
	}

	attrs, changed := r.ctx.rewriteAttrs(t.Data, t.Attr)

	switch t.Data {
	case "script":
		r.raw = scriptText(t.Attr)
		if r.shimAt < 0 && r.raw != rawSkip {
			r.shimAt = r.out.Len()
		}
	case "style":
		r.raw = rawCSS
	}

	if changed {
		r.changed = true
		renderTag(&r.out, t.Data, attrs, selfClosing)
	} else {
		r.out.Write(raw)
	}

	if t.Data == "head" && !selfClosing && r.shimAt < 0 {
		r.shimAt = r.out.Len()
	}
}

// rewriteAttrs returns the attributes of a tag with the URLs rewritten.
// When a src or href changed, the integrity attribute is dropped, the
// hash cannot match the rewritten content.
func (c *Context) rewriteAttrs(tag string, attrs []html.Attribute) ([]html.Attribute, bool) {
	var (
		changed    bool
		refChanged bool
	)

	out := make([]html.Attribute, len(attrs))
	copy(out, attrs)
	for i := range out {
		a := &out[i]
		v := a.Val
		switch a.Key {
		case "href", "src":
			v = c.RewriteURL(v)
			refChanged = refChanged || v != a.Val
		case "poster", "formaction", "background":
			v = c.RewriteURL(v)
		case "action":
			if tag == "form" {
				v = c.RewriteURL(v)
			}
		case "srcset", "imagesrcset":
			v = c.rewriteSrcset(v)
		case "style":
			if css, ok := c.rewriteCSS([]byte(v)); ok {
				v = string(css)
			}
		case "content":
			if tag == "meta" {
				v = c.rewriteMetaContent(attrs, v)
			}
		}

		if v != a.Val {
			a.Val = v
			changed = true
		}
	}

	if refChanged {
		kept := out[:0]
		for _, a := range out {
			if a.Key != "integrity" {
				kept = append(kept, a)
			}
		}

		out = kept
	}

	return out, changed
}

type srcsetCandidate struct {
	url        string
	descriptor string
}

const srcsetSpace = " \t\n\r\f"

// parseSrcset splits a srcset value into image candidates. A candidate URL
// runs until whitespace, so commas inside it stay part of the URL; only a
// trailing comma ends it. The descriptor runs until the next comma outside
// parentheses.
func parseSrcset(v string) []srcsetCandidate {
	var candidates []srcsetCandidate
	for s := v; ; {
		s = strings.TrimLeft(s, srcsetSpace+",")
		if s == "" {
			return candidates
		}

		end := strings.IndexAny(s, srcsetSpace)
		if end < 0 {
			end = len(s)
		}

		c := srcsetCandidate{url: s[:end]}
		s = s[end:]
		if strings.HasSuffix(c.url, ",") {
			c.url = strings.TrimRight(c.url, ",")
		} else {
			d := descriptorEnd(s)
			c.descriptor = strings.Join(strings.Fields(s[:d]), " ")
			s = s[d:]
		}

		candidates = append(candidates, c)
	}
}

func descriptorEnd(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				return i
			}
		}
	}

	return len(s)
}

// rewriteSrcset rewrites every image candidate of a srcset attribute
// value, keeping the width or density descriptors.
func (c *Context) rewriteSrcset(v string) string {
	candidates := parseSrcset(v)
	changed := false
	for i, cand := range candidates {
		if skipURL(cand.url) {
			continue
		}

		if u := c.RewriteURL(cand.url); u != cand.url {
			candidates[i].url = u
			changed = true
		}
	}

	if !changed {
		return v
	}

	parts := make([]string, len(candidates))
	for i, cand := range candidates {
		parts[i] = cand.url
		if cand.descriptor != "" {
			parts[i] += " " + cand.descriptor
		}
	}

	return strings.Join(parts, ", ")
}

func (c *Context) rewriteMetaContent(attrs []html.Attribute, v string) string {
	if he, ok := getAttr(attrs, "http-equiv"); ok && strings.EqualFold(strings.TrimSpace(he), "refresh") {
		return c.rewriteRefresh(v)
	}

	if s := strings.TrimSpace(v); hasHTTPPrefix(s) || strings.HasPrefix(s, "//") {
		return c.RewriteURL(v)
	}

	return v
}

// rewriteRefresh rewrites the URL of a refresh instruction like
// "5; url=https://example.org/".
func (c *Context) rewriteRefresh(v string) string {
	i := strings.Index(strings.ToLower(v), "url=")
	if i < 0 {
		return v
	}

	start := i + len("url=")
	u := strings.TrimSpace(v[start:])
	quote := ""
	if len(u) >= 2 && (u[0] == '\'' || u[0] == '"') && u[len(u)-1] == u[0] {
		quote = u[:1]
		u = u[1 : len(u)-1]
	}

	r := c.RewriteURL(u)
	if r == u {
		return v
	}

	return v[:start] + quote + r + quote
}

func renderTag(b *bytes.Buffer, name string, attrs []html.Attribute, selfClosing bool) {
	b.WriteByte('<')
	b.WriteString(name)
	for _, a := range attrs {
		b.WriteByte(' ')
		b.WriteString(a.Key)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(a.Val))
		b.WriteByte('"')
	}

	if selfClosing {
		b.WriteString(" /")
	}

	b.WriteByte('>')
}
