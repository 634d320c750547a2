package rewrite

import (
	"bytes"
	"regexp"
	"strings"
)

// string literals not spanning lines; template literals with placeholders
// are skipped later
var jsString = regexp.MustCompile("\"(?:[^\"\\\\\\n]|\\\\.)*\"|'(?:[^'\\\\\\n]|\\\\.)*'|`(?:[^`\\\\]|\\\\.)*`")

// rewriteJS rewrites the string literals of a script that consist of a
// single absolute URL. URLs written with escaped slashes, as JSON encoders
// emit them, are recognized and written back escaped.
func (c *Context) rewriteJS(js []byte) ([]byte, bool) {
	matches := jsString.FindAllIndex(js, -1)
	if len(matches) == 0 {
		return js, false
	}

	var (
		b       bytes.Buffer
		last    int
		changed bool
	)

	for _, m := range matches {
		// skip the quotes
		start, end := m[0]+1, m[1]-1
		if end-start < len("http://a.b") {
			continue
		}

		r, ok := c.rewriteLiteral(string(js[start:end]), js[m[0]] == '`')
		if !ok {
			continue
		}

		b.Write(js[last:start])
		b.WriteString(r)
		last = end
		changed = true
	}

	if !changed {
		return js, false
	}

	b.Write(js[last:])
	return b.Bytes(), true
}

func hasHTTPPrefix(s string) bool {
	if len(s) < 8 {
		return false
	}

	p := strings.ToLower(s[:8])
	return strings.HasPrefix(p, "http://") || p == "https://"
}

func (c *Context) rewriteLiteral(s string, template bool) (string, bool) {
	escaped := strings.Contains(s, `\/`)
	if escaped {
		s = strings.ReplaceAll(s, `\/`, "/")
	}

	if !hasHTTPPrefix(s) || strings.ContainsAny(s, " \t\\\"'`<>") {
		return "", false
	}

	if template && strings.Contains(s, "${") {
		return "", false
	}

	r := c.RewriteURL(s)
	if r == s {
		return "", false
	}

	if escaped {
		r = strings.ReplaceAll(r, "/", `\/`)
	}

	return r, true
}
