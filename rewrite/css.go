package rewrite

import (
	"bytes"
	"regexp"
)

var (
	cssURL    = regexp.MustCompile(`(?i)url\(\s*(?:"([^"]*)"|'([^']*)'|([^'"()\s]*))\s*\)`)
	cssImport = regexp.MustCompile(`(?i)@import\s+(?:"([^"]*)"|'([^']*)')`)
)

// rewriteCSS rewrites the url() arguments and the @import targets of a
// stylesheet.
func (c *Context) rewriteCSS(css []byte) ([]byte, bool) {
	out, changed := spliceGroups(css, cssURL, c.RewriteURL)
	out, importChanged := spliceGroups(out, cssImport, c.RewriteURL)
	return out, changed || importChanged
}

// spliceGroups replaces the first participating capture group of every
// match of re with the result of f. When nothing changes, the input slice
// is returned as is.
func spliceGroups(src []byte, re *regexp.Regexp, f func(string) string) ([]byte, bool) {
	matches := re.FindAllSubmatchIndex(src, -1)
	if len(matches) == 0 {
		return src, false
	}

	var (
		b       bytes.Buffer
		last    int
		changed bool
	)

	for _, m := range matches {
		for g := 2; g+1 < len(m); g += 2 {
			start, end := m[g], m[g+1]
			if start < 0 {
				continue
			}

			value := string(src[start:end])
			if r := f(value); r != value {
				if !changed {
					b.Grow(len(src) + len(src)/8)
				}

				b.Write(src[last:start])
				b.WriteString(r)
				last = end
				changed = true
			}

			break
		}
	}

	if !changed {
		return src, false
	}

	b.Write(src[last:])
	return b.Bytes(), true
}
