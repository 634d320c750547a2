package rewrite

import (
	"bytes"
	"regexp"
)

var absoluteOrigin = regexp.MustCompile(`(?i)https?://[a-z0-9.-]+(?::[0-9]+)?`)

// rewriteGeneric relocates every http(s)://host prefix in the text that
// points at the target host or a subdomain of it. It does not look at the
// structure of the content.
func (c *Context) rewriteGeneric(text []byte) ([]byte, bool) {
	matches := absoluteOrigin.FindAllIndex(text, -1)
	if len(matches) == 0 {
		return text, false
	}

	var (
		b       bytes.Buffer
		last    int
		changed bool
	)

	for _, m := range matches {
		start, end := m[0], m[1]

		// a dot ending a sentence is not part of the host
		for end > start && text[end-1] == '.' {
			end--
		}

		r, ok := c.rewriteOrigin(string(text[start:end]))
		if !ok {
			continue
		}

		b.Write(text[last:start])
		b.WriteString(r)
		last = end
		changed = true
	}

	if !changed {
		return text, false
	}

	b.Write(text[last:])
	return b.Bytes(), true
}
