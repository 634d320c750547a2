package rewrite

import (
	"mime"
	"strings"
)

// Kind is the content kind a response body is rewritten as. It is resolved
// once per response from the Content-Type header.
type Kind int

const (
	// None means the body is not rewritten.
	None Kind = iota
	HTML
	CSS
	JavaScript
	JSON
	XML
	Generic
)

var kindNames = [...]string{
	None:       "none",
	HTML:       "html",
	CSS:        "css",
	JavaScript: "javascript",
	JSON:       "json",
	XML:        "xml",
	Generic:    "generic",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}

	return kindNames[k]
}

var mediaTypeKinds = map[string]Kind{
	"text/html":                     HTML,
	"text/css":                      CSS,
	"text/javascript":               JavaScript,
	"text/ecmascript":               JavaScript,
	"application/javascript":        JavaScript,
	"application/x-javascript":      JavaScript,
	"application/ecmascript":        JavaScript,
	"application/json":              JSON,
	"text/json":                     JSON,
	"application/xml":               XML,
	"text/xml":                      XML,
	"application/xhtml+xml":         XML,
	"application/vnd.apple.mpegurl": Generic,
	"application/x-mpegurl":         Generic,
	"audio/mpegurl":                 Generic,
}

// KindOf returns the kind of content declared by a Content-Type header
// value. Types outside the rewritable set return None.
func KindOf(contentType string) Kind {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		// fall back to the part before the parameters
		mt, _, _ = strings.Cut(contentType, ";")
		mt = strings.ToLower(strings.TrimSpace(mt))
	}

	if k, ok := mediaTypeKinds[mt]; ok {
		return k
	}

	switch {
	case strings.HasSuffix(mt, "+json"):
		return JSON
	case strings.HasSuffix(mt, "+xml"):
		return XML
	default:
		return None
	}
}
