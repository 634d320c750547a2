/*
Package content implements the filter that rewrites the URLs in textual
response bodies.

Only the bodies of the content types the rewrite package handles are
touched, and only when the response can carry a body. The body is read
into memory up to a maximum size; larger bodies are streamed to the client
as received. Compressed bodies, gzip, deflate, br and zstd, are decoded,
and bodies in a declared charset other than UTF-8 are transcoded first.

When the rewriting changed the content, it is sent uncompressed, with the
Content-Length and the charset of the Content-Type updated. Otherwise the
original bytes are sent with the original headers. Failures never fail the
response: the body is then delivered as it was received.
*/
package content

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"github.com/subgate/subgate/filters"
	"github.com/subgate/subgate/metrics"
	"github.com/subgate/subgate/rewrite"
)

// DefaultMaxBodySize is the default limit of the rewritten body size.
const DefaultMaxBodySize = 10 << 20

const (
	resultRewritten           = "rewritten"
	resultUnchanged           = "unchanged"
	resultTooLarge            = "too_large"
	resultUnsupportedEncoding = "unsupported_encoding"
	resultDecodeError         = "decode_error"
	resultCharsetError        = "charset_error"
)

// Options of the content filter.
type Options struct {
	// MaxBodySize limits the size of the bodies read for rewriting, both
	// encoded and decoded. Defaults to DefaultMaxBodySize.
	MaxBodySize int64

	// Metrics records the outcome of the rewriting. Defaults to
	// metrics.Void.
	Metrics metrics.Metrics
}

type filter struct {
	maxBodySize int64
	metrics     metrics.Metrics
}

type prefixedBody struct {
	io.Reader
	io.Closer
}

// New creates the content rewriting filter.
func New(o Options) filters.Filter {
	if o.MaxBodySize <= 0 {
		o.MaxBodySize = DefaultMaxBodySize
	}

	if o.Metrics == nil {
		o.Metrics = metrics.Void
	}

	return &filter{maxBodySize: o.MaxBodySize, metrics: o.Metrics}
}

func hasBody(method string, status int) bool {
	switch {
	case method == http.MethodHead:
		return false
	case status < http.StatusOK || status == http.StatusNoContent || status == http.StatusNotModified:
		return false
	case status >= http.StatusMultipleChoices && status < http.StatusBadRequest:
		// redirects are handled by their location
		return false
	default:
		return true
	}
}

// prefixed returns a body that yields the already read bytes first and
// then the rest of the original body.
func prefixed(read []byte, body io.ReadCloser) io.ReadCloser {
	return prefixedBody{Reader: io.MultiReader(bytes.NewReader(read), body), Closer: body}
}

func (f *filter) Request(filters.FilterContext) {}

func (f *filter) Response(ctx filters.FilterContext) {
	rsp := ctx.Response()
	if rsp.Body == nil || !hasBody(ctx.Request().Method, rsp.StatusCode) {
		return
	}

	contentType := rsp.Header.Get("Content-Type")
	kind := rewrite.KindOf(contentType)
	if kind == rewrite.None {
		return
	}

	encs := getEncodings(rsp.Header.Get("Content-Encoding"))
	if !encodingsSupported(encs) {
		f.metrics.IncRewrite(kind.String(), resultUnsupportedEncoding)
		return
	}

	read, err := io.ReadAll(io.LimitReader(rsp.Body, f.maxBodySize+1))
	if err != nil {
		ctx.Logger().Debugf("Failed to read the body for rewriting: %v", err)
		rsp.Body = prefixed(read, rsp.Body)
		return
	}

	if int64(len(read)) > f.maxBodySize {
		rsp.Body = prefixed(read, rsp.Body)
		f.metrics.IncRewrite(kind.String(), resultTooLarge)
		return
	}

	rsp.Body.Close()
	rsp.Body = io.NopCloser(bytes.NewReader(read))

	decoded, err := decode(read, encs, f.maxBodySize)
	if err != nil {
		ctx.Logger().Debugf("Failed to decode %v content: %v", encs, err)
		f.metrics.IncRewrite(kind.String(), resultDecodeError)
		return
	}

	text, transcoded, err := toUTF8(decoded, contentType)
	if err != nil {
		ctx.Logger().Debugf("Failed to transcode content: %v", err)
		f.metrics.IncRewrite(kind.String(), resultCharsetError)
		return
	}

	out, changed := ctx.Target().Body(kind, text)
	if !changed {
		f.metrics.IncRewrite(kind.String(), resultUnchanged)
		return
	}

	rsp.Body = io.NopCloser(bytes.NewReader(out))
	rsp.ContentLength = int64(len(out))
	rsp.Header.Set("Content-Length", strconv.Itoa(len(out)))
	rsp.Header.Del("Content-Encoding")
	if transcoded {
		setCharsetUTF8(rsp.Header)
	}

	f.metrics.IncRewrite(kind.String(), resultRewritten)
}
