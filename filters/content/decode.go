package content

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

var (
	errUnsupportedEncoding = errors.New("unsupported content encoding")
	errTooLarge            = errors.New("decoded content too large")
)

// workaround to make brotli library compatible with io.ReadCloser
type brotliWrapper struct {
	*brotli.Reader
}

func (brotliWrapper) Close() error { return nil }

var supportedEncodings = map[string]bool{
	"gzip":    true,
	"x-gzip":  true,
	"deflate": true,
	"br":      true,
	"zstd":    true,
}

func getEncodings(header string) []string {
	var encs []string
	for _, r := range strings.Split(header, ",") {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" && r != "identity" {
			encs = append(encs, r)
		}
	}

	return encs
}

func encodingsSupported(encs []string) bool {
	for _, e := range encs {
		if !supportedEncodings[e] {
			return false
		}
	}

	return true
}

// newDeflateReader accepts both zlib wrapped and raw deflate streams,
// servers send either for the deflate content coding.
func newDeflateReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	h, err := br.Peek(2)
	if err == nil && h[0]&0x0f == 8 && (uint16(h[0])<<8|uint16(h[1]))%31 == 0 {
		return zlib.NewReader(br)
	}

	return flate.NewReader(br), nil
}

func newDecoder(enc string, r io.Reader) (io.ReadCloser, error) {
	switch enc {
	case "gzip", "x-gzip":
		return gzip.NewReader(r)
	case "deflate":
		return newDeflateReader(r)
	case "br":
		return brotliWrapper{brotli.NewReader(r)}, nil
	case "zstd":
		d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}

		return d.IOReadCloser(), nil
	default:
		return nil, errUnsupportedEncoding
	}
}

// decode removes the content codings from body, the last applied first.
// It fails when the decoded content exceeds limit bytes.
func decode(body []byte, encs []string, limit int64) ([]byte, error) {
	if len(encs) == 0 {
		return body, nil
	}

	var (
		r       io.Reader = bytes.NewReader(body)
		closers []io.Closer
	)

	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	for i := len(encs) - 1; i >= 0; i-- {
		d, err := newDecoder(encs[i], r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", encs[i], err)
		}

		closers = append(closers, d)
		r = d
	}

	decoded, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}

	if int64(len(decoded)) > limit {
		return nil, errTooLarge
	}

	return decoded, nil
}
