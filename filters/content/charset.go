package content

import (
	"bytes"
	"io"
	"mime"
	"net/http"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// toUTF8 transcodes body to UTF-8 when its encoding is known for certain,
// from the Content-Type header or a byte order mark, and it is not UTF-8
// already. The second return value tells whether it was transcoded.
func toUTF8(body []byte, contentType string) ([]byte, bool, error) {
	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if !certain || name == "utf-8" {
		return body, false, nil
	}

	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(body), enc.NewDecoder()))
	if err != nil {
		return nil, false, err
	}

	return out, true, nil
}

func setCharsetUTF8(h http.Header) {
	mt, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return
	}

	params["charset"] = "utf-8"
	h.Set("Content-Type", mime.FormatMediaType(mt, params))
}
