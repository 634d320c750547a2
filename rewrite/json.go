package rewrite

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
)

// rewriteJSON rewrites the string values of a JSON document holding an
// absolute URL. The member order is kept. Invalid documents are returned
// unchanged.
func (c *Context) rewriteJSON(doc []byte) ([]byte, bool) {
	if !gjson.ValidBytes(doc) {
		return doc, false
	}

	w := jsonWriter{ctx: c}
	w.value(gjson.ParseBytes(doc))
	if !w.changed || w.err != nil {
		return doc, false
	}

	return w.buf.Bytes(), true
}

type jsonWriter struct {
	ctx     *Context
	buf     bytes.Buffer
	changed bool
	err     error
}

func (w *jsonWriter) value(v gjson.Result) {
	switch {
	case v.IsObject():
		w.buf.WriteByte('{')
		first := true
		v.ForEach(func(key, value gjson.Result) bool {
			if !first {
				w.buf.WriteByte(',')
			}

			first = false
			w.buf.WriteString(key.Raw)
			w.buf.WriteByte(':')
			w.value(value)
			return w.err == nil
		})
		w.buf.WriteByte('}')
	case v.IsArray():
		w.buf.WriteByte('[')
		first := true
		v.ForEach(func(_, value gjson.Result) bool {
			if !first {
				w.buf.WriteByte(',')
			}

			first = false
			w.value(value)
			return w.err == nil
		})
		w.buf.WriteByte(']')
	case v.Type == gjson.String:
		s := v.String()
		if hasHTTPPrefix(s) {
			if r := w.ctx.RewriteURL(s); r != s {
				w.string(r)
				return
			}
		}

		w.buf.WriteString(v.Raw)
	default:
		w.buf.WriteString(v.Raw)
	}
}

func (w *jsonWriter) string(s string) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		w.err = err
		return
	}

	// Encode terminates the value with a newline
	w.buf.Write(bytes.TrimSuffix(b.Bytes(), []byte("\n")))
	w.changed = true
}
