// Package status writes the JSON responses produced by the gateway itself:
// the error envelope and the replies of the landing API.
//
// Every error leaving the gateway has the same shape:
//
//	{"error": "Invalid subdomain", "status": 400, "timestamp": "2024-05-01T10:00:00.000Z"}
//
// and carries the CORS headers of the gateway.
package status

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/subgate/subgate/filters/cors"
)

// TimestampFormat is the ISO-8601 format of the envelope timestamps, in UTC
// with millisecond precision.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Envelope is the body of the error responses.
type Envelope struct {
	Error     string `json:"error"`
	Status    int    `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Writer creates the JSON responses. It is safe for concurrent use.
type Writer struct {
	cors *cors.Policy
	now  func() time.Time
}

// NewWriter creates a writer setting the headers of the CORS policy. When
// the policy is nil, the default policy is used.
func NewWriter(p *cors.Policy) *Writer {
	if p == nil {
		p = cors.Default()
	}

	return &Writer{cors: p, now: time.Now}
}

// Envelope returns the error body for the status code and message. An
// empty message is replaced with the status text.
func (w *Writer) Envelope(code int, message string) Envelope {
	if message == "" {
		message = http.StatusText(code)
	}

	return Envelope{
		Error:     message,
		Status:    code,
		Timestamp: w.now().UTC().Format(TimestampFormat),
	}
}

func (w *Writer) encode(v any) []byte {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		log.Errorf("Failed to encode response body: %v", err)
		return []byte("{}\n")
	}

	return b.Bytes()
}

func (w *Writer) header(h http.Header, length int) {
	w.cors.SetHeaders(h)
	h.Set("Content-Type", "application/json")
	h.Set("Content-Length", strconv.Itoa(length))
}

// WriteJSON writes v as the JSON body of a response with the status code.
func (w *Writer) WriteJSON(rw http.ResponseWriter, code int, v any) {
	b := w.encode(v)
	w.header(rw.Header(), len(b))
	rw.WriteHeader(code)
	if _, err := rw.Write(b); err != nil {
		log.Debugf("Failed to write response: %v", err)
	}
}

// WriteError writes the error envelope.
func (w *Writer) WriteError(rw http.ResponseWriter, code int, message string) {
	w.WriteJSON(rw, code, w.Envelope(code, message))
}
