package logging

import (
	"net/http"
)

// LoggingWriter wraps the response writer of a request and records the
// status code and the number of body bytes written.
type LoggingWriter struct {
	writer http.ResponseWriter
	code   int
	bytes  int64
}

// NewLoggingWriter wraps w.
func NewLoggingWriter(w http.ResponseWriter) *LoggingWriter {
	return &LoggingWriter{writer: w}
}

func (lw *LoggingWriter) Write(data []byte) (count int, err error) {
	if lw.code == 0 {
		lw.code = http.StatusOK
	}

	count, err = lw.writer.Write(data)
	lw.bytes += int64(count)
	return
}

func (lw *LoggingWriter) WriteHeader(code int) {
	lw.writer.WriteHeader(code)
	lw.code = code
}

func (lw *LoggingWriter) Header() http.Header {
	return lw.writer.Header()
}

func (lw *LoggingWriter) Flush() {
	if f, ok := lw.writer.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the wrapped writer, for http.ResponseController.
func (lw *LoggingWriter) Unwrap() http.ResponseWriter {
	return lw.writer
}

// GetBytes returns the number of body bytes written.
func (lw *LoggingWriter) GetBytes() int64 {
	return lw.bytes
}

// GetCode returns the status code written, or zero when nothing was
// written yet.
func (lw *LoggingWriter) GetCode() int {
	return lw.code
}
