package middleware

import (
	"bytes"
	"net/http"
)

// teeWriter wraps a ResponseWriter. Every call goes to the wrapped writer
// unchanged; on the side it records the status code, counts bytes and keeps
// a copy of at most limit bytes of the body.
type teeWriter struct {
	http.ResponseWriter

	capture bool
	limit   int
	body    bytes.Buffer

	status      int
	wroteHeader bool
	written     int
}

func newTeeWriter(w http.ResponseWriter, capture bool, limit int) *teeWriter {
	return &teeWriter{ResponseWriter: w, capture: capture, limit: limit}
}

func (w *teeWriter) WriteHeader(code int) {
	// 1xx responses may precede the real one.
	if !w.wroteHeader && code >= http.StatusOK {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *teeWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.status = http.StatusOK
		w.wroteHeader = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	if w.capture && n > 0 {
		if room := w.limit - w.body.Len(); room > 0 {
			if n < room {
				room = n
			}
			w.body.Write(b[:room])
		}
	}
	return n, err
}

func (w *teeWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *teeWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// statusCode is what the client saw; net/http sends 200 when the handler
// never wrote anything.
func (w *teeWriter) statusCode() int {
	if !w.wroteHeader {
		return http.StatusOK
	}
	return w.status
}

func (w *teeWriter) captured() []byte {
	return w.body.Bytes()
}
