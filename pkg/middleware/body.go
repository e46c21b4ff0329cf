package middleware

import (
	"bytes"
	"io"
	"net/http"
)

// bodyMirror wraps a request body. Reads pass through untouched; on the side
// it counts bytes and keeps a copy of at most limit of them.
type bodyMirror struct {
	io.ReadCloser

	limit int
	buf   bytes.Buffer
	read  int
}

func (m *bodyMirror) Read(p []byte) (int, error) {
	n, err := m.ReadCloser.Read(p)
	m.read += n
	if n > 0 {
		if room := m.limit - m.buf.Len(); room > 0 {
			if n < room {
				room = n
			}
			m.buf.Write(p[:room])
		}
	}
	return n, err
}

func (m *bodyMirror) captured() []byte {
	if m == nil {
		return nil
	}
	return m.buf.Bytes()
}

// mirrorBody installs a bodyMirror on r. A body whose declared length fits
// the limit is taken up front so it is recorded even if the handler never
// reads it; anything else is only recorded as the handler reads it.
func mirrorBody(r *http.Request, limit int) *bodyMirror {
	m := &bodyMirror{ReadCloser: r.Body, limit: limit}
	r.Body = m
	if r.ContentLength > 0 && r.ContentLength <= int64(limit) {
		_, _ = peekBody(r, r.ContentLength)
	}
	return m
}

// replayBody hands back bytes that were already read, then continues with
// the rest of the original body.
type replayBody struct {
	io.Reader
	io.Closer
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

// peekBody reads at most n bytes of r.Body and puts them back in front of
// whatever remains, so the handler sees exactly what the client sent.
func peekBody(r *http.Request, n int64) ([]byte, error) {
	orig := r.Body
	data, err := io.ReadAll(io.LimitReader(orig, n))

	rest := io.MultiReader(bytes.NewReader(data), orig)
	if err != nil {
		rest = io.MultiReader(bytes.NewReader(data), errReader{err})
	}
	r.Body = replayBody{Reader: rest, Closer: orig}
	return data, err
}
