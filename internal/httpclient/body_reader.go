package httpclient

import (
	"bytes"
	"io"
)

// Body is what ReadBody kept of a response body.
type Body struct {
	Size      int64
	Snippet   []byte
	Truncated bool
}

// String renders the kept prefix, marking truncation.
func (b Body) String() string {
	if b.Truncated {
		return string(b.Snippet) + "...(truncated)"
	}
	return string(b.Snippet)
}

// ReadBody drains r completely and keeps at most keep bytes of it. Draining
// the whole body lets the connection be reused and makes the caller's
// latency cover the full transfer.
func ReadBody(r io.Reader, keep int) (Body, error) {
	if keep < 0 {
		keep = 0
	}
	w := &prefixWriter{limit: keep}
	n, err := io.Copy(w, r)
	return Body{
		Size:      n,
		Snippet:   w.buf.Bytes(),
		Truncated: n > int64(keep),
	}, err
}

// prefixWriter accepts everything and retains the first limit bytes.
type prefixWriter struct {
	buf   bytes.Buffer
	limit int
}

func (w *prefixWriter) Write(p []byte) (int, error) {
	if room := w.limit - w.buf.Len(); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		w.buf.Write(p[:room])
	}
	return len(p), nil
}
