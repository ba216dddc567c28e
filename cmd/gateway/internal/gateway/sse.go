package gateway

import (
	"errors"
	"net/http"

	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/protocol"
)

var ErrNoFlusher = errors.New("response writer cannot stream")

// SSESink writes events as a text/event-stream response.
type SSESink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSESink sends the stream headers and returns a sink over w.
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrNoFlusher
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSESink{w: w, flusher: flusher}, nil
}

func (s *SSESink) Write(ev protocol.Event) error {
	b, err := ev.SSE()
	if err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Close is a no-op; the response ends when the handler returns.
func (s *SSESink) Close() error { return nil }
