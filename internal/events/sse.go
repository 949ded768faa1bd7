package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// EncodeSSE renders one "event: <name>\ndata: <json>\n\n" frame.
func EncodeSSE(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("events: encode %s: %w", event, err)
	}
	var buf bytes.Buffer
	buf.Grow(len(event) + len(data) + 16)
	fmt.Fprintf(&buf, "event: %s\ndata: %s\n\n", event, data)
	return buf.Bytes(), nil
}

// SSEWriter streams frames over an HTTP response, flushing after each one.
type SSEWriter struct {
	mu sync.Mutex
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewSSEWriter sends the event-stream headers and a 200 status.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	s := &SSEWriter{w: w, rc: http.NewResponseController(w)}
	s.flush()
	return s
}

func (s *SSEWriter) Send(event string, payload any) error {
	frame, err := EncodeSSE(event, payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(frame); err != nil {
		return fmt.Errorf("events: sse write: %w", err)
	}
	return s.flush()
}

func (s *SSEWriter) flush() error {
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("events: sse flush: %w", err)
	}
	return nil
}
