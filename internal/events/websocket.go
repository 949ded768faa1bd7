package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultWriteTimeout = 10 * time.Second

// Frame is the WebSocket envelope of one event.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WebSocketSink writes each event as a JSON text frame.
type WebSocketSink struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func NewWebSocketSink(conn *websocket.Conn) *WebSocketSink {
	return &WebSocketSink{conn: conn, writeTimeout: defaultWriteTimeout}
}

func (s *WebSocketSink) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", event, err)
	}
	msg, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("events: encode frame: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return fmt.Errorf("events: websocket deadline: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("events: websocket write: %w", err)
	}
	return nil
}

// Close sends a normal closure frame and closes the connection. The
// connection is closed even when the closure frame cannot be written.
func (s *WebSocketSink) Close(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err == nil {
		err = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
	}
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("events: websocket close: %w", err)
	}
	return nil
}
