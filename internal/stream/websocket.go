package stream

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// WebSocketSender adapts a websocket connection to the hub's Sender
// interface. The hub publishes from one goroutine but connect and
// disconnect race against it, so writes are serialized.
type WebSocketSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocketSender wraps an upgraded connection.
func NewWebSocketSender(conn *websocket.Conn) *WebSocketSender {
	return &WebSocketSender{conn: conn}
}

// Send writes the message as a JSON text frame. Any failure marks the
// connection broken; the hub prunes it on the same publish.
func (s *WebSocketSender) Send(m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(m)
}

// Close closes the underlying connection.
func (s *WebSocketSender) Close() error {
	return s.conn.Close()
}
