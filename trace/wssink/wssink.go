// Package wssink implements the trace package's "network upload" sink:
// events are marshaled to JSON and pushed over a websocket connection to a
// remote collector, matching the corpus's general pattern of streaming
// channel/agent traffic over gorilla/websocket rather than polling an HTTP
// endpoint per event.
package wssink

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/anxuanzi/vera-go/trace"
)

// Sink pushes every event as a JSON text message over a websocket
// connection. Backpressure is handled by letting writes block; callers that
// need non-blocking emission should wrap Sink in a buffering decorator.
type Sink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// Dial connects to the given websocket URL (e.g. "wss://collector/traces")
// and returns a Sink ready to Emit.
func Dial(url string) (*Sink, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("wssink: dial %s: %w", url, err)
	}
	return &Sink{conn: conn}, nil
}

// New wraps an already-established connection (e.g. the server side of an
// upgraded HTTP connection).
func New(conn *websocket.Conn) *Sink {
	return &Sink{conn: conn}
}

func (s *Sink) Emit(event trace.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("wssink: marshal event: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("wssink: write: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}
