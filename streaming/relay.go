package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Relay forwards a broker subscription over one WebSocket connection.
// Writes are mutex protected because the WebSocket does not support
// concurrent writers.
type Relay struct {
	conn   *websocket.Conn
	logger *zap.Logger
	mu     sync.Mutex // 保护写操作
	closed bool
}

// NewRelay wraps an accepted WebSocket connection.
func NewRelay(conn *websocket.Conn, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		conn:   conn,
		logger: logger.With(zap.String("component", "ws_relay")),
	}
}

// Send serializes one event and writes it as a text message.
func (r *Relay) Send(ctx context.Context, event OutputEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("connection closed")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := r.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Run forwards events until the stream carries a terminal status event, the
// channel closes, or the context ends. The connection is closed on return.
func (r *Relay) Run(ctx context.Context, events <-chan OutputEvent) error {
	defer r.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := r.Send(ctx, event); err != nil {
				return err
			}
			if event.Terminal() {
				return nil
			}
		}
	}
}

// Close closes the WebSocket connection. Safe to call more than once.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	return r.conn.Close(websocket.StatusNormalClosure, "stream ended")
}
