package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketNotifier pushes notifications to a front-end websocket endpoint.
// Writes are serialized; a broken connection is redialed lazily on the next
// notification.
type WebsocketNotifier struct {
	url string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebsocketNotifier creates a notifier for the given ws:// endpoint.
// The connection is established on first use.
func NewWebsocketNotifier(url string) *WebsocketNotifier {
	return &WebsocketNotifier{url: url}
}

type wireMessage struct {
	Channel   string `json:"channel"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"timestamp_ms"`
}

// Notify sends one message. Failures are logged and dropped; the UI surface
// must never stall the pipeline.
func (n *WebsocketNotifier) Notify(channel string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.send(wireMessage{
		Channel:   channel,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}); err != nil {
		slog.Debug("ui notification dropped", "channel", channel, "error", err)
	}
}

func (n *WebsocketNotifier) send(msg wireMessage) error {
	if n.conn == nil {
		dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
		conn, _, err := dialer.Dial(n.url, nil)
		if err != nil {
			return fmt.Errorf("dial %s: %w", n.url, err)
		}
		n.conn = conn
	}

	n.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := n.conn.WriteJSON(msg); err != nil {
		_ = n.conn.Close()
		n.conn = nil
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Close shuts the connection down.
func (n *WebsocketNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	n.conn = nil
	return err
}
