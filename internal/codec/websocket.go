package codec

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultConnectTimeout bounds the WebSocket handshake.
const DefaultConnectTimeout = 10 * time.Second

// NormalizeURL prefixes ws:// when addr carries no scheme.
func NormalizeURL(addr string) string {
	if !strings.Contains(addr, "://") {
		return "ws://" + addr
	}
	return addr
}

// WebSocketTransport speaks to a decode server that answers each binary
// message with one binary message. The connection is dialed lazily.
type WebSocketTransport struct {
	url            string
	connectTimeout time.Duration
	dialer         *websocket.Dialer
	logger         *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocketTransport creates a transport for addr.
func NewWebSocketTransport(addr string, connectTimeout time.Duration, logger *zap.Logger) *WebSocketTransport {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &WebSocketTransport{
		url:            NormalizeURL(addr),
		connectTimeout: connectTimeout,
		dialer: &websocket.Dialer{
			HandshakeTimeout: connectTimeout,
		},
		logger: logger,
	}
}

// URL returns the normalized server URL.
func (t *WebSocketTransport) URL() string {
	return t.url
}

func (t *WebSocketTransport) connect(ctx context.Context) (*websocket.Conn, error) {
	if t.conn != nil {
		return t.conn, nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, t.connectTimeout)
	defer cancel()

	conn, _, err := t.dialer.DialContext(dialCtx, t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing decoder at %s: %w", t.url, err)
	}
	t.logger.Info("connected to image decoder", zap.String("url", t.url))
	t.conn = conn
	return conn, nil
}

func (t *WebSocketTransport) RoundTrip(ctx context.Context, payload []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	conn, err := t.connect(ctx)
	if err != nil {
		return nil, err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultTimeout)
	}
	conn.SetWriteDeadline(deadline)
	conn.SetReadDeadline(deadline)

	// Cancelling ctx closes the connection so a blocked read returns.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.dropLocked()
		return nil, fmt.Errorf("sending to decoder: %w", cancelCause(ctx, err))
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			t.dropLocked()
			return nil, fmt.Errorf("waiting for decoder response: %w", cancelCause(ctx, err))
		}
		if mt == websocket.BinaryMessage {
			return data, nil
		}
		// text frames are status chatter
	}
}

// Reconnect drops the connection and dials again.
func (t *WebSocketTransport) Reconnect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropLocked()
	_, err := t.connect(ctx)
	return err
}

func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *WebSocketTransport) dropLocked() {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
}

// cancelCause reports ctx's error in place of the I/O error it caused.
func cancelCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
