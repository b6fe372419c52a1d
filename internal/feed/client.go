package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrConnection is returned when the stream cannot be established or is lost.
	ErrConnection = errors.New("feed connection error")
	// ErrMessageParse wraps handler failures for a single inbound frame.
	ErrMessageParse = errors.New("feed message parse error")
)

// Sender writes control messages on an open connection.
type Sender interface {
	WriteJSON(v any) error
}

// Handler receives the events of one connection. OnOpen is called exactly
// once before any frame is read; OnMessage zero or more times in arrival
// order; OnClose once when the connection ends. All calls happen on the
// goroutine running Connect.
type Handler interface {
	OnOpen(s Sender) error
	OnMessage(raw []byte) error
	OnError(err error)
	OnClose(code int, text string)
}

// Client dials market-data WebSocket endpoints.
type Client struct {
	logger *slog.Logger
	dialer *websocket.Dialer
}

// NewClient creates a new Client. A zero handshakeTimeout uses the gorilla default.
func NewClient(logger *slog.Logger, handshakeTimeout time.Duration) *Client {
	dialer := *websocket.DefaultDialer
	if handshakeTimeout > 0 {
		dialer.HandshakeTimeout = handshakeTimeout
	}
	return &Client{logger: logger, dialer: &dialer}
}

// lockedConn serialises writes from the handler and the cancellation watcher.
type lockedConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (l *lockedConn) WriteJSON(v any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteJSON(v)
}

func (l *lockedConn) closeNormal() {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = l.conn.Close()
}

// Connect dials url and streams frames into h until the connection ends or
// ctx is cancelled. It returns nil after cancellation and an ErrConnection
// error otherwise. There is no automatic reconnection.
func (c *Client) Connect(ctx context.Context, url string, h Handler) error {
	c.logger.Info("feed: connecting to WebSocket", "url", url)
	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Error("feed: WebSocket connection failed", "error", err)
		return fmt.Errorf("%w: dial %s: %w", ErrConnection, url, err)
	}
	lc := &lockedConn{conn: conn}

	if err := h.OnOpen(lc); err != nil {
		c.logger.Error("feed: open handler failed", "error", err)
		_ = conn.Close()
		h.OnClose(websocket.CloseAbnormalClosure, err.Error())
		return fmt.Errorf("%w: open: %w", ErrConnection, err)
	}
	c.logger.Info("feed: connected successfully")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			lc.closeNormal()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			if ctx.Err() != nil {
				c.logger.Info("feed: context cancelled, connection closed")
				h.OnClose(websocket.CloseNormalClosure, "")
				return nil
			}
			code, text := closeDetails(err)
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("feed: connection closed by peer", "code", code, "text", text)
				h.OnClose(code, text)
				return nil
			}
			c.logger.Error("feed: failed to read message", "error", err)
			h.OnError(fmt.Errorf("%w: %w", ErrConnection, err))
			h.OnClose(code, text)
			return fmt.Errorf("%w: read: %w", ErrConnection, err)
		}

		if err := h.OnMessage(message); err != nil {
			c.logger.Warn("feed: failed to parse message", "error", err)
			h.OnError(fmt.Errorf("%w: %w", ErrMessageParse, err))
		}
	}
}

func closeDetails(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}
