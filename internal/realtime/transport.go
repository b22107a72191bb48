package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Close codes on the wire. CloseNormal is the intentional-close sentinel;
// anything else is treated as abnormal and drives the retry policy.
const (
	CloseNormal    = 1000
	CloseGoingAway = 1001
	CloseAbnormal  = 1006
)

const writeWait = 10 * time.Second

// Conn is one established transport connection.
type Conn interface {
	// ReadMessage blocks until the next text payload or a terminal error.
	// A closure surfaces as *CloseError where the peer supplied a code.
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	// WriteClose sends a close frame with the given code without tearing
	// down the underlying connection.
	WriteClose(code int, reason string) error
	Close() error
}

// Dialer establishes transport connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// CloseError carries the peer's close code through the read path.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("connection closed, code: %d, reason: %s", e.Code, e.Reason)
}

// closeCode extracts a close code from a read error. Errors without one
// (network failures, resets) count as abnormal closure.
func closeCode(err error) int {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var wce *websocket.CloseError
	if errors.As(err, &wce) {
		return wce.Code
	}
	return CloseAbnormal
}

type wsDialer struct {
	dialer *websocket.Dialer
}

// NewDialer returns the production gorilla-backed dialer.
func NewDialer() Dialer {
	return &wsDialer{dialer: websocket.DefaultDialer}
}

func (d *wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			var wce *websocket.CloseError
			if errors.As(err, &wce) {
				return nil, &CloseError{Code: wce.Code, Reason: wce.Text}
			}
			return nil, err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		return data, nil
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) WriteClose(code int, reason string) error {
	payload := websocket.FormatCloseMessage(code, reason)
	return c.conn.WriteControl(websocket.CloseMessage, payload, time.Now().Add(writeWait))
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
