package hostlink

import (
	"context"
	"github.com/gorilla/websocket"
	"github.com/lefinal/rally-server/errors"
	"sync"
	"time"
)

const writeTimeout = 10 * time.Second

// Conn is an established connection to the game host.
type Conn interface {
	// ReadMessage blocks until the next message is received.
	ReadMessage() ([]byte, error)
	// WriteMessage writes the given message. It is safe for concurrent use.
	WriteMessage(message []byte) error
	Close() error
}

// Dialer establishes connections to the game host.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer is a Dialer using gorilla websocket.
type WebsocketDialer struct {
	dialer *websocket.Dialer
}

// NewWebsocketDialer creates a new WebsocketDialer.
func NewWebsocketDialer() *WebsocketDialer {
	return &WebsocketDialer{
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
	}
}

// Dial dials the given websocket url.
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.FromErr("dial game host", errors.ErrCommunication, err, errors.Details{"url": url})
	}
	return &websocketConn{conn: conn}, nil
}

// websocketConn serializes writes as gorilla websocket connections support only
// one concurrent writer.
type websocketConn struct {
	conn     *websocket.Conn
	writeMut sync.Mutex
}

func (c *websocketConn) ReadMessage() ([]byte, error) {
	_, message, err := c.conn.ReadMessage()
	if err != nil {
		return nil, errors.FromErr("read message", errors.ErrCommunication, err, nil)
	}
	return message, nil
}

func (c *websocketConn) WriteMessage(message []byte) error {
	c.writeMut.Lock()
	defer c.writeMut.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := c.conn.WriteMessage(websocket.TextMessage, message)
	if err != nil {
		return errors.FromErr("write message", errors.ErrCommunication, err, nil)
	}
	return nil
}

func (c *websocketConn) Close() error {
	c.writeMut.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMut.Unlock()
	return c.conn.Close()
}
