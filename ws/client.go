package ws

import (
	"bytes"
	"context"
	"github.com/gorilla/websocket"
	"github.com/lefinal/rally-server/client"
	"github.com/lefinal/rally-server/errors"
	"go.uber.org/zap"
	"time"
)

const (
	// writeTimeout is the timeout for writing a message to the peer.
	writeTimeout = 10 * time.Second
	// pingInterval is the interval in which pings are sent to the peer. Must be
	// less than pongTimeout.
	pingInterval = (pongTimeout * 9) / 10
	// pongTimeout is the timeout for waiting for the next pong message from the
	// peer. Must be greater than pingInterval.
	pongTimeout = 60 * time.Second
	// maxMessageSize is the maximum message size allowed from peer.
	maxMessageSize = 16384
)

var (
	// newLine is used for separating messages in writer.
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Client is a holds the websocket connection and is being used by Hub.
type Client struct {
	*client.Client
	logger *zap.Logger
	// hub is the actual websocket hub which is used for registering and
	// unregistering.
	hub *Hub
	// connection is the actual websocket connection.
	connection *websocket.Conn
}

// readPump forwards messages from the websocket connection to the hub.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		close(c.Receive)
		select {
		case <-ctx.Done():
			c.Close(websocket.CloseGoingAway, "shutdown")
		case c.hub.unregister <- c:
		}
	}()
	c.connection.SetReadLimit(maxMessageSize)
	_ = c.connection.SetReadDeadline(time.Now().Add(pongTimeout))
	// Handle received pong.
	c.connection.SetPongHandler(func(string) error {
		_ = c.connection.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	for {
		// Read next message.
		_, message, err := c.connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				c.logger.Debug("unexpected close", zap.Error(err))
			}
			return
		}
		// Trim.
		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		// Forward.
		select {
		case <-ctx.Done():
			c.logger.Warn("dropping message due to ctx done", zap.ByteString("message", message))
			return
		case c.Receive <- message:
		}
	}
}

// writePump forwards outgoing messages to the websocket connection. When the
// client is closed, queued messages are written before the close frame.
func (c *Client) writePump() {
	pingTicker := time.NewTicker(pingInterval)
	defer func() {
		// Stop ping ticker in order to avoid ticker leak.
		pingTicker.Stop()
		// Close connection.
		err := c.connection.Close()
		if err != nil {
			c.logger.Debug("close connection", zap.Error(err))
		}
	}()
	for {
		select {
		case message := <-c.Outbound():
			if err := c.write(message); err != nil {
				c.logger.Debug("write message", zap.Error(err))
				c.MarkUnsent(message)
				return
			}
		case <-c.Closed():
			c.writePending()
			frame := c.RequestedCloseFrame()
			_ = c.connection.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.connection.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(frame.Code, frame.Reason))
			if err != nil {
				c.logger.Debug("write close message", zap.Error(err))
			}
			return
		case <-pingTicker.C:
			// Send ping.
			_ = c.connection.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("write ping", zap.Error(err))
				return
			}
		}
	}
}

// writePending writes all queued messages until the queue is empty or writing
// fails.
func (c *Client) writePending() {
	for {
		select {
		case message := <-c.Outbound():
			if err := c.write(message); err != nil {
				c.logger.Debug("write pending message", zap.Error(err))
				c.MarkUnsent(message)
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(message []byte) error {
	// Set write timeout.
	_ = c.connection.SetWriteDeadline(time.Now().Add(writeTimeout))
	nextWriter, err := c.connection.NextWriter(websocket.TextMessage)
	if err != nil {
		return errors.FromErr("create writer for text message", errors.ErrCommunication, err, nil)
	}
	_, err = nextWriter.Write(message)
	if err != nil {
		_ = nextWriter.Close()
		return errors.FromErr("write text message", errors.ErrCommunication, err, nil)
	}
	// Close writer.
	if err := nextWriter.Close(); err != nil {
		return errors.FromErr("close next writer", errors.ErrCommunication, err, nil)
	}
	return nil
}
