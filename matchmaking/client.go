package matchmaking

import (
	"github.com/lefinal/rally-server/messages"
	"go.uber.org/zap"
	"sync"
)

// Conn is the socket of a waiting player.
type Conn interface {
	// Send sends the given message without blocking.
	Send(message []byte) error
	// Close closes the connection with the given websocket close code.
	Close(code int, reason string)
}

// Client is one player in matchmaking.
type Client struct {
	ID   messages.UserID
	Name string
	// Rank and XP are the progress at the time of enqueueing. They are updated
	// with each applied result.
	Rank int64
	XP   int64

	logger *zap.Logger
	// m locks conn.
	m    sync.Mutex
	conn Conn
}

func newClient(logger *zap.Logger, conn Conn, id messages.UserID, name string) *Client {
	return &Client{
		ID:     id,
		Name:   name,
		logger: logger.With(zap.String("user_id", string(id))),
		conn:   conn,
	}
}

// Identity returns the identity used in matches.
func (c *Client) Identity() messages.PlayerIdentity {
	return messages.PlayerIdentity{ID: c.ID, Name: c.Name}
}

// send encodes and sends the given message. Failures are only logged as the
// player might have left.
func (c *Client) send(messageType messages.MessageType, payload interface{}) {
	c.sendRaw(messages.MustEncode(messageType, payload))
}

func (c *Client) sendRaw(message []byte) {
	c.m.Lock()
	conn := c.conn
	c.m.Unlock()
	if conn == nil {
		return
	}
	err := conn.Send(message)
	if err != nil {
		c.logger.Debug("send to client", zap.Error(err))
	}
}

// detach drops the connection so that nothing is sent anymore.
func (c *Client) detach() {
	c.m.Lock()
	c.conn = nil
	c.m.Unlock()
}
