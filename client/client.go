package client

import (
	"context"
	"github.com/lefinal/rally-server/errors"
	"sync"
)

// CloseFrame is the close code and reason that is sent when closing a
// connection.
type CloseFrame struct {
	Code   int
	Reason string
}

// Client is a holds the connection and is used by ws.Hub as well as the
// connection listeners.
type Client struct {
	// ID is a temporary id assigned to the Client.
	ID string
	// RemoteIP is the ip the connection originates from.
	RemoteIP string
	// Receive is the channel for incoming messages. It is closed when the
	// connection is gone.
	Receive chan []byte
	// outbound holds messages that are waiting to be written.
	outbound chan []byte
	// closeFrame holds the requested CloseFrame.
	closeFrame chan CloseFrame
	// closed is closed when Close is called.
	closed    chan struct{}
	closeOnce sync.Once
	// failed holds messages that were taken from outbound but could not be
	// written.
	failed  [][]byte
	failedM sync.Mutex
}

// NewClient creates a new Client with the given buffer size for incoming and
// outgoing messages.
func NewClient(id string, remoteIP string, bufferSize int) *Client {
	return &Client{
		ID:         id,
		RemoteIP:   remoteIP,
		Receive:    make(chan []byte, bufferSize),
		outbound:   make(chan []byte, bufferSize),
		closeFrame: make(chan CloseFrame, 1),
		closed:     make(chan struct{}),
	}
}

// Send queues the given message without blocking. It fails if the Client was
// closed or the buffer is full.
func (c *Client) Send(message []byte) error {
	select {
	case <-c.closed:
		return errors.NewNotConnectedError("client closed", errors.Details{"client_id": c.ID})
	default:
	}
	select {
	case c.outbound <- message:
		return nil
	default:
		return errors.Error{
			Code:    errors.ErrCommunication,
			Kind:    errors.KindSendBufferFull,
			Message: "send buffer full",
			Details: errors.Details{"client_id": c.ID},
		}
	}
}

// Close requests closing the connection with the given close code. Messages
// that were queued before are written first. Only the first call has an
// effect.
func (c *Client) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeFrame <- CloseFrame{Code: code, Reason: reason}
		close(c.closed)
	})
}

// Closed is closed when Close was called.
func (c *Client) Closed() <-chan struct{} {
	return c.closed
}

// Outbound returns the channel of queued outgoing messages.
func (c *Client) Outbound() <-chan []byte {
	return c.outbound
}

// MarkUnsent records a message taken from Outbound that could not be written.
func (c *Client) MarkUnsent(message []byte) {
	c.failedM.Lock()
	defer c.failedM.Unlock()
	c.failed = append(c.failed, message)
}

// Unsent removes and returns messages that were accepted by Send but not
// written, in their original order. Failed writes come first, followed by
// messages still queued in Outbound.
func (c *Client) Unsent() [][]byte {
	c.failedM.Lock()
	unsent := c.failed
	c.failed = nil
	c.failedM.Unlock()
	for {
		select {
		case message := <-c.outbound:
			unsent = append(unsent, message)
		default:
			return unsent
		}
	}
}

// RequestedCloseFrame returns the CloseFrame passed to Close. It must only be
// called after Closed is closed.
func (c *Client) RequestedCloseFrame() CloseFrame {
	select {
	case f := <-c.closeFrame:
		c.closeFrame <- f
		return f
	default:
		return CloseFrame{}
	}
}

// Listener accepts new clients.
type Listener interface {
	// AcceptClient is called when a new Client connects. It handles incoming
	// messages until Client.Receive is closed.
	AcceptClient(ctx context.Context, client *Client)
}
