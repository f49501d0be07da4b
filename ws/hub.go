package ws

import (
	"context"
	"github.com/gorilla/websocket"
	"github.com/lefinal/rally-server/client"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Admitter decides whether a connection from a remote ip is accepted.
type Admitter interface {
	// Admit registers a connection from the given ip or returns an error if it
	// is rejected.
	Admit(ip string) error
	// Release unregisters a connection that was admitted before.
	Release(ip string)
}

// Hub holds all active clients and manages centralized receiving and sending.
type Hub struct {
	logger *zap.Logger
	// admitter is used for admitting new connections.
	admitter Admitter
	// clientListener is used for notifying of new clients.
	clientListener client.Listener
	// clients holds all online clients.
	clients map[*Client]struct{}
	// clientCount is the amount of entries in clients.
	clientCount atomic.Int64
	// register receives when a Client wants to register itself.
	register chan *Client
	// unregister receives when a Client wants to unregister itself.
	unregister chan *Client
}

// NewHub creates a new Hub. Start it with Hub.Run.
func NewHub(logger *zap.Logger, admitter Admitter, clientListener client.Listener) *Hub {
	return &Hub{
		logger:         logger,
		admitter:       admitter,
		clientListener: clientListener,
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		clients:        make(map[*Client]struct{}),
	}
}

// ClientCount returns the amount of currently registered clients.
func (h *Hub) ClientCount() int {
	return int(h.clientCount.Load())
}

// Run starts the Hub. It blocks until the given context is done. Remaining
// clients are closed then.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.removeClient(c, websocket.CloseGoingAway, "shutdown")
			}
			return nil
		case c := <-h.register:
			// Register client.
			h.clients[c] = struct{}{}
			h.clientCount.Store(int64(len(h.clients)))
			h.logger.Debug("client connected", zap.String("client_id", c.ID), zap.String("ip", c.RemoteIP))
			go h.clientListener.AcceptClient(ctx, c.Client)
		case c := <-h.unregister:
			// Unregister client.
			if _, ok := h.clients[c]; ok {
				h.removeClient(c, websocket.CloseNormalClosure, "")
				h.logger.Debug("client disconnected", zap.String("client_id", c.ID))
			}
		}
	}
}

func (h *Hub) removeClient(c *Client, code int, reason string) {
	delete(h.clients, c)
	h.clientCount.Store(int64(len(h.clients)))
	h.admitter.Release(c.RemoteIP)
	// Closing leads to stopping the write-pump.
	c.Close(code, reason)
}
