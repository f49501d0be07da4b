package matchmaking

import (
	"context"
	"fmt"
	"github.com/lefinal/rally-server/client"
	"github.com/lefinal/rally-server/errors"
	"github.com/lefinal/rally-server/messages"
	"go.uber.org/zap"
)

// Handler implements client.Listener for matchmaking sockets.
type Handler struct {
	logger       *zap.Logger
	orchestrator *Orchestrator
}

// NewHandler creates a new Handler that enqueues clients at the given
// Orchestrator.
func NewHandler(logger *zap.Logger, orchestrator *Orchestrator) *Handler {
	return &Handler{
		logger:       logger,
		orchestrator: orchestrator,
	}
}

// AcceptClient handles messages of the given client until the connection is
// gone. Enqueued clients are dequeued afterwards.
func (h *Handler) AcceptClient(ctx context.Context, c *client.Client) {
	logger := h.logger.With(zap.String("client_id", c.ID))
	var userID messages.UserID
	defer func() {
		if userID == "" {
			return
		}
		err := h.orchestrator.Dequeue(context.Background(), userID)
		if err != nil && !errors.Is(err, errors.KindResourceNotFound) {
			errors.Log(logger, errors.Wrap(err, "dequeue on disconnect", nil))
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, more := <-c.Receive:
			if !more {
				return
			}
			err := h.handleMessage(ctx, c, &userID, raw)
			if err == nil {
				continue
			}
			if errors.BlameUser(err) {
				logger.Debug("client error", zap.String("err", errors.Prettify(err)))
			} else {
				errors.Log(logger, err)
			}
			_ = c.Send(messages.EncodeError(err, "", 0))
			c.Close(messages.CloseCodeFromError(err), string(messages.ErrorCodeFromError(err)))
			return
		}
	}
}

// handleMessage handles one message. userID is the id the client is enqueued
// with.
func (h *Handler) handleMessage(ctx context.Context, c *client.Client, userID *messages.UserID, raw []byte) error {
	envelope, err := messages.Parse(raw)
	if err != nil {
		return errors.Wrap(err, "parse message", nil)
	}
	switch envelope.Type {
	case messages.MessageTypeQueueJoin:
		var m messages.MessageQueueJoin
		err = messages.Decode(raw, &m)
		if err != nil {
			return errors.Wrap(err, "decode message", nil)
		}
		if *userID != "" {
			if _, ok := h.orchestrator.Lobby(*userID); ok {
				return errors.Error{
					Code:    errors.ErrBadRequest,
					Kind:    errors.KindDuplicate,
					Message: "connection already enqueued",
					Details: errors.Details{"user_id": *userID},
				}
			}
		}
		_, err = h.orchestrator.Enqueue(ctx, c, m)
		if err != nil {
			return errors.Wrap(err, "enqueue", nil)
		}
		*userID = m.ID
		return nil
	case messages.MessageTypeQueueLeave:
		if *userID == "" {
			return errors.NewNotConnectedError("connection not enqueued", nil)
		}
		err = h.orchestrator.Dequeue(ctx, *userID)
		if err != nil {
			return errors.Wrap(err, "dequeue", nil)
		}
		*userID = ""
		return nil
	default:
		return errors.NewInvalidDataError(fmt.Sprintf("unsupported message type %q", envelope.Type),
			errors.Details{"type": envelope.Type})
	}
}
