// Package gamehost routes messages of websocket clients to the match registry
// and the bound matches.
package gamehost

import (
	"context"
	"fmt"
	"github.com/lefinal/rally-server/client"
	"github.com/lefinal/rally-server/errors"
	"github.com/lefinal/rally-server/games"
	"github.com/lefinal/rally-server/messages"
	"github.com/lefinal/rally-server/registry"
	"go.uber.org/zap"
)

// Registry is the registry the Host works with. It is implemented by
// registry.Registry.
type Registry interface {
	Connect(conn registry.Conn, credentials messages.MessageConnectLobby) error
	IsConnected(conn registry.Conn) bool
	Disconnect(conn registry.Conn)
	CreateMatch(req messages.MessageNewMatch, conn registry.Conn) (messages.MatchID, error)
	RemoveMatch(id messages.MatchID, force bool, isTimeout bool) error
	Match(id messages.MatchID) (*games.Match, bool)
}

// Host implements client.Listener and handles the messages of accepted
// clients.
type Host struct {
	logger   *zap.Logger
	registry Registry
}

// NewHost creates a new Host that works on the given Registry.
func NewHost(logger *zap.Logger, registry Registry) *Host {
	return &Host{
		logger:   logger,
		registry: registry,
	}
}

// session is the state of one client connection.
type session struct {
	logger *zap.Logger
	client *client.Client
	// isControl is set when the client authenticated as control channel.
	isControl bool
	// matchID and slot are set when the client is bound to a match slot.
	matchID messages.MatchID
	slot    int
}

func (s *session) bound() bool {
	return s.slot != 0
}

// AcceptClient handles messages of the given client until its receive channel
// is closed or the context is done. Afterwards, all bindings are released.
func (h *Host) AcceptClient(ctx context.Context, c *client.Client) {
	s := &session{
		logger: h.logger.With(zap.String("client_id", c.ID)),
		client: c,
	}
	defer h.release(s)
	for {
		// Drop the control channel as soon as its connection closes so that
		// further messages are queued instead of handed to a dead connection.
		var controlClosed <-chan struct{}
		if s.isControl {
			controlClosed = c.Closed()
		}
		select {
		case <-ctx.Done():
			return
		case <-controlClosed:
			h.registry.Disconnect(s.client)
			s.isControl = false
		case raw, more := <-c.Receive:
			if !more {
				return
			}
			err := h.handleMessage(s, raw)
			if err != nil {
				h.fail(s, err)
			}
		}
	}
}

// release drops the control channel and the match binding of the given
// session.
func (h *Host) release(s *session) {
	if s.isControl {
		h.registry.Disconnect(s.client)
	}
	if s.bound() {
		if match, ok := h.registry.Match(s.matchID); ok {
			match.DisconnectPlayer(s.slot, s.client)
		}
	}
	s.logger.Debug("client session released")
}

// fail reports the given error to the client. Clients that are not the control
// channel are closed afterwards.
func (h *Host) fail(s *session, err error) {
	if errors.BlameUser(err) {
		s.logger.Debug("client error", zap.String("err", errors.Prettify(err)))
	} else {
		errors.Log(s.logger, err)
	}
	h.reply(s, err, s.matchID)
	if s.isControl {
		return
	}
	s.client.Close(messages.CloseCodeFromError(err), string(messages.ErrorCodeFromError(err)))
}

// reply sends an error message for the given error and match.
func (h *Host) reply(s *session, err error, matchID messages.MatchID) {
	sendErr := s.client.Send(messages.EncodeError(err, matchID, s.slot))
	if sendErr != nil {
		s.logger.Debug("send error message", zap.Error(sendErr))
	}
}

func (h *Host) handleMessage(s *session, raw []byte) error {
	envelope, err := messages.Parse(raw)
	if err != nil {
		return errors.Wrap(err, "parse message", nil)
	}
	switch envelope.Type {
	case messages.MessageTypeConnectLobby:
		return h.handleConnectLobby(s, raw)
	case messages.MessageTypeNewMatch:
		return h.handleNewMatch(s, raw)
	case messages.MessageTypeRemoveMatch:
		return h.handleRemoveMatch(s, raw)
	case messages.MessageTypeConnectPlayer:
		return h.handleConnectPlayer(s, raw)
	case messages.MessageTypeInput:
		return h.handleInput(s, raw)
	case messages.MessageTypePing:
		return h.handlePing(s, raw)
	case messages.MessageTypeBounce:
		return h.handleBounce(s, raw)
	default:
		return errors.NewInvalidDataError(fmt.Sprintf("unsupported message type %q", envelope.Type),
			errors.Details{"type": envelope.Type})
	}
}

func (h *Host) handleConnectLobby(s *session, raw []byte) error {
	var m messages.MessageConnectLobby
	err := messages.Decode(raw, &m)
	if err != nil {
		return errors.Wrap(err, "decode message", nil)
	}
	err = h.registry.Connect(s.client, m)
	if err != nil {
		return errors.Wrap(err, "connect control channel", nil)
	}
	s.isControl = true
	return nil
}

func (h *Host) handleNewMatch(s *session, raw []byte) error {
	var m messages.MessageNewMatch
	err := messages.Decode(raw, &m)
	if err != nil {
		return errors.Wrap(err, "decode message", nil)
	}
	_, err = h.registry.CreateMatch(m, s.client)
	if err != nil {
		err = errors.Wrap(err, "create match", nil)
		if !s.isControl {
			return err
		}
		// Correlate the error with the requested match so that the requester can
		// fail the pending request.
		p1, p2 := m.Players[games.SlotLeft], m.Players[games.SlotRight]
		errors.Log(s.logger, err)
		h.reply(s, err, games.NewMatchID(p1.ID, p2.ID))
	}
	return nil
}

func (h *Host) handleRemoveMatch(s *session, raw []byte) error {
	var m messages.MessageRemoveMatch
	err := messages.Decode(raw, &m)
	if err != nil {
		return errors.Wrap(err, "decode message", nil)
	}
	if !h.registry.IsConnected(s.client) {
		return errors.NewPermissionDeniedError("remove match requires authenticated control channel", nil)
	}
	err = h.registry.RemoveMatch(m.MatchID, m.Force, false)
	if err != nil {
		return errors.Wrap(err, "remove match", nil)
	}
	return nil
}

func (h *Host) handleConnectPlayer(s *session, raw []byte) error {
	var m messages.MessageConnectPlayer
	err := messages.Decode(raw, &m)
	if err != nil {
		return errors.Wrap(err, "decode message", nil)
	}
	if s.isControl {
		return errors.NewPermissionDeniedError("control channel cannot play", nil)
	}
	if s.bound() {
		return errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindDuplicate,
			Message: "client already bound to a match",
			Details: errors.Details{"match_id": s.matchID, "slot": s.slot},
		}
	}
	match, ok := h.registry.Match(m.MatchID)
	if !ok {
		return errors.Error{
			Code:    errors.ErrNotFound,
			Kind:    errors.KindInvalidMatchID,
			Message: "unknown match",
			Details: errors.Details{"match_id": m.MatchID},
		}
	}
	slot, err := match.ConnectPlayer(s.client, m)
	if err != nil {
		return errors.Wrap(err, "connect player", nil)
	}
	s.matchID = m.MatchID
	s.slot = slot
	s.logger = s.logger.With(zap.String("match_id", string(m.MatchID)), zap.Int("slot", slot))
	return nil
}

// boundMatch returns the match the session is bound to. The given match id
// must match the binding if set.
func (h *Host) boundMatch(s *session, matchID messages.MatchID) (*games.Match, error) {
	if !s.bound() {
		return nil, errors.NewNotConnectedError("client not bound to a match", nil)
	}
	if matchID != "" && matchID != s.matchID {
		return nil, errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindInvalidMatchID,
			Message: "match id differs from bound match",
			Details: errors.Details{"match_id": matchID, "bound_match_id": s.matchID},
		}
	}
	match, ok := h.registry.Match(s.matchID)
	if !ok {
		return nil, errors.NewNotConnectedError("bound match is gone", errors.Details{"match_id": s.matchID})
	}
	return match, nil
}

func (h *Host) handleInput(s *session, raw []byte) error {
	var m messages.MessageInput
	err := messages.Decode(raw, &m)
	if err != nil {
		return errors.Wrap(err, "decode message", nil)
	}
	match, err := h.boundMatch(s, m.MatchID)
	if err != nil {
		return errors.Wrap(err, "bound match", nil)
	}
	err = match.HandleInput(s.slot, m.Up, m.Down)
	if err != nil {
		return errors.Wrap(err, "handle input", nil)
	}
	return nil
}

func (h *Host) handlePing(s *session, raw []byte) error {
	var m messages.MessagePing
	err := messages.Decode(raw, &m)
	if err != nil {
		return errors.Wrap(err, "decode message", nil)
	}
	match, err := h.boundMatch(s, m.MatchID)
	if err != nil {
		return errors.Wrap(err, "bound match", nil)
	}
	err = match.Ping(s.slot)
	if err != nil {
		return errors.Wrap(err, "ping", nil)
	}
	return nil
}

func (h *Host) handleBounce(s *session, raw []byte) error {
	var m messages.MessageBounce
	err := messages.Decode(raw, &m)
	if err != nil {
		return errors.Wrap(err, "decode message", nil)
	}
	axis := games.Axis(m.Axis)
	if axis != games.AxisX && axis != games.AxisY {
		return errors.NewInvalidDataError(fmt.Sprintf("invalid axis %q", m.Axis), nil)
	}
	match, err := h.boundMatch(s, "")
	if err != nil {
		return errors.Wrap(err, "bound match", nil)
	}
	if !match.HandleBounceHint(axis) {
		s.logger.Debug("ignored bounce hint", zap.String("axis", m.Axis))
	}
	return nil
}
