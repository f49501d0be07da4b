// Package hostlink is the matchmaking side of the control channel to the game
// host.
package hostlink

import (
	"context"
	"github.com/lefinal/rally-server/errors"
	"github.com/lefinal/rally-server/games"
	"github.com/lefinal/rally-server/messages"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"sync"
	"time"
)

// Defaults for Config.
const (
	DefaultReconnectInterval = 3 * time.Second
	DefaultRequestTimeout    = 10 * time.Second
)

// Config for the Link.
type Config struct {
	// URL is the websocket url of the game host.
	URL string
	// LobbyID and LobbyPass are the control channel credentials.
	LobbyID   string
	LobbyPass string
	// ReconnectInterval is the fixed interval between connection attempts.
	ReconnectInterval time.Duration
	// RequestTimeout is the timeout for match creation requests.
	RequestTimeout time.Duration
}

// Outcome is how a created match concluded. Exactly one of the fields is set.
type Outcome struct {
	// Stats are the final stats of an ended match.
	Stats *messages.MatchStats
	// TimedOut is set if the match was removed because of inactivity.
	TimedOut bool
	// Removed is set if the match was removed without result.
	Removed bool
}

// Match is a match that was created on the game host.
type Match struct {
	ID messages.MatchID
	// Outcome receives exactly one Outcome.
	Outcome <-chan Outcome
}

// Link keeps the authenticated control channel to the game host.
type Link struct {
	logger    *zap.Logger
	config    Config
	dialer    Dialer
	connected atomic.Bool
	// m locks the following fields.
	m    sync.Mutex
	conn Conn
	// pending holds match creation requests that wait for a reply.
	pending map[messages.MatchID]chan error
	// watchers hold the outcome channels of created matches.
	watchers map[messages.MatchID]chan Outcome
}

// NewLink creates a new Link. Use Run for connecting.
func NewLink(logger *zap.Logger, config Config, dialer Dialer) *Link {
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = DefaultReconnectInterval
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	return &Link{
		logger:   logger,
		config:   config,
		dialer:   dialer,
		pending:  make(map[messages.MatchID]chan error),
		watchers: make(map[messages.MatchID]chan Outcome),
	}
}

// Connected reports whether the control channel is authenticated.
func (l *Link) Connected() bool {
	return l.connected.Load()
}

// Run connects to the game host and reconnects in a fixed interval until the
// given context is done.
func (l *Link) Run(ctx context.Context) error {
	for {
		err := l.session(ctx)
		if err != nil && ctx.Err() == nil {
			errors.Log(l.logger, errors.Wrap(err, "control channel session", errors.Details{"url": l.config.URL}))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.config.ReconnectInterval):
		}
	}
}

// session dials, authenticates and reads messages until the connection is
// lost.
func (l *Link) session(ctx context.Context) error {
	conn, err := l.dialer.Dial(ctx, l.config.URL)
	if err != nil {
		return errors.Wrap(err, "dial", nil)
	}
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sessionCtx.Done()
		_ = conn.Close()
	}()
	err = l.authenticate(conn)
	if err != nil {
		return errors.Wrap(err, "authenticate", nil)
	}
	l.m.Lock()
	l.conn = conn
	l.m.Unlock()
	l.connected.Store(true)
	l.logger.Info("control channel connected", zap.String("url", l.config.URL))
	defer func() {
		l.connected.Store(false)
		l.m.Lock()
		l.conn = nil
		l.m.Unlock()
		l.logger.Warn("control channel lost")
	}()
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "read message", nil)
		}
		l.handleMessage(raw)
	}
}

func (l *Link) authenticate(conn Conn) error {
	err := conn.WriteMessage(messages.MustEncode(messages.MessageTypeConnectLobby, messages.MessageConnectLobby{
		ID:   l.config.LobbyID,
		Pass: l.config.LobbyPass,
	}))
	if err != nil {
		return errors.Wrap(err, "write connect lobby", nil)
	}
	raw, err := conn.ReadMessage()
	if err != nil {
		return errors.Wrap(err, "read auth reply", nil)
	}
	envelope, err := messages.Parse(raw)
	if err != nil {
		return errors.Wrap(err, "parse auth reply", nil)
	}
	switch envelope.Type {
	case messages.MessageTypeLobbyConnected:
		return nil
	case messages.MessageTypeError:
		var m messages.MessageError
		err = messages.Decode(raw, &m)
		if err != nil {
			return errors.Wrap(err, "decode auth error", nil)
		}
		return errors.Wrap(m.Err(), "auth rejected", nil)
	default:
		return errors.Error{
			Code:    errors.ErrProtocolViolation,
			Kind:    errors.KindInvalidData,
			Message: "unexpected auth reply",
			Details: errors.Details{"type": envelope.Type},
		}
	}
}

func (l *Link) handleMessage(raw []byte) {
	envelope, err := messages.Parse(raw)
	if err != nil {
		errors.Log(l.logger, errors.Wrap(err, "parse message", nil))
		return
	}
	switch envelope.Type {
	case messages.MessageTypeMatchCreated:
		var m messages.MessageMatchCreated
		if l.decode(raw, &m) {
			l.resolvePending(m.MatchID, nil)
		}
	case messages.MessageTypeError:
		var m messages.MessageError
		if !l.decode(raw, &m) {
			return
		}
		if m.MatchID == "" || !l.resolvePending(m.MatchID, m.Err()) {
			l.logger.Warn("game host reported error", zap.String("code", string(m.Error)),
				zap.String("message", m.Message), zap.String("match_id", string(m.MatchID)))
		}
	case messages.MessageTypeEndGame:
		var m messages.MessageEndGame
		if l.decode(raw, &m) {
			stats := m.MatchStats
			l.conclude(m.MatchID, Outcome{Stats: &stats})
		}
	case messages.MessageTypeTimeoutRemove:
		var m messages.MessageRemoveMatch
		if l.decode(raw, &m) {
			l.conclude(m.MatchID, Outcome{TimedOut: true})
		}
	case messages.MessageTypeRemoveMatch:
		var m messages.MessageRemoveMatch
		if l.decode(raw, &m) {
			l.conclude(m.MatchID, Outcome{Removed: true})
		}
	default:
		l.logger.Debug("ignoring message", zap.String("type", string(envelope.Type)))
	}
}

func (l *Link) decode(raw []byte, target interface{}) bool {
	err := messages.Decode(raw, target)
	if err != nil {
		errors.Log(l.logger, errors.Wrap(err, "decode message", nil))
		return false
	}
	return true
}

// resolvePending completes the pending creation request for the given match.
// It reports whether a request was pending.
func (l *Link) resolvePending(matchID messages.MatchID, result error) bool {
	l.m.Lock()
	defer l.m.Unlock()
	reply, ok := l.pending[matchID]
	if !ok {
		return false
	}
	delete(l.pending, matchID)
	reply <- result
	return true
}

// conclude delivers the outcome to the watcher of the given match.
func (l *Link) conclude(matchID messages.MatchID, outcome Outcome) {
	l.m.Lock()
	watcher, ok := l.watchers[matchID]
	delete(l.watchers, matchID)
	l.m.Unlock()
	if !ok {
		l.logger.Debug("outcome for unwatched match", zap.String("match_id", string(matchID)))
		return
	}
	watcher <- outcome
}

func errNoGameServer(message string, err error) error {
	return errors.Error{
		Code:    errors.ErrUnavailable,
		Kind:    errors.KindNoGameServerAvailable,
		Err:     err,
		Message: message,
	}
}

// CreateMatch requests a new match for the given players in slot 1 and 2 and
// waits until the game host created it. If the control channel is not
// authenticated, an error with errors.KindNoGameServerAvailable is returned.
func (l *Link) CreateMatch(ctx context.Context, players map[int]messages.PlayerIdentity) (*Match, error) {
	matchID := games.NewMatchID(players[games.SlotLeft].ID, players[games.SlotRight].ID)
	reply := make(chan error, 1)
	outcome := make(chan Outcome, 1)
	l.m.Lock()
	conn := l.conn
	if conn == nil {
		l.m.Unlock()
		return nil, errNoGameServer("control channel not connected", nil)
	}
	if _, ok := l.watchers[matchID]; ok {
		l.m.Unlock()
		return nil, errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindDuplicate,
			Message: "match already requested",
			Details: errors.Details{"match_id": matchID},
		}
	}
	l.pending[matchID] = reply
	l.watchers[matchID] = outcome
	l.m.Unlock()
	err := conn.WriteMessage(messages.MustEncode(messages.MessageTypeNewMatch, messages.MessageNewMatch{
		Players:    players,
		MaxPlayers: 2,
	}))
	if err != nil {
		l.forget(matchID)
		return nil, errNoGameServer("write new match", err)
	}
	timeout := time.NewTimer(l.config.RequestTimeout)
	defer timeout.Stop()
	select {
	case <-ctx.Done():
		l.forget(matchID)
		return nil, errors.NewContextAbortedError("wait for match creation")
	case <-timeout.C:
		l.forget(matchID)
		return nil, errNoGameServer("match creation timed out", nil)
	case err = <-reply:
	}
	if err != nil {
		l.forget(matchID)
		return nil, errors.Wrap(err, "create match", errors.Details{"match_id": matchID})
	}
	l.logger.Debug("match created", zap.String("match_id", string(matchID)))
	return &Match{
		ID:      matchID,
		Outcome: outcome,
	}, nil
}

// forget drops the pending request and the watcher of the given match.
func (l *Link) forget(matchID messages.MatchID) {
	l.m.Lock()
	defer l.m.Unlock()
	delete(l.pending, matchID)
	delete(l.watchers, matchID)
}

// RemoveMatch requests removing the match with the given id. Its watcher
// receives the outcome as usual.
func (l *Link) RemoveMatch(matchID messages.MatchID, force bool) error {
	l.m.Lock()
	conn := l.conn
	l.m.Unlock()
	if conn == nil {
		return errNoGameServer("control channel not connected", nil)
	}
	err := conn.WriteMessage(messages.MustEncode(messages.MessageTypeRemoveMatch, messages.MessageRemoveMatch{
		MatchID: matchID,
		Force:   force,
	}))
	if err != nil {
		return errNoGameServer("write remove match", err)
	}
	return nil
}
