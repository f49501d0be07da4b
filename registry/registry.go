package registry

import (
	"context"
	"fmt"
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
	DefaultQueueCapacity = 256
	DefaultRetryInterval = time.Second
)

// Config for the Registry.
type Config struct {
	// ID is the lobby id the control channel must authenticate with.
	ID string
	// Password is the lobby password the control channel must authenticate with.
	Password string
	// QueueCapacity is the maximum amount of queued control messages.
	QueueCapacity int
	// RetryInterval is the interval in which queued control messages are retried.
	RetryInterval time.Duration
	// Game is the config for created matches.
	Game games.Config
}

// Conn is a connection the registry communicates with.
type Conn interface {
	// Send sends the given message without blocking.
	Send(message []byte) error
	// Close closes the connection with the given websocket close code.
	Close(code int, reason string)
}

// UnsentReporter is implemented by connections that can hand back messages
// that were accepted by Send but never reached the peer.
type UnsentReporter interface {
	Unsent() [][]byte
}

// Notifier is notified about match lifecycle events.
type Notifier interface {
	MatchCreated(matchID messages.MatchID, players map[int]messages.PlayerIdentity)
	MatchEnded(stats messages.MatchStats)
	MatchRemoved(matchID messages.MatchID, isTimeout bool)
}

type nopNotifier struct{}

func (nopNotifier) MatchCreated(messages.MatchID, map[int]messages.PlayerIdentity) {}

func (nopNotifier) MatchEnded(messages.MatchStats) {}

func (nopNotifier) MatchRemoved(messages.MatchID, bool) {}

// Stats is a snapshot of the Registry state.
type Stats struct {
	// MatchesByPhase holds the amount of registered matches by phase.
	MatchesByPhase map[games.MatchPhase]int
	// PlayersConnected is the amount of players with a bound connection.
	PlayersConnected int
	// ControlConnected is set when a control channel is authenticated.
	ControlConnected bool
	// QueuedMessages is the amount of queued control messages.
	QueuedMessages int
	// MatchesCreated is the total amount of created matches.
	MatchesCreated uint64
	// MatchesEnded is the total amount of matches that reported stats.
	MatchesEnded uint64
	// MatchesTimedOut is the total amount of matches removed because of
	// inactivity.
	MatchesTimedOut uint64
}

// Registry holds the single authenticated control channel and all matches of
// the game host.
type Registry struct {
	logger   *zap.Logger
	config   Config
	notifier Notifier
	// m locks control, outbox and matches.
	m       sync.Mutex
	control Conn
	outbox  *outbox
	matches map[messages.MatchID]*games.Match

	matchesCreated  atomic.Uint64
	matchesEnded    atomic.Uint64
	matchesTimedOut atomic.Uint64
}

// NewRegistry creates a new Registry. The notifier is optional. Queued
// messages are only retried while Run is running.
func NewRegistry(logger *zap.Logger, config Config, notifier Notifier) *Registry {
	if config.QueueCapacity <= 0 {
		config.QueueCapacity = DefaultQueueCapacity
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = DefaultRetryInterval
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Registry{
		logger:   logger,
		config:   config,
		notifier: notifier,
		outbox:   newOutbox(config.QueueCapacity),
		matches:  make(map[messages.MatchID]*games.Match),
	}
}

// Run retries sending queued messages until the given context is done. All
// remaining matches are closed then.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.config.RetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return nil
		case <-ticker.C:
			r.m.Lock()
			r.flushLocked()
			r.m.Unlock()
		}
	}
}

func (r *Registry) closeAll() {
	r.m.Lock()
	matches := r.matches
	r.matches = make(map[messages.MatchID]*games.Match)
	r.m.Unlock()
	for _, match := range matches {
		// Skip reporting as there is nobody to report to anymore.
		match.Close(true)
	}
}

// Connect authenticates the given connection as control channel. If the
// credentials are wrong or another control channel is connected, an error
// with errors.KindPermissionDenied is returned. Queued messages are sent
// immediately after successful authentication.
func (r *Registry) Connect(conn Conn, credentials messages.MessageConnectLobby) error {
	r.m.Lock()
	defer r.m.Unlock()
	if credentials.ID != r.config.ID || credentials.Pass != r.config.Password {
		return errors.NewPermissionDeniedError("invalid lobby credentials", errors.Details{"id": credentials.ID})
	}
	if r.control != nil && r.control != conn {
		return errors.NewPermissionDeniedError("control channel already connected", nil)
	}
	r.control = conn
	err := conn.Send(messages.MustEncode(messages.MessageTypeLobbyConnected, nil))
	if err != nil {
		return errors.Wrap(err, "send lobby connected", nil)
	}
	r.logger.Info("control channel connected", zap.Int("queued", r.outbox.len()))
	r.flushLocked()
	return nil
}

// IsConnected checks whether the given connection is the authenticated
// control channel. If conn is nil, it checks whether any control channel is
// connected.
func (r *Registry) IsConnected(conn Conn) bool {
	r.m.Lock()
	defer r.m.Unlock()
	return r.isConnectedLocked(conn)
}

func (r *Registry) isConnectedLocked(conn Conn) bool {
	if conn == nil {
		return r.control != nil
	}
	return r.control == conn
}

// Disconnect drops the control channel if it is the given connection. If the
// connection implements UnsentReporter, messages that did not reach the peer
// are queued again in front of the outbox.
func (r *Registry) Disconnect(conn Conn) {
	r.m.Lock()
	defer r.m.Unlock()
	if r.control != conn {
		return
	}
	r.control = nil
	requeued := 0
	if reporter, ok := conn.(UnsentReporter); ok {
		unsent := reporter.Unsent()
		requeued = len(unsent)
		if dropped := r.outbox.requeue(unsent); dropped > 0 {
			r.logger.Warn("control channel outbox overflow while requeueing unsent messages",
				zap.Int("dropped", dropped))
		}
	}
	r.logger.Warn("control channel disconnected", zap.Int("requeued", requeued), zap.Int("queued", r.outbox.len()))
}

// Send sends the given message over the control channel. If it is not
// connected or older messages are still queued, the message is queued. If the
// queue overflows, the oldest message is dropped and an error with
// errors.KindOutboxOverflow returned.
func (r *Registry) Send(message []byte) error {
	r.m.Lock()
	defer r.m.Unlock()
	return r.sendLocked(message)
}

func (r *Registry) sendLocked(message []byte) error {
	dropped := r.outbox.push(message)
	r.flushLocked()
	if dropped {
		return errors.Error{
			Code:    errors.ErrUnavailable,
			Kind:    errors.KindOutboxOverflow,
			Message: "control channel outbox overflow, dropped oldest message",
			Details: errors.Details{"capacity": r.config.QueueCapacity},
		}
	}
	return nil
}

// flushLocked sends queued messages in order until the queue is empty or
// sending fails.
func (r *Registry) flushLocked() {
	for r.control != nil {
		message, ok := r.outbox.peek()
		if !ok {
			return
		}
		err := r.control.Send(message)
		if err != nil {
			r.logger.Debug("send queued control message", zap.Error(err), zap.Int("queued", r.outbox.len()))
			return
		}
		r.outbox.pop()
	}
}

// CreateMatch creates a new match if the given connection is the
// authenticated control channel. The created match is announced with
// messages.MessageTypeMatchCreated.
func (r *Registry) CreateMatch(req messages.MessageNewMatch, conn Conn) (messages.MatchID, error) {
	r.m.Lock()
	if !r.isConnectedLocked(conn) {
		r.m.Unlock()
		return "", errors.NewPermissionDeniedError("create match requires authenticated control channel", nil)
	}
	if req.MaxPlayers != 2 {
		r.m.Unlock()
		return "", errors.NewInvalidDataError(fmt.Sprintf("unsupported max players %d", req.MaxPlayers),
			errors.Details{"maxPlayers": req.MaxPlayers})
	}
	for slot := range req.Players {
		if slot != games.SlotLeft && slot != games.SlotRight {
			r.m.Unlock()
			return "", errors.NewInvalidDataError(fmt.Sprintf("invalid slot %d", slot), errors.Details{"slot": slot})
		}
	}
	p1, ok1 := req.Players[games.SlotLeft]
	p2, ok2 := req.Players[games.SlotRight]
	if !ok1 || !ok2 || p1.ID == "" || p2.ID == "" {
		r.m.Unlock()
		return "", errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindPlayerMissing,
			Message: "match requires 2 players",
			Details: errors.Details{"players": len(req.Players)},
		}
	}
	id := games.NewMatchID(p1.ID, p2.ID)
	if _, ok := r.matches[id]; ok {
		r.m.Unlock()
		return "", errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindDuplicate,
			Message: "match already exists",
			Details: errors.Details{"match_id": id},
		}
	}
	r.matches[id] = games.NewMatch(r.logger, id, req.Players, r.config.Game, r)
	r.matchesCreated.Inc()
	err := r.sendLocked(messages.MustEncode(messages.MessageTypeMatchCreated, messages.MessageMatchCreated{MatchID: id}))
	r.m.Unlock()
	if err != nil {
		errors.Log(r.logger, errors.Wrap(err, "send match created", nil))
	}
	r.logger.Debug("match created", zap.String("match_id", string(id)))
	r.notifier.MatchCreated(id, req.Players)
	return id, nil
}

// RemoveMatch removes and closes the match with the given id. If the match is
// still in use, it is only removed when forced. Timeouts are announced with
// messages.MessageTypeTimeoutRemove and other removals with
// messages.MessageTypeRemoveMatch.
func (r *Registry) RemoveMatch(id messages.MatchID, force bool, isTimeout bool) error {
	r.m.Lock()
	match, ok := r.matches[id]
	if !ok {
		r.m.Unlock()
		return errors.Error{
			Code:    errors.ErrNotFound,
			Kind:    errors.KindInvalidMatchID,
			Message: "unknown match",
			Details: errors.Details{"match_id": id},
		}
	}
	if !force && !match.SafeToRemove() {
		r.m.Unlock()
		return errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindMatchNotRemovable,
			Message: "match still in use",
			Details: errors.Details{"match_id": id},
		}
	}
	delete(r.matches, id)
	messageType := messages.MessageTypeRemoveMatch
	if isTimeout {
		messageType = messages.MessageTypeTimeoutRemove
		r.matchesTimedOut.Inc()
	}
	err := r.sendLocked(messages.MustEncode(messageType, messages.MessageRemoveMatch{MatchID: id}))
	r.m.Unlock()
	if err != nil {
		errors.Log(r.logger, errors.Wrap(err, "send remove notice", nil))
	}
	match.Close(isTimeout)
	r.logger.Debug("match removed", zap.String("match_id", string(id)), zap.Bool("is_timeout", isTimeout))
	r.notifier.MatchRemoved(id, isTimeout)
	return nil
}

// Match returns the match with the given id.
func (r *Registry) Match(id messages.MatchID) (*games.Match, bool) {
	r.m.Lock()
	defer r.m.Unlock()
	match, ok := r.matches[id]
	return match, ok
}

// MatchEnded forwards the stats over the control channel and removes the
// match.
func (r *Registry) MatchEnded(stats messages.MatchStats) {
	r.matchesEnded.Inc()
	err := r.Send(messages.MustEncode(messages.MessageTypeEndGame, messages.MessageEndGame{MatchStats: stats}))
	if err != nil {
		errors.Log(r.logger, errors.Wrap(err, "send end game", nil))
	}
	r.m.Lock()
	match, ok := r.matches[stats.MatchID]
	delete(r.matches, stats.MatchID)
	r.m.Unlock()
	if ok {
		match.Close(false)
	}
	r.notifier.MatchEnded(stats)
}

// MatchTimedOut removes the match because of inactivity.
func (r *Registry) MatchTimedOut(matchID messages.MatchID) {
	err := r.RemoveMatch(matchID, true, true)
	if err != nil {
		r.logger.Debug("remove timed out match", zap.Error(err))
	}
}

// Stats returns a snapshot of the current state.
func (r *Registry) Stats() Stats {
	r.m.Lock()
	matches := make([]*games.Match, 0, len(r.matches))
	for _, match := range r.matches {
		matches = append(matches, match)
	}
	s := Stats{
		MatchesByPhase:   make(map[games.MatchPhase]int),
		ControlConnected: r.control != nil,
		QueuedMessages:   r.outbox.len(),
		MatchesCreated:   r.matchesCreated.Load(),
		MatchesEnded:     r.matchesEnded.Load(),
		MatchesTimedOut:  r.matchesTimedOut.Load(),
	}
	r.m.Unlock()
	for _, match := range matches {
		s.MatchesByPhase[match.Phase()]++
		s.PlayersConnected += match.ConnectedPlayers()
	}
	return s
}
