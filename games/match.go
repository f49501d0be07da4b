package games

import (
	"bytes"
	"fmt"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lefinal/rally-server/errors"
	"github.com/lefinal/rally-server/messages"
	"go.uber.org/zap"
	"math"
	"math/rand"
	"sync"
	"time"
)

// matchIDNamespace is the namespace for name-based match ids.
var matchIDNamespace = uuid.MustParse("6f1bd3b3-5d7e-4c1e-9b9e-2f0c4a5e8d10")

// NewMatchID returns the deterministic id for a match of the two given
// players, ordered by slot.
func NewMatchID(player1 messages.UserID, player2 messages.UserID) messages.MatchID {
	return messages.MatchID(uuid.NewSHA1(matchIDNamespace, []byte(string(player1)+"\x00"+string(player2))).String())
}

// Match is one authoritative game instance with two player slots.
type Match struct {
	id       messages.MatchID
	logger   *zap.Logger
	config   Config
	listener Listener
	rng      *rand.Rand
	now      func() time.Time
	// runLoop determines whether starting the match starts the tick loop.
	runLoop bool

	// m locks all following fields.
	m         sync.Mutex
	phase     MatchPhase
	players   [2]*Player
	ball      *Ball
	startedAt time.Time
	// lastBroadcast is the last sent MessageGameState.
	lastBroadcast []byte
	// inactivityTimer is the armed inactivity timer.
	inactivityTimer *time.Timer
	// inactivityGeneration is increased whenever the inactivity timer is
	// cancelled so that already fired timers are ignored.
	inactivityGeneration uint64
	// stopLoop is closed in order to stop the tick loop.
	stopLoop chan struct{}
}

// NewMatch creates a Match for the given players in slot 1 and 2. The
// inactivity timer is armed immediately.
func NewMatch(logger *zap.Logger, id messages.MatchID, players map[int]messages.PlayerIdentity, config Config,
	listener Listener) *Match {
	return newMatch(logger, id, players, config, listener, rand.New(rand.NewSource(time.Now().UnixNano())), time.Now, true)
}

func newMatch(logger *zap.Logger, id messages.MatchID, players map[int]messages.PlayerIdentity, config Config,
	listener Listener, rng *rand.Rand, now func() time.Time, runLoop bool) *Match {
	m := &Match{
		id:       id,
		logger:   logger.Named("match").With(zap.String("match_id", string(id))),
		config:   config,
		listener: listener,
		rng:      rng,
		now:      now,
		runLoop:  runLoop,
		phase:    MatchPhaseWaitingForPlayers,
	}
	m.players[0] = newPlayer(config, SlotLeft, players[SlotLeft])
	m.players[1] = newPlayer(config, SlotRight, players[SlotRight])
	m.m.Lock()
	m.armInactivityTimerLocked()
	m.m.Unlock()
	return m
}

// ID returns the match id.
func (m *Match) ID() messages.MatchID {
	return m.id
}

// Phase returns the current MatchPhase.
func (m *Match) Phase() MatchPhase {
	m.m.Lock()
	defer m.m.Unlock()
	return m.phase
}

// ConnectedPlayers returns the amount of players with a bound connection.
func (m *Match) ConnectedPlayers() int {
	m.m.Lock()
	defer m.m.Unlock()
	return m.connectedPlayersLocked()
}

func (m *Match) connectedPlayersLocked() int {
	n := 0
	for _, p := range m.players {
		if p.Connected() {
			n++
		}
	}
	return n
}

// SafeToRemove reports whether removing the match does not affect anybody, that
// is if it ended or nobody connected yet.
func (m *Match) SafeToRemove() bool {
	m.m.Lock()
	defer m.m.Unlock()
	switch m.phase {
	case MatchPhaseEnded, MatchPhaseDestroyed:
		return true
	case MatchPhaseWaitingForPlayers:
		return m.connectedPlayersLocked() == 0
	}
	return false
}

func (m *Match) playerBySlot(slot int) (*Player, error) {
	if slot != SlotLeft && slot != SlotRight {
		return nil, errors.NewInvalidDataError(fmt.Sprintf("invalid slot %d", slot), errors.Details{"slot": slot})
	}
	return m.players[slot-1], nil
}

func (m *Match) playerOnSide(side Side) *Player {
	if side == SideLeft {
		return m.players[0]
	}
	return m.players[1]
}

// ConnectPlayer binds the given connection to the requested slot. If no slot
// is requested, the slot is looked up by the user id. When both players are
// connected, the match starts. The bound slot is returned.
func (m *Match) ConnectPlayer(conn Conn, req messages.MessageConnectPlayer) (int, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.phase != MatchPhaseWaitingForPlayers && m.phase != MatchPhaseActive {
		return 0, errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindNotRunning,
			Message: fmt.Sprintf("match in phase %s", m.phase),
		}
	}
	var player *Player
	if req.PlayerID.Valid {
		p, err := m.playerBySlot(req.PlayerID.Int)
		if err != nil {
			return 0, errors.Wrap(err, "player by slot", nil)
		}
		player = p
	} else {
		for _, p := range m.players {
			if p.identity.ID == req.ID {
				player = p
				break
			}
		}
		if player == nil {
			return 0, errors.Error{
				Code:    errors.ErrNotFound,
				Kind:    errors.KindIdentityMismatch,
				Message: "no slot for user",
				Details: errors.Details{"id": req.ID},
			}
		}
	}
	err := player.Connect(conn, req.ID, req.Name)
	if err != nil {
		return 0, errors.Wrap(err, "connect player", nil)
	}
	m.stopInactivityTimerLocked()
	m.logger.Debug("player connected", zap.Int("slot", player.slot), zap.String("user_id", string(req.ID)))
	err = player.Send(messages.MustEncode(messages.MessageTypePlayerConnected, messages.MessagePlayerConnected{
		ID:       req.ID,
		MatchID:  m.id,
		PlayerID: player.slot,
	}))
	if err != nil {
		m.logger.Debug("send player connected", zap.Error(err))
	}
	if m.phase == MatchPhaseWaitingForPlayers && m.connectedPlayersLocked() == len(m.players) {
		m.startLocked()
	}
	return player.slot, nil
}

// DisconnectPlayer releases the connection of the player in the given slot if
// it is still bound to the given one. If nobody is connected anymore, the
// inactivity timer is re-armed.
func (m *Match) DisconnectPlayer(slot int, conn Conn) {
	m.m.Lock()
	defer m.m.Unlock()
	player, err := m.playerBySlot(slot)
	if err != nil || player.conn != conn {
		return
	}
	player.Disconnect()
	m.logger.Debug("player disconnected", zap.Int("slot", slot))
	if (m.phase == MatchPhaseActive || m.phase == MatchPhaseWaitingForPlayers) && m.connectedPlayersLocked() == 0 {
		m.armInactivityTimerLocked()
	}
}

// HandleInput updates the paddle direction of the player in the given slot.
func (m *Match) HandleInput(slot int, up bool, down bool) error {
	m.m.Lock()
	defer m.m.Unlock()
	player, err := m.playerBySlot(slot)
	if err != nil {
		return errors.Wrap(err, "player by slot", nil)
	}
	player.UpdateDirection(up, down)
	return nil
}

// Ping answers with a MessageTypePong to the player in the given slot.
func (m *Match) Ping(slot int) error {
	m.m.Lock()
	defer m.m.Unlock()
	player, err := m.playerBySlot(slot)
	if err != nil {
		return errors.Wrap(err, "player by slot", nil)
	}
	err = player.Send(messages.MustEncode(messages.MessageTypePong, messages.MessagePing{
		ID:      player.identity.ID,
		MatchID: m.id,
	}))
	if err != nil {
		return errors.Wrap(err, "send pong", nil)
	}
	return nil
}

// HandleBounceHint applies a collision that was reported by a client if the
// current state confirms it. It reports whether a bounce was applied.
func (m *Match) HandleBounceHint(axis Axis) bool {
	m.m.Lock()
	defer m.m.Unlock()
	if m.phase != MatchPhaseActive || m.ball == nil {
		return false
	}
	switch axis {
	case AxisX:
		return m.resolvePaddleCollisionsLocked()
	case AxisY:
		top := m.config.Map.Margin
		bottom := m.config.Map.Height - m.config.Map.Margin - m.config.Ball.Size
		if (m.ball.y <= top && m.ball.dirY < 0) || (m.ball.y >= bottom && m.ball.dirY > 0) {
			return m.ball.Bounce(AxisY)
		}
	}
	return false
}

func (m *Match) startLocked() {
	m.phase = MatchPhaseActive
	m.startedAt = m.now()
	m.ball = newBall(m.config, m.rng, m.now, SideNone)
	m.lastBroadcast = nil
	m.logger.Debug("match started")
	if m.runLoop {
		m.stopLoop = make(chan struct{})
		go m.loop(m.stopLoop)
	}
}

// loop drives physics and broadcasts until stop is closed. Both are handled
// in the same goroutine so that ticks never overlap.
func (m *Match) loop(stop <-chan struct{}) {
	physics := time.NewTicker(m.config.PhysicsInterval())
	defer physics.Stop()
	broadcast := time.NewTicker(m.config.BroadcastInterval())
	defer broadcast.Stop()
	last := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-physics.C:
			m.step(now.Sub(last))
			last = now
		case <-broadcast.C:
			m.broadcast()
		}
	}
}

// step advances the simulation by the given delta.
func (m *Match) step(delta time.Duration) {
	m.m.Lock()
	if m.phase != MatchPhaseActive {
		m.m.Unlock()
		return
	}
	stats := m.stepLocked(delta)
	m.m.Unlock()
	if stats != nil {
		m.listener.MatchEnded(*stats)
	}
}

func (m *Match) stepLocked(delta time.Duration) *messages.MatchStats {
	if delta > m.config.MaxDelta() {
		delta = m.config.MaxDelta()
	}
	for _, p := range m.players {
		p.paddle.Tick(delta.Seconds())
	}
	if m.ball == nil {
		return nil
	}
	if scorer := m.ball.Tick(delta); scorer != SideNone {
		return m.scoreLocked(scorer)
	}
	m.resolvePaddleCollisionsLocked()
	return nil
}

// resolvePaddleCollisionsLocked bounces the ball off a paddle it overlaps and
// moves toward. The ball is pushed out of the paddle and its vertical
// direction depends on where the paddle was hit.
func (m *Match) resolvePaddleCollisionsLocked() bool {
	ballBox := m.ball.HitBox()
	for _, p := range m.players {
		paddleBox := p.paddle.HitBox()
		if !ballBox.Intersects(paddleBox) || !m.ball.movingToward(p.side) {
			continue
		}
		if !m.ball.Bounce(AxisX) {
			return false
		}
		if p.side == SideLeft {
			m.ball.x = paddleBox.X + paddleBox.W
		} else {
			m.ball.x = paddleBox.X - ballBox.W
		}
		offset := ((ballBox.Y + ballBox.H/2) - (paddleBox.Y + paddleBox.H/2)) / (paddleBox.H / 2)
		m.ball.dirY = math.Max(-1, math.Min(1, offset))
		return true
	}
	return false
}

func (m *Match) scoreLocked(scorer Side) *messages.MatchStats {
	player := m.playerOnSide(scorer)
	player.score++
	m.logger.Debug("scored", zap.Int("slot", player.slot), zap.Int("score", player.score))
	if player.score >= m.config.MaxScore {
		return m.finishLocked(player)
	}
	m.ball = newBall(m.config, m.rng, m.now, scorer.Opposite())
	return nil
}

// broadcast sends the current state to all connected players if it changed
// since the last broadcast.
func (m *Match) broadcast() {
	m.m.Lock()
	defer m.m.Unlock()
	if m.phase != MatchPhaseActive {
		return
	}
	state := messages.MessageGameState{
		MatchID: m.id,
		Players: make(map[int]messages.PlayerState, len(m.players)),
	}
	for _, p := range m.players {
		x, y := p.paddle.Position()
		state.Players[p.slot] = messages.PlayerState{
			Position:  messages.Position{X: x, Y: y},
			Score:     p.score,
			Connected: p.Connected(),
		}
	}
	if m.ball != nil {
		x, y := m.ball.Position()
		state.Ball = &messages.Position{X: x, Y: y}
	}
	b, err := messages.Encode(messages.MessageTypeGameState, state)
	if err != nil {
		errors.Log(m.logger, errors.Wrap(err, "encode game state", nil))
		return
	}
	if bytes.Equal(b, m.lastBroadcast) {
		return
	}
	m.lastBroadcast = b
	for _, p := range m.players {
		if !p.Connected() {
			continue
		}
		if err := p.Send(b); err != nil {
			m.logger.Debug("send game state", zap.Error(err), zap.Int("slot", p.slot))
		}
	}
}

func (m *Match) statsLocked(winner *Player) messages.MatchStats {
	stats := messages.MatchStats{
		MatchID: m.id,
		Players: make(map[int]messages.PlayerStats, len(m.players)),
		Time: messages.MatchTime{
			Duration:  m.now().Sub(m.startedAt).Milliseconds(),
			StartedAt: m.startedAt.UnixMilli(),
		},
	}
	for _, p := range m.players {
		stats.Players[p.slot] = messages.PlayerStats{
			ID:     p.identity.ID,
			Name:   p.identity.Name,
			Score:  p.score,
			Winner: p == winner,
		}
	}
	return stats
}

// finishLocked ends the match, sends the final stats to all players and
// releases all resources. The stats are returned for reporting them to the
// Listener after unlocking.
func (m *Match) finishLocked(winner *Player) *messages.MatchStats {
	stats := m.statsLocked(winner)
	endGame := messages.MustEncode(messages.MessageTypeEndGame, messages.MessageEndGame{MatchStats: stats})
	for _, p := range m.players {
		if !p.Connected() {
			continue
		}
		if err := p.Send(endGame); err != nil {
			m.logger.Debug("send end game", zap.Error(err), zap.Int("slot", p.slot))
		}
	}
	m.phase = MatchPhaseEnded
	m.releaseLocked(websocket.CloseNormalClosure, "match ended")
	m.logger.Debug("match ended")
	return &stats
}

// releaseLocked cancels all timers, stops the tick loop and closes all
// connections.
func (m *Match) releaseLocked(closeCode int, reason string) {
	m.stopInactivityTimerLocked()
	if m.stopLoop != nil {
		close(m.stopLoop)
		m.stopLoop = nil
	}
	m.ball = nil
	for _, p := range m.players {
		if p.conn == nil {
			continue
		}
		p.conn.Close(closeCode, reason)
		p.Disconnect()
	}
}

// Close destroys the match. Stats are reported if the match was active and
// the close is not caused by an inactivity timeout. Closing is idempotent.
func (m *Match) Close(isTimeout bool) {
	m.m.Lock()
	var stats *messages.MatchStats
	switch m.phase {
	case MatchPhaseDestroyed:
		m.m.Unlock()
		return
	case MatchPhaseActive:
		if isTimeout {
			m.releaseLocked(websocket.CloseGoingAway, "inactivity timeout")
		} else {
			stats = m.finishLocked(nil)
		}
	case MatchPhaseWaitingForPlayers:
		m.releaseLocked(websocket.CloseGoingAway, "match removed")
	}
	m.phase = MatchPhaseDestroyed
	m.m.Unlock()
	m.logger.Debug("match destroyed", zap.Bool("is_timeout", isTimeout))
	if stats != nil {
		m.listener.MatchEnded(*stats)
	}
}

func (m *Match) armInactivityTimerLocked() {
	m.stopInactivityTimerLocked()
	generation := m.inactivityGeneration
	m.inactivityTimer = time.AfterFunc(m.config.InactivityTimeout(), func() {
		m.inactivityTimeout(generation)
	})
}

func (m *Match) stopInactivityTimerLocked() {
	m.inactivityGeneration++
	if m.inactivityTimer != nil {
		m.inactivityTimer.Stop()
		m.inactivityTimer = nil
	}
}

func (m *Match) inactivityTimeout(generation uint64) {
	m.m.Lock()
	expired := generation == m.inactivityGeneration &&
		(m.phase == MatchPhaseWaitingForPlayers || m.phase == MatchPhaseActive)
	m.m.Unlock()
	if !expired {
		return
	}
	m.logger.Debug("inactivity timeout")
	m.listener.MatchTimedOut(m.id)
}
