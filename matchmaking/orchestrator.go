// Package matchmaking groups waiting players into lobbies, requests their
// matches from the game host and turns results into progression.
package matchmaking

import (
	"context"
	"fmt"
	"github.com/gobuffalo/nulls"
	"github.com/lefinal/rally-server/errors"
	"github.com/lefinal/rally-server/games"
	"github.com/lefinal/rally-server/hostlink"
	"github.com/lefinal/rally-server/messages"
	"github.com/lefinal/rally-server/ranking"
	"github.com/lefinal/rally-server/store"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"sync"
	"time"
)

// DefaultRoundDelay is the default delay before each tournament round.
const DefaultRoundDelay = 5 * time.Second

// Abort reasons for messages.MessageMatchAborted.
const (
	AbortReasonTimeout      = "timeout"
	AbortReasonRemoved      = "removed"
	AbortReasonInvalidStats = "invalid-stats"
)

// GameServer creates matches on the game host. It is implemented by
// hostlink.Link.
type GameServer interface {
	CreateMatch(ctx context.Context, players map[int]messages.PlayerIdentity) (*hostlink.Match, error)
	RemoveMatch(matchID messages.MatchID, force bool) error
}

// ProgressStore persists rank and experience. It is implemented by store.Mall.
type ProgressStore interface {
	PlayerProgress(ctx context.Context, userID messages.UserID) (store.Progress, error)
	ApplyProgress(ctx context.Context, userID messages.UserID, rankChange int, xpGain int) (store.Progress, error)
	AppendMatchHistory(ctx context.Context, entry store.MatchHistoryEntry) error
}

// PresenceStore mirrors the queue state of players.
type PresenceStore interface {
	SetQueued(ctx context.Context, userID messages.UserID, lobbyType messages.LobbyType) error
	SetPlaying(ctx context.Context, userID messages.UserID, matchID messages.MatchID) error
	Clear(ctx context.Context, userID messages.UserID) error
}

// Notifier is notified when lobbies end.
type Notifier interface {
	LobbyEnded(lobbyID messages.LobbyID, lobbyType messages.LobbyType, matchIDs []messages.MatchID)
}

type nopNotifier struct{}

func (nopNotifier) LobbyEnded(messages.LobbyID, messages.LobbyType, []messages.MatchID) {}

// Config for the Orchestrator.
type Config struct {
	// RoundDelay is the delay before each tournament round.
	RoundDelay time.Duration
	// Policy decides which clients may share a lobby. Defaults to AnyRank.
	Policy PairingPolicy
}

// Stats is a snapshot of the Orchestrator state.
type Stats struct {
	// Queued is the amount of clients in lobbies that are not full yet.
	Queued int
	// Playing is the amount of clients in started lobbies.
	Playing int
	// ActiveLobbies is the amount of started lobbies.
	ActiveLobbies int
	// LobbiesEnded is the total amount of ended lobbies.
	LobbiesEnded uint64
	// GamesPlayed is the total amount of finished or aborted games.
	GamesPlayed uint64
}

// Orchestrator manages all lobbies.
type Orchestrator struct {
	logger   *zap.Logger
	config   Config
	server   GameServer
	progress ProgressStore
	presence PresenceStore
	notifier Notifier
	// lifetime is the context for lobby goroutines. It is cancelled under m
	// once Run stops, so no lobby goroutine is added to wg afterwards.
	lifetime context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// m locks clients, forming and lobbies.
	m sync.Mutex
	// clients holds the lobby of each client. A nil lobby is a reservation while
	// the progress is loaded.
	clients map[messages.UserID]*Lobby
	// forming holds the lobbies that are not full yet by type.
	forming map[messages.LobbyType][]*Lobby
	lobbies map[messages.LobbyID]*Lobby

	lobbiesEnded atomic.Uint64
	gamesPlayed  atomic.Uint64
}

// NewOrchestrator creates a new Orchestrator. The presence store and notifier
// are optional.
func NewOrchestrator(logger *zap.Logger, config Config, server GameServer, progress ProgressStore,
	presence PresenceStore, notifier Notifier) *Orchestrator {
	if config.RoundDelay <= 0 {
		config.RoundDelay = DefaultRoundDelay
	}
	if config.Policy == nil {
		config.Policy = AnyRank{}
	}
	if presence == nil {
		presence = nopPresence{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	lifetime, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		logger:   logger,
		config:   config,
		server:   server,
		progress: progress,
		presence: presence,
		notifier: notifier,
		lifetime: lifetime,
		cancel:   cancel,
		clients:  make(map[messages.UserID]*Lobby),
		forming:  make(map[messages.LobbyType][]*Lobby),
		lobbies:  make(map[messages.LobbyID]*Lobby),
	}
}

type nopPresence struct{}

func (nopPresence) SetQueued(context.Context, messages.UserID, messages.LobbyType) error { return nil }

func (nopPresence) SetPlaying(context.Context, messages.UserID, messages.MatchID) error { return nil }

func (nopPresence) Clear(context.Context, messages.UserID) error { return nil }

// Run waits until the given context is done. Then all lobbies are ended and
// their goroutines awaited.
func (o *Orchestrator) Run(ctx context.Context) error {
	<-ctx.Done()
	o.m.Lock()
	o.cancel()
	o.m.Unlock()
	o.wg.Wait()
	o.m.Lock()
	lobbies := make([]*Lobby, 0, len(o.lobbies))
	for _, lobby := range o.lobbies {
		lobbies = append(lobbies, lobby)
	}
	o.m.Unlock()
	for _, lobby := range lobbies {
		o.endLobby(lobby)
	}
	return nil
}

// Enqueue adds a client for the given connection to a lobby of the requested
// type. If a client with the same id is already enqueued, an error with
// errors.KindDuplicate is returned. When the lobby is full, its game is
// started.
func (o *Orchestrator) Enqueue(ctx context.Context, conn Conn, req messages.MessageQueueJoin) (*Client, error) {
	if _, ok := Capacity(req.LobbyType); !ok {
		return nil, errors.NewInvalidDataError(fmt.Sprintf("unsupported lobby type %q", req.LobbyType),
			errors.Details{"lobby_type": req.LobbyType})
	}
	if req.ID == "" {
		return nil, errors.NewInvalidDataError("missing id", nil)
	}
	// Reserve.
	o.m.Lock()
	if o.lifetime.Err() != nil {
		o.m.Unlock()
		return nil, errStopped()
	}
	if _, ok := o.clients[req.ID]; ok {
		o.m.Unlock()
		return nil, errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindDuplicate,
			Message: "client already enqueued",
			Details: errors.Details{"user_id": req.ID},
		}
	}
	o.clients[req.ID] = nil
	o.m.Unlock()
	c := newClient(o.logger, conn, req.ID, req.Name)
	progress, err := o.progress.PlayerProgress(ctx, req.ID)
	if err != nil {
		errors.Log(o.logger, errors.Wrap(err, "load player progress", errors.Details{"user_id": req.ID}))
	} else {
		c.Rank = progress.Rank
		c.XP = progress.XP
	}
	// Place.
	o.m.Lock()
	if _, ok := o.clients[req.ID]; !ok {
		// Dequeued while loading.
		o.m.Unlock()
		return nil, errors.NewContextAbortedError("enqueue")
	}
	if o.lifetime.Err() != nil {
		delete(o.clients, req.ID)
		o.m.Unlock()
		return nil, errStopped()
	}
	lobby, err := o.placeLocked(c, req.LobbyType)
	if err != nil {
		delete(o.clients, req.ID)
		o.m.Unlock()
		return nil, errors.Wrap(err, "place client", nil)
	}
	o.clients[req.ID] = lobby
	started := lobby.start()
	if started {
		o.removeFormingLocked(lobby)
		o.wg.Add(1)
	}
	o.m.Unlock()
	if err = o.presence.SetQueued(ctx, c.ID, lobby.Type); err != nil {
		errors.Log(c.logger, errors.Wrap(err, "set queued presence", nil))
	}
	lobby.broadcast(messages.MessageTypeQueueJoined, lobby.queueJoined())
	c.logger.Debug("client enqueued", zap.String("lobby_id", string(lobby.ID)), zap.Int("size", lobby.Size()))
	if started {
		go o.runLobby(lobby)
	}
	return c, nil
}

func errStopped() error {
	return errors.Error{
		Code:    errors.ErrUnavailable,
		Kind:    errors.KindNotRunning,
		Message: "matchmaking stopped",
	}
}

// placeLocked adds the client to the first forming lobby of the given type that
// the policy accepts or to a new one.
func (o *Orchestrator) placeLocked(c *Client, lobbyType messages.LobbyType) (*Lobby, error) {
	for _, lobby := range o.forming[lobbyType] {
		if !lobby.accepts(c, o.config.Policy) {
			continue
		}
		err := lobby.add(c)
		if err != nil {
			return nil, errors.Wrap(err, "add to lobby", nil)
		}
		return lobby, nil
	}
	lobby, err := newLobby(lobbyType)
	if err != nil {
		return nil, errors.Wrap(err, "new lobby", nil)
	}
	err = lobby.add(c)
	if err != nil {
		return nil, errors.Wrap(err, "add to new lobby", nil)
	}
	o.forming[lobbyType] = append(o.forming[lobbyType], lobby)
	o.lobbies[lobby.ID] = lobby
	return lobby, nil
}

func (o *Orchestrator) removeFormingLocked(lobby *Lobby) {
	forming := o.forming[lobby.Type]
	for i, l := range forming {
		if l == lobby {
			o.forming[lobby.Type] = append(forming[:i], forming[i+1:]...)
			return
		}
	}
}

// Dequeue removes the client with the given id from its lobby. Clients of
// started lobbies stay until the lobby ends but receive no more messages.
func (o *Orchestrator) Dequeue(ctx context.Context, userID messages.UserID) error {
	o.m.Lock()
	lobby, ok := o.clients[userID]
	if !ok {
		o.m.Unlock()
		return errors.NewResourceNotFoundError("client not enqueued", errors.Details{"user_id": userID})
	}
	if lobby == nil {
		delete(o.clients, userID)
		o.m.Unlock()
		return nil
	}
	var c *Client
	for _, member := range lobby.Members() {
		if member.ID == userID {
			c = member
		}
	}
	if !lobby.remove(userID) {
		o.m.Unlock()
		if c != nil {
			c.detach()
		}
		return nil
	}
	delete(o.clients, userID)
	empty := lobby.Size() == 0
	if empty {
		o.removeFormingLocked(lobby)
		delete(o.lobbies, lobby.ID)
	}
	o.m.Unlock()
	if err := o.presence.Clear(ctx, userID); err != nil {
		errors.Log(o.logger, errors.Wrap(err, "clear presence", errors.Details{"user_id": userID}))
	}
	if c != nil {
		c.send(messages.MessageTypeQueueLeft, messages.MessageQueueLeft{LobbyID: lobby.ID})
	}
	if !empty {
		lobby.broadcast(messages.MessageTypeQueueJoined, lobby.queueJoined())
	}
	o.logger.Debug("client dequeued", zap.String("user_id", string(userID)))
	return nil
}

// Lobby returns the lobby of the client with the given id.
func (o *Orchestrator) Lobby(userID messages.UserID) (*Lobby, bool) {
	o.m.Lock()
	defer o.m.Unlock()
	lobby, ok := o.clients[userID]
	return lobby, ok && lobby != nil
}

// Stats returns a snapshot of the current state.
func (o *Orchestrator) Stats() Stats {
	o.m.Lock()
	lobbies := make([]*Lobby, 0, len(o.lobbies))
	for _, lobby := range o.lobbies {
		lobbies = append(lobbies, lobby)
	}
	o.m.Unlock()
	s := Stats{
		LobbiesEnded: o.lobbiesEnded.Load(),
		GamesPlayed:  o.gamesPlayed.Load(),
	}
	for _, lobby := range lobbies {
		lobby.m.Lock()
		if lobby.started {
			s.ActiveLobbies++
			s.Playing += len(lobby.members)
		} else {
			s.Queued += len(lobby.members)
		}
		lobby.m.Unlock()
	}
	return s
}

// runLobby plays the games of the given full lobby and ends it afterwards.
func (o *Orchestrator) runLobby(lobby *Lobby) {
	defer o.wg.Done()
	defer o.endLobby(lobby)
	logger := o.logger.With(zap.String("lobby_id", string(lobby.ID)), zap.String("lobby_type", string(lobby.Type)))
	logger.Debug("lobby started")
	switch lobby.Type {
	case messages.LobbyTypeRanked:
		o.runRanked(o.lifetime, logger, lobby)
	case messages.LobbyTypeTournament:
		o.runTournament(o.lifetime, logger, lobby)
	}
}

// endLobby ends the given lobby and releases its clients.
func (o *Orchestrator) endLobby(lobby *Lobby) {
	if !lobby.End() {
		return
	}
	o.lobbiesEnded.Inc()
	members := lobby.Members()
	o.m.Lock()
	delete(o.lobbies, lobby.ID)
	o.removeFormingLocked(lobby)
	for _, member := range members {
		if o.clients[member.ID] == lobby {
			delete(o.clients, member.ID)
		}
	}
	o.m.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, member := range members {
		if err := o.presence.Clear(ctx, member.ID); err != nil {
			errors.Log(o.logger, errors.Wrap(err, "clear presence", errors.Details{"user_id": member.ID}))
		}
	}
	o.notifier.LobbyEnded(lobby.ID, lobby.Type, lobby.MatchIDs())
	o.logger.Debug("lobby ended", zap.String("lobby_id", string(lobby.ID)))
}

// gameResult is the result of one played game.
type gameResult struct {
	matchID messages.MatchID
	players [2]*Client
	// stats is nil for aborted games.
	stats *messages.MatchStats
	// winner and loser are nil for aborted games.
	winner *Client
	loser  *Client
	// abortReason is set for aborted games.
	abortReason string
	timedOut    bool
}

func (r gameResult) aborted() bool {
	return r.abortReason != ""
}

// playGame requests a match for the given players and waits for its outcome.
// Aborted games are announced with messages.MessageTypeMatchAborted. The
// optional created callback is called with the match id once the match
// exists.
func (o *Orchestrator) playGame(ctx context.Context, lobby *Lobby, a *Client, b *Client,
	created func(matchID messages.MatchID)) (gameResult, error) {
	players := map[int]messages.PlayerIdentity{
		games.SlotLeft:  a.Identity(),
		games.SlotRight: b.Identity(),
	}
	match, err := o.server.CreateMatch(ctx, players)
	if err != nil {
		return gameResult{}, errors.Wrap(err, "create match", nil)
	}
	lobby.addMatch(match.ID)
	if created != nil {
		created(match.ID)
	}
	for _, c := range []*Client{a, b} {
		if err = o.presence.SetPlaying(ctx, c.ID, match.ID); err != nil {
			errors.Log(c.logger, errors.Wrap(err, "set playing presence", nil))
		}
	}
	a.send(messages.MessageTypeMatchFound, messages.MessageMatchFound{
		MatchID:  match.ID,
		LobbyID:  lobby.ID,
		Slot:     games.SlotLeft,
		Opponent: b.Identity(),
	})
	b.send(messages.MessageTypeMatchFound, messages.MessageMatchFound{
		MatchID:  match.ID,
		LobbyID:  lobby.ID,
		Slot:     games.SlotRight,
		Opponent: a.Identity(),
	})
	result := gameResult{
		matchID: match.ID,
		players: [2]*Client{a, b},
	}
	var outcome hostlink.Outcome
	select {
	case <-ctx.Done():
		if err = o.server.RemoveMatch(match.ID, true); err != nil {
			o.logger.Debug("remove match on shutdown", zap.Error(err))
		}
		return gameResult{}, errors.NewContextAbortedError("wait for match outcome")
	case outcome = <-match.Outcome:
	}
	o.gamesPlayed.Inc()
	switch {
	case outcome.TimedOut:
		result.abortReason = AbortReasonTimeout
		result.timedOut = true
	case outcome.Removed || outcome.Stats == nil:
		result.abortReason = AbortReasonRemoved
	default:
		winnerSlot, err := validateStats(match.ID, players, *outcome.Stats)
		if err != nil {
			errors.Log(o.logger, errors.Wrap(err, "validate stats", nil))
			result.abortReason = AbortReasonInvalidStats
			break
		}
		result.stats = outcome.Stats
		if winnerSlot == games.SlotLeft {
			result.winner, result.loser = a, b
		} else {
			result.winner, result.loser = b, a
		}
	}
	if result.aborted() {
		aborted := messages.MessageMatchAborted{MatchID: match.ID, Reason: result.abortReason}
		a.send(messages.MessageTypeMatchAborted, aborted)
		b.send(messages.MessageTypeMatchAborted, aborted)
	}
	o.recordHistory(ctx, lobby, result)
	return result, nil
}

// validateStats checks that the stats belong to the requested match and
// players and that there is a winner. The winner's slot is returned.
func validateStats(matchID messages.MatchID, players map[int]messages.PlayerIdentity, stats messages.MatchStats) (int, error) {
	if stats.MatchID != matchID {
		return 0, errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindInvalidMatchID,
			Message: "stats for unexpected match",
			Details: errors.Details{"expected": matchID, "got": stats.MatchID},
		}
	}
	for slot, identity := range players {
		if stats.Players[slot].ID != identity.ID {
			return 0, errors.Error{
				Code:    errors.ErrBadRequest,
				Kind:    errors.KindInvalidStats,
				Message: "stats for unexpected player",
				Details: errors.Details{"slot": slot, "expected": identity.ID, "got": stats.Players[slot].ID},
			}
		}
	}
	slot, _, ok := stats.Winner()
	if !ok {
		return 0, errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindInvalidStats,
			Message: "stats without winner",
			Details: errors.Details{"match_id": matchID},
		}
	}
	return slot, nil
}

// recordHistory appends the played game to the match history. Failures are
// only logged.
func (o *Orchestrator) recordHistory(ctx context.Context, lobby *Lobby, result gameResult) {
	entry := store.MatchHistoryEntry{
		MatchID:   result.matchID,
		LobbyID:   lobby.ID,
		LobbyType: lobby.Type,
		Player1:   result.players[0].ID,
		Player2:   result.players[1].ID,
		Outcome:   store.OutcomeFinished,
	}
	switch {
	case result.timedOut:
		entry.Outcome = store.OutcomeTimedOut
	case result.aborted():
		entry.Outcome = store.OutcomeAborted
	}
	if result.stats != nil {
		entry.Score1 = result.stats.Players[games.SlotLeft].Score
		entry.Score2 = result.stats.Players[games.SlotRight].Score
		entry.DurationMS = result.stats.Time.Duration
		entry.StartedAt = nulls.NewTime(time.UnixMilli(result.stats.Time.StartedAt).UTC())
	}
	if result.winner != nil {
		entry.Winner = nulls.NewString(string(result.winner.ID))
	}
	if err := o.progress.AppendMatchHistory(ctx, entry); err != nil {
		errors.Log(o.logger, errors.Wrap(err, "append match history", errors.Details{"match_id": result.matchID}))
	}
}

// applyResult applies the rank change and experience to the given client and
// sends the result. Persistence failures are logged and the result is
// calculated from the known progress.
func (o *Orchestrator) applyResult(ctx context.Context, c *Client, result gameResult, outcome messages.MatchResult,
	points int, xp int) {
	progress := store.Progress{UserID: c.ID, Rank: c.Rank, XP: c.XP}
	if points != 0 || xp != 0 {
		var err error
		progress, err = o.progress.ApplyProgress(ctx, c.ID, points, xp)
		if err != nil {
			errors.Log(c.logger, errors.Wrap(err, "apply progress", errors.Details{"points": points, "xp": xp}))
			progress = store.Progress{
				UserID: c.ID,
				Rank:   ranking.ApplyRank(c.Rank, points),
				XP:     c.XP + int64(xp),
			}
		}
	}
	c.Rank = progress.Rank
	c.XP = progress.XP
	m := messages.MessageMatchResult{
		MatchID:  result.matchID,
		Result:   outcome,
		Points:   points,
		Rank:     progress.Rank,
		Tier:     string(progress.Tier()),
		Level:    progress.Level(),
		XP:       progress.XP,
		XPGained: xp,
	}
	if result.stats != nil {
		m.Stats = *result.stats
	}
	c.send(messages.MessageTypeMatchResult, m)
}

// failGame reports the given error to the players of a game that could not be
// played.
func (o *Orchestrator) failGame(logger *zap.Logger, err error, players ...*Client) {
	if errors.Is(err, errors.KindContextAborted) {
		logger.Debug("game aborted", zap.Error(err))
		return
	}
	errors.Log(logger, err)
	message := messages.EncodeError(err, "", 0)
	for _, c := range players {
		c.sendRaw(message)
	}
}

// runRanked plays the single game of a ranked lobby.
func (o *Orchestrator) runRanked(ctx context.Context, logger *zap.Logger, lobby *Lobby) {
	members := lobby.Members()
	a, b := members[0], members[1]
	result, err := o.playGame(ctx, lobby, a, b, nil)
	if err != nil {
		o.failGame(logger, errors.Wrap(err, "play ranked game", nil), a, b)
		return
	}
	if result.aborted() {
		return
	}
	winnerScore := result.stats.Players[slotOf(result, result.winner)].Score
	loserScore := result.stats.Players[slotOf(result, result.loser)].Score
	delta := ranking.RankDelta(winnerScore, loserScore)
	o.applyResult(ctx, result.winner, result, messages.MatchResultWin, delta.Gain, ranking.XP(1, false))
	o.applyResult(ctx, result.loser, result, messages.MatchResultLoss, delta.Loss, ranking.XP(2, false))
}

func slotOf(result gameResult, c *Client) int {
	if result.players[0] == c {
		return games.SlotLeft
	}
	return games.SlotRight
}

// runTournament plays bracket rounds until one champion remains. Games of a
// round are played concurrently.
func (o *Orchestrator) runTournament(ctx context.Context, logger *zap.Logger, lobby *Lobby) {
	players := lobby.Members()
	championRewarded := false
	for round := 1; len(players) > 1; round++ {
		bracket := newBracket(lobby.ID, round, players)
		lobby.broadcast(messages.MessageTypeTournamentBracket, bracket.message())
		err := lobby.waitRoundDelay(ctx, o.config.RoundDelay)
		if err != nil {
			logger.Debug("tournament cancelled", zap.Error(err))
			return
		}
		final := len(bracket.games) == 1 && len(bracket.byes) == 0
		var g errgroup.Group
		for _, game := range bracket.games {
			game := game
			g.Go(func() error {
				o.playBracketGame(ctx, logger, lobby, bracket, game, final)
				return nil
			})
		}
		_ = g.Wait()
		if ctx.Err() != nil {
			return
		}
		lobby.broadcast(messages.MessageTypeTournamentBracket, bracket.message())
		championRewarded = final
		players = bracket.advancing()
	}
	var champion *messages.PlayerIdentity
	if len(players) == 1 {
		c := players[0]
		if !championRewarded {
			// Champion without a final because of aborted games.
			_, err := o.progress.ApplyProgress(ctx, c.ID, 0, ranking.XP(1, true))
			if err != nil {
				errors.Log(c.logger, errors.Wrap(err, "apply champion progress", nil))
			}
		}
		identity := c.Identity()
		champion = &identity
	}
	lobby.broadcast(messages.MessageTypeTournamentResult, messages.MessageTournamentResult{
		LobbyID:  lobby.ID,
		Champion: champion,
	})
	logger.Debug("tournament finished", zap.Bool("has_champion", champion != nil))
}

// playBracketGame plays one game of a tournament round. Tournament games do not
// change rank. The loser receives experience for its position and the winner
// of the final for the first place.
func (o *Orchestrator) playBracketGame(ctx context.Context, logger *zap.Logger, lobby *Lobby, bracket *Bracket,
	game *bracketGame, final bool) {
	a, b := game.players[0], game.players[1]
	result, err := o.playGame(ctx, lobby, a, b, func(matchID messages.MatchID) {
		bracket.setMatchID(game, matchID)
	})
	if err != nil {
		bracket.finish(game, nil)
		o.failGame(logger, errors.Wrap(err, "play tournament game", nil), a, b)
		return
	}
	if result.aborted() {
		bracket.finish(game, nil)
		return
	}
	bracket.finish(game, result.winner)
	winnerXP := 0
	if final {
		winnerXP = ranking.XP(1, true)
	}
	o.applyResult(ctx, result.loser, result, messages.MatchResultLoss, 0, ranking.XP(2, true))
	o.applyResult(ctx, result.winner, result, messages.MatchResultWin, 0, winnerXP)
}
