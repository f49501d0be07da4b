package matchmaking

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"github.com/lefinal/rally-server/errors"
	"github.com/lefinal/rally-server/messages"
	"sort"
	"sync"
	"time"
)

var lobbyCapacities = map[messages.LobbyType]int{
	messages.LobbyTypeRanked:     2,
	messages.LobbyTypeTournament: 4,
}

// Capacity returns the amount of players a lobby of the given type holds.
func Capacity(lobbyType messages.LobbyType) (int, bool) {
	capacity, ok := lobbyCapacities[lobbyType]
	return capacity, ok
}

// Lobby is a group of clients that play together.
type Lobby struct {
	ID       messages.LobbyID
	Type     messages.LobbyType
	capacity int

	// m locks all following fields.
	m        sync.Mutex
	members  []*Client
	started  bool
	matchIDs []messages.MatchID
	// roundTimer is the armed delay before the next tournament round.
	roundTimer *time.Timer

	ended   chan struct{}
	endOnce sync.Once
}

func newLobby(lobbyType messages.LobbyType) (*Lobby, error) {
	capacity, ok := Capacity(lobbyType)
	if !ok {
		return nil, errors.NewInvalidDataError(fmt.Sprintf("unsupported lobby type %q", lobbyType),
			errors.Details{"lobby_type": lobbyType})
	}
	return &Lobby{
		ID:       messages.LobbyID(uuid.New().String()),
		Type:     lobbyType,
		capacity: capacity,
		members:  make([]*Client, 0, capacity),
		ended:    make(chan struct{}),
	}, nil
}

// Capacity returns the maximum amount of members.
func (l *Lobby) Capacity() int {
	return l.capacity
}

// add adds the given client. It fails with errors.KindLobbyFull if the lobby
// reached its capacity or already started.
func (l *Lobby) add(c *Client) error {
	l.m.Lock()
	defer l.m.Unlock()
	if l.started || len(l.members) >= l.capacity {
		return errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindLobbyFull,
			Message: "lobby full",
			Details: errors.Details{"lobby_id": l.ID, "capacity": l.capacity},
		}
	}
	for _, member := range l.members {
		if member.ID == c.ID {
			return errors.Error{
				Code:    errors.ErrBadRequest,
				Kind:    errors.KindDuplicate,
				Message: "client already in lobby",
				Details: errors.Details{"lobby_id": l.ID, "user_id": c.ID},
			}
		}
	}
	l.members = append(l.members, c)
	return nil
}

// remove removes the client with the given id if the lobby did not start yet.
func (l *Lobby) remove(userID messages.UserID) bool {
	l.m.Lock()
	defer l.m.Unlock()
	if l.started {
		return false
	}
	for i, member := range l.members {
		if member.ID == userID {
			l.members = append(l.members[:i], l.members[i+1:]...)
			return true
		}
	}
	return false
}

// accepts checks whether the policy accepts the given client together with all
// current members.
func (l *Lobby) accepts(c *Client, policy PairingPolicy) bool {
	l.m.Lock()
	defer l.m.Unlock()
	if l.started || len(l.members) >= l.capacity {
		return false
	}
	for _, member := range l.members {
		if !policy.Accept(member, c) {
			return false
		}
	}
	return true
}

// Size returns the amount of members.
func (l *Lobby) Size() int {
	l.m.Lock()
	defer l.m.Unlock()
	return len(l.members)
}

// Members returns the members in join order.
func (l *Lobby) Members() []*Client {
	l.m.Lock()
	defer l.m.Unlock()
	members := make([]*Client, len(l.members))
	copy(members, l.members)
	return members
}

// start marks the lobby as started if it is full. It reports whether it was
// started by this call.
func (l *Lobby) start() bool {
	l.m.Lock()
	defer l.m.Unlock()
	if l.started || len(l.members) < l.capacity {
		return false
	}
	l.started = true
	return true
}

func (l *Lobby) addMatch(matchID messages.MatchID) {
	l.m.Lock()
	defer l.m.Unlock()
	l.matchIDs = append(l.matchIDs, matchID)
}

// MatchIDs returns the ids of all matches that were requested for the lobby.
func (l *Lobby) MatchIDs() []messages.MatchID {
	l.m.Lock()
	defer l.m.Unlock()
	ids := make([]messages.MatchID, len(l.matchIDs))
	copy(ids, l.matchIDs)
	return ids
}

// broadcast sends the given message to all members.
func (l *Lobby) broadcast(messageType messages.MessageType, payload interface{}) {
	message := messages.MustEncode(messageType, payload)
	for _, member := range l.Members() {
		member.sendRaw(message)
	}
}

// queueJoined returns the lobby state for messages.MessageTypeQueueJoined.
func (l *Lobby) queueJoined() messages.MessageQueueJoined {
	return messages.MessageQueueJoined{
		LobbyID:   l.ID,
		LobbyType: l.Type,
		Size:      l.Size(),
		Capacity:  l.capacity,
	}
}

// waitRoundDelay waits the given delay. The timer is cancelled when the lobby
// ends or the context is done.
func (l *Lobby) waitRoundDelay(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	l.m.Lock()
	l.roundTimer = timer
	l.m.Unlock()
	defer func() {
		timer.Stop()
		l.m.Lock()
		l.roundTimer = nil
		l.m.Unlock()
	}()
	select {
	case <-ctx.Done():
		return errors.NewContextAbortedError("wait for next round")
	case <-l.ended:
		return errors.Error{
			Code:    errors.ErrAborted,
			Kind:    errors.KindNotRunning,
			Message: "lobby ended",
		}
	case <-timer.C:
		return nil
	}
}

// End ends the lobby. Only the first call has an effect and returns true.
func (l *Lobby) End() bool {
	ended := false
	l.endOnce.Do(func() {
		l.m.Lock()
		if l.roundTimer != nil {
			l.roundTimer.Stop()
		}
		l.m.Unlock()
		close(l.ended)
		ended = true
	})
	return ended
}

// Done is closed when the lobby ended.
func (l *Lobby) Done() <-chan struct{} {
	return l.ended
}

// Wait blocks until the lobby ended or the context is done.
func (l *Lobby) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return errors.NewContextAbortedError("wait for lobby end")
	case <-l.ended:
		return nil
	}
}

// seedByRank orders the given clients by rank with the highest first. Equal
// ranks keep their join order.
func seedByRank(clients []*Client) []*Client {
	seeded := make([]*Client, len(clients))
	copy(seeded, clients)
	sort.SliceStable(seeded, func(i, j int) bool {
		return seeded[i].Rank > seeded[j].Rank
	})
	return seeded
}
