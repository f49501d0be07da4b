// Package presence mirrors the queue and game state of players into an
// external store.
package presence

import (
	"context"
	"fmt"
	"github.com/lefinal/rally-server/errors"
	"github.com/lefinal/rally-server/messages"
	"github.com/redis/go-redis/v9"
	"strconv"
	"time"
)

// State of a player.
type State string

const (
	StateQueued  State = "queued"
	StatePlaying State = "playing"
)

// DefaultTTL is the default expiry of presence entries so that stale entries
// of crashed instances vanish.
const DefaultTTL = 2 * time.Hour

// Store is the presence store the matchmaker works with.
type Store interface {
	SetQueued(ctx context.Context, userID messages.UserID, lobbyType messages.LobbyType) error
	SetPlaying(ctx context.Context, userID messages.UserID, matchID messages.MatchID) error
	Clear(ctx context.Context, userID messages.UserID) error
	CountQueued(ctx context.Context) (int64, error)
}

// RedisStore is a Store backed by Redis. Each player has a hash with its state
// and every state a set of its players.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore creates a new RedisStore with the given key prefix.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Connect parses the given Redis url and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindInvalidData,
			Err:     err,
			Message: "parse redis url",
		}
	}
	client := redis.NewClient(options)
	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()
		return nil, errors.FromErr("ping redis", errors.ErrUnavailable, err, errors.Details{"addr": options.Addr})
	}
	return client, nil
}

func (s *RedisStore) playerKey(userID messages.UserID) string {
	return fmt.Sprintf("%s:player:%s", s.prefix, userID)
}

func (s *RedisStore) stateKey(state State) string {
	return fmt.Sprintf("%s:state:%s", s.prefix, state)
}

func (s *RedisStore) set(ctx context.Context, userID messages.UserID, state State, fields map[string]interface{}) error {
	key := s.playerKey(userID)
	fields["state"] = string(state)
	fields["since"] = strconv.FormatInt(s.now().UnixMilli(), 10)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, s.ttl)
		for _, other := range []State{StateQueued, StatePlaying} {
			if other != state {
				pipe.SRem(ctx, s.stateKey(other), string(userID))
			}
		}
		pipe.SAdd(ctx, s.stateKey(state), string(userID))
		return nil
	})
	if err != nil {
		return errors.FromErr("set presence", errors.ErrUnavailable, err, errors.Details{"user_id": userID, "state": state})
	}
	return nil
}

// SetQueued marks the player as waiting in a lobby of the given type.
func (s *RedisStore) SetQueued(ctx context.Context, userID messages.UserID, lobbyType messages.LobbyType) error {
	return s.set(ctx, userID, StateQueued, map[string]interface{}{"lobby_type": string(lobbyType)})
}

// SetPlaying marks the player as playing the given match.
func (s *RedisStore) SetPlaying(ctx context.Context, userID messages.UserID, matchID messages.MatchID) error {
	return s.set(ctx, userID, StatePlaying, map[string]interface{}{"match_id": string(matchID)})
}

// Clear removes all presence information of the player.
func (s *RedisStore) Clear(ctx context.Context, userID messages.UserID) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.playerKey(userID))
		pipe.SRem(ctx, s.stateKey(StateQueued), string(userID))
		pipe.SRem(ctx, s.stateKey(StatePlaying), string(userID))
		return nil
	})
	if err != nil {
		return errors.FromErr("clear presence", errors.ErrUnavailable, err, errors.Details{"user_id": userID})
	}
	return nil
}

// CountQueued returns the amount of queued players.
func (s *RedisStore) CountQueued(ctx context.Context) (int64, error) {
	n, err := s.client.SCard(ctx, s.stateKey(StateQueued)).Result()
	if err != nil {
		return 0, errors.FromErr("count queued", errors.ErrUnavailable, err, nil)
	}
	return n, nil
}

// Entry is the stored presence of a player.
type Entry struct {
	State     State
	LobbyType messages.LobbyType
	MatchID   messages.MatchID
	Since     time.Time
}

// Get returns the presence entry of the given player. If none is set, an error
// with errors.KindResourceNotFound is returned.
func (s *RedisStore) Get(ctx context.Context, userID messages.UserID) (Entry, error) {
	fields, err := s.client.HGetAll(ctx, s.playerKey(userID)).Result()
	if err != nil {
		return Entry{}, errors.FromErr("get presence", errors.ErrUnavailable, err, errors.Details{"user_id": userID})
	}
	if len(fields) == 0 {
		return Entry{}, errors.NewResourceNotFoundError("no presence", errors.Details{"user_id": userID})
	}
	since, _ := strconv.ParseInt(fields["since"], 10, 64)
	return Entry{
		State:     State(fields["state"]),
		LobbyType: messages.LobbyType(fields["lobby_type"]),
		MatchID:   messages.MatchID(fields["match_id"]),
		Since:     time.UnixMilli(since),
	}, nil
}

// NopStore is used when no presence store is configured.
type NopStore struct{}

func (NopStore) SetQueued(context.Context, messages.UserID, messages.LobbyType) error { return nil }

func (NopStore) SetPlaying(context.Context, messages.UserID, messages.MatchID) error { return nil }

func (NopStore) Clear(context.Context, messages.UserID) error { return nil }

func (NopStore) CountQueued(context.Context) (int64, error) { return 0, nil }
