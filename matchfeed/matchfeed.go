// Package matchfeed publishes match and lobby lifecycle events to the MQTT
// event feed and applies removal requests received from it.
package matchfeed

import (
	"context"
	"github.com/lefinal/rally-server/errors"
	"github.com/lefinal/rally-server/event"
	"github.com/lefinal/rally-server/messages"
	"github.com/lefinal/rally-server/portal"
	"go.uber.org/zap"
)

// Topics of the feed.
const (
	TopicMatchCreated      portal.Topic = portal.BaseTopic + "/matches/created"
	TopicMatchEnded        portal.Topic = portal.BaseTopic + "/matches/ended"
	TopicMatchTimedOut     portal.Topic = portal.BaseTopic + "/matches/timed-out"
	TopicMatchRemoved      portal.Topic = portal.BaseTopic + "/matches/removed"
	TopicLobbyEnded        portal.Topic = portal.BaseTopic + "/lobbies/ended"
	TopicRemoveMatch       portal.Topic = portal.BaseTopic + "/matches/remove"
	TopicRemoveMatchFailed portal.Topic = portal.BaseTopic + "/matches/remove/failed"
)

// queueSize is the amount of events that are buffered for publishing.
const queueSize = 256

// Remover removes matches. It is implemented by registry.Registry.
type Remover interface {
	RemoveMatch(id messages.MatchID, force bool, isTimeout bool) error
}

// RemoverFunc is an adapter to allow the use of ordinary functions as Remover.
type RemoverFunc func(id messages.MatchID, force bool, isTimeout bool) error

// RemoveMatch calls f.
func (f RemoverFunc) RemoveMatch(id messages.MatchID, force bool, isTimeout bool) error {
	return f(id, force, isTimeout)
}

type publication struct {
	topic   portal.Topic
	payload interface{}
}

// Feed implements registry.Notifier and matchmaking.Notifier. Events are
// queued and published by Run so that notifying never blocks.
type Feed struct {
	logger *zap.Logger
	portal portal.Portal
	// remover applies removal requests. If nil, no requests are accepted.
	remover Remover
	queue   chan publication
}

// NewFeed creates a new Feed. The remover is optional.
func NewFeed(logger *zap.Logger, p portal.Portal, remover Remover) *Feed {
	return &Feed{
		logger:  logger,
		portal:  p,
		remover: remover,
		queue:   make(chan publication, queueSize),
	}
}

func (f *Feed) enqueue(topic portal.Topic, payload interface{}) {
	select {
	case f.queue <- publication{topic: topic, payload: payload}:
	default:
		f.logger.Warn("dropping event because of full queue", zap.Any("topic", topic))
	}
}

// MatchCreated publishes to TopicMatchCreated.
func (f *Feed) MatchCreated(matchID messages.MatchID, players map[int]messages.PlayerIdentity) {
	f.enqueue(TopicMatchCreated, event.MatchCreatedPayload{
		MatchID: matchID,
		Players: players,
	})
}

// MatchEnded publishes to TopicMatchEnded.
func (f *Feed) MatchEnded(stats messages.MatchStats) {
	f.enqueue(TopicMatchEnded, event.MatchEndedPayload{MatchStats: stats})
}

// MatchRemoved publishes to TopicMatchTimedOut or TopicMatchRemoved.
func (f *Feed) MatchRemoved(matchID messages.MatchID, isTimeout bool) {
	topic := TopicMatchRemoved
	if isTimeout {
		topic = TopicMatchTimedOut
	}
	f.enqueue(topic, event.MatchRemovedPayload{
		MatchID: matchID,
		Timeout: isTimeout,
	})
}

// LobbyEnded publishes to TopicLobbyEnded.
func (f *Feed) LobbyEnded(lobbyID messages.LobbyID, lobbyType messages.LobbyType, matchIDs []messages.MatchID) {
	f.enqueue(TopicLobbyEnded, event.LobbyEndedPayload{
		LobbyID:   lobbyID,
		LobbyType: lobbyType,
		MatchIDs:  matchIDs,
	})
}

// Run publishes queued events and handles removal requests until the given
// context is done.
func (f *Feed) Run(ctx context.Context) error {
	var removeRequests <-chan event.Event[event.RemoveMatchRequestPayload]
	if f.remover != nil {
		newsletter := portal.Subscribe[event.RemoveMatchRequestPayload](ctx, f.portal, TopicRemoveMatch)
		defer newsletter.Unsubscribe()
		removeRequests = newsletter.Receive
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-f.queue:
			f.portal.Publish(ctx, p.topic, p.payload)
		case req, more := <-removeRequests:
			if !more {
				removeRequests = nil
				continue
			}
			f.handleRemoveRequest(ctx, req.Payload)
		}
	}
}

func (f *Feed) handleRemoveRequest(ctx context.Context, req event.RemoveMatchRequestPayload) {
	err := f.remover.RemoveMatch(req.MatchID, req.Force, false)
	if err != nil {
		err = errors.Wrap(err, "remove match by request", errors.Details{"match_id": req.MatchID})
		if errors.BlameUser(err) {
			f.logger.Debug("remove request failed", zap.String("err", errors.Prettify(err)))
		} else {
			errors.Log(f.logger, err)
		}
		f.portal.Publish(ctx, TopicRemoveMatchFailed, event.ErrorEventPayloadFromError(err))
		return
	}
	f.logger.Info("removed match by request", zap.String("match_id", string(req.MatchID)), zap.Bool("force", req.Force))
}
