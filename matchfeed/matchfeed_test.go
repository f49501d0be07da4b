package matchfeed

import (
	"context"
	"github.com/lefinal/rally-server/errors"
	"github.com/lefinal/rally-server/event"
	"github.com/lefinal/rally-server/messages"
	"github.com/lefinal/rally-server/portal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"testing"
	"time"
)

const timeout = 2 * time.Second

// removerMock mocks Remover.
type removerMock struct {
	mock.Mock
}

func (m *removerMock) RemoveMatch(id messages.MatchID, force bool, isTimeout bool) error {
	return m.Called(id, force, isTimeout).Error(0)
}

// FeedSuite tests Feed.
type FeedSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	portal    *portal.Stub
	published chan portal.Topic
}

func (suite *FeedSuite) SetupTest() {
	suite.ctx, suite.cancel = context.WithTimeout(context.Background(), timeout)
	suite.portal = &portal.Stub{}
	suite.published = make(chan portal.Topic, 16)
}

func (suite *FeedSuite) TearDownTest() {
	suite.cancel()
}

func (suite *FeedSuite) expectPublish(topic portal.Topic, payload interface{}) {
	suite.portal.On("Publish", mock.Anything, topic, payload).Run(func(_ mock.Arguments) {
		suite.published <- topic
	}).Once()
}

func (suite *FeedSuite) awaitPublished(topic portal.Topic) {
	select {
	case <-suite.ctx.Done():
		suite.FailNow("timeout while waiting for publish", "topic: %s", topic)
	case got := <-suite.published:
		suite.Equal(topic, got)
	}
}

func (suite *FeedSuite) TestPublishesEvents() {
	players := map[int]messages.PlayerIdentity{1: {ID: "a"}, 2: {ID: "b"}}
	stats := messages.MatchStats{MatchID: "m"}
	suite.expectPublish(TopicMatchCreated, event.MatchCreatedPayload{MatchID: "m", Players: players})
	suite.expectPublish(TopicMatchEnded, event.MatchEndedPayload{MatchStats: stats})
	suite.expectPublish(TopicMatchTimedOut, event.MatchRemovedPayload{MatchID: "m", Timeout: true})
	suite.expectPublish(TopicMatchRemoved, event.MatchRemovedPayload{MatchID: "n"})
	suite.expectPublish(TopicLobbyEnded, event.LobbyEndedPayload{
		LobbyID:   "l",
		LobbyType: messages.LobbyTypeRanked,
		MatchIDs:  []messages.MatchID{"m"},
	})
	defer suite.portal.AssertExpectations(suite.T())
	feed := NewFeed(zap.NewNop(), suite.portal, nil)
	feed.MatchCreated("m", players)
	feed.MatchEnded(stats)
	feed.MatchRemoved("m", true)
	feed.MatchRemoved("n", false)
	feed.LobbyEnded("l", messages.LobbyTypeRanked, []messages.MatchID{"m"})
	go func() { _ = feed.Run(suite.ctx) }()
	for _, topic := range []portal.Topic{TopicMatchCreated, TopicMatchEnded, TopicMatchTimedOut, TopicMatchRemoved, TopicLobbyEnded} {
		suite.awaitPublished(topic)
	}
}

func (suite *FeedSuite) TestNotifyDoesNotBlock() {
	feed := NewFeed(zap.NewNop(), suite.portal, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < queueSize*2; i++ {
			feed.MatchRemoved("m", false)
		}
	}()
	select {
	case <-suite.ctx.Done():
		suite.Fail("notifying should not block")
	case <-done:
	}
	suite.Len(feed.queue, queueSize)
}

func (suite *FeedSuite) TestRemoveRequests() {
	requests := make(chan event.Event[any])
	suite.portal.On("Subscribe", mock.Anything, TopicRemoveMatch).
		Return(portal.ForwardingNewsletter(suite.ctx, requests))
	remover := &removerMock{}
	removed := make(chan messages.MatchID, 2)
	remover.On("RemoveMatch", messages.MatchID("m"), true, false).Return(nil).Run(func(_ mock.Arguments) {
		removed <- "m"
	}).Once()
	remover.On("RemoveMatch", messages.MatchID("unknown"), false, false).
		Return(errors.NewResourceNotFoundError("unknown match", nil)).Once()
	suite.portal.On("Publish", mock.Anything, TopicRemoveMatchFailed, mock.MatchedBy(func(p event.ErrorEventPayload) bool {
		return p.Code == string(errors.ErrNotFound)
	})).Run(func(_ mock.Arguments) {
		suite.published <- TopicRemoveMatchFailed
	}).Once()
	defer suite.portal.AssertExpectations(suite.T())
	defer remover.AssertExpectations(suite.T())
	feed := NewFeed(zap.NewNop(), suite.portal, remover)
	go func() { _ = feed.Run(suite.ctx) }()
	requests <- event.Event[any]{Payload: event.RemoveMatchRequestPayload{MatchID: "m", Force: true}}
	select {
	case <-suite.ctx.Done():
		suite.FailNow("timeout while waiting for removal")
	case <-removed:
	}
	requests <- event.Event[any]{Payload: event.RemoveMatchRequestPayload{MatchID: "unknown"}}
	suite.awaitPublished(TopicRemoveMatchFailed)
}

func TestFeed(t *testing.T) {
	suite.Run(t, new(FeedSuite))
}
