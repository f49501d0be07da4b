package hostlink

import (
	"context"
	"github.com/lefinal/rally-server/errors"
	"github.com/lefinal/rally-server/gamehost"
	"github.com/lefinal/rally-server/games"
	"github.com/lefinal/rally-server/gatekeeping"
	"github.com/lefinal/rally-server/messages"
	"github.com/lefinal/rally-server/registry"
	"github.com/lefinal/rally-server/ws"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const waitTimeout = 2 * time.Second

var players = map[int]messages.PlayerIdentity{
	1: {ID: "alice-id", Name: "Alice"},
	2: {ID: "bob-id", Name: "Bob"},
}

// LinkSuite runs a Link against a complete game host.
type LinkSuite struct {
	suite.Suite
	ctx      context.Context
	cancel   context.CancelFunc
	registry *registry.Registry
	server   *httptest.Server
	link     *Link
	done     chan struct{}
}

func (suite *LinkSuite) startHost(game games.Config) {
	suite.ctx, suite.cancel = context.WithCancel(context.Background())
	suite.registry = registry.NewRegistry(zap.NewNop(), registry.Config{
		ID:            "lobby",
		Password:      "secret",
		RetryInterval: 10 * time.Millisecond,
		Game:          game,
	}, nil)
	hub := ws.NewHub(zap.NewNop(), gatekeeping.NewGuard(zap.NewNop(), gatekeeping.DefaultMaxConnectionsPerIP),
		gamehost.NewHost(zap.NewNop(), suite.registry))
	go func() { _ = hub.Run(suite.ctx) }()
	go func() { _ = suite.registry.Run(suite.ctx) }()
	suite.server = httptest.NewServer(ws.HandleWS(suite.ctx, hub, nil))
}

func (suite *LinkSuite) startLink(pass string) {
	suite.link = NewLink(zap.NewNop(), Config{
		URL:               "ws" + strings.TrimPrefix(suite.server.URL, "http"),
		LobbyID:           "lobby",
		LobbyPass:         pass,
		ReconnectInterval: 20 * time.Millisecond,
		RequestTimeout:    waitTimeout,
	}, NewWebsocketDialer())
	suite.done = make(chan struct{})
	go func() {
		defer close(suite.done)
		_ = suite.link.Run(suite.ctx)
	}()
}

func (suite *LinkSuite) TearDownTest() {
	suite.cancel()
	if suite.done != nil {
		<-suite.done
	}
	suite.server.Close()
}

func (suite *LinkSuite) awaitConnected() {
	suite.Require().Eventually(suite.link.Connected, waitTimeout, 5*time.Millisecond)
}

func (suite *LinkSuite) awaitOutcome(match *Match) Outcome {
	select {
	case <-time.After(waitTimeout):
		suite.FailNow("timeout while waiting for outcome")
		return Outcome{}
	case outcome := <-match.Outcome:
		return outcome
	}
}

func (suite *LinkSuite) TestCreateAndRemove() {
	suite.startHost(games.DefaultConfig())
	suite.startLink("secret")
	suite.awaitConnected()
	match, err := suite.link.CreateMatch(suite.ctx, players)
	suite.Require().NoError(err)
	suite.Equal(games.NewMatchID("alice-id", "bob-id"), match.ID)
	_, ok := suite.registry.Match(match.ID)
	suite.True(ok, "match should exist on host")
	suite.Require().NoError(suite.link.RemoveMatch(match.ID, true))
	outcome := suite.awaitOutcome(match)
	suite.True(outcome.Removed)
	suite.Nil(outcome.Stats)
}

func (suite *LinkSuite) TestDuplicateRequest() {
	suite.startHost(games.DefaultConfig())
	suite.startLink("secret")
	suite.awaitConnected()
	_, err := suite.link.CreateMatch(suite.ctx, players)
	suite.Require().NoError(err)
	_, err = suite.link.CreateMatch(suite.ctx, players)
	suite.True(errors.Is(err, errors.KindDuplicate))
}

func (suite *LinkSuite) TestHostRejectsExisting() {
	suite.startHost(games.DefaultConfig())
	suite.startLink("secret")
	suite.awaitConnected()
	match, err := suite.link.CreateMatch(suite.ctx, players)
	suite.Require().NoError(err)
	// Forget locally so that the host reports the duplicate.
	suite.link.forget(match.ID)
	_, err = suite.link.CreateMatch(suite.ctx, players)
	suite.True(errors.Is(err, errors.KindDuplicate), "should fail with host error: %v", err)
}

func (suite *LinkSuite) TestTimeout() {
	game := games.DefaultConfig()
	game.InactivityTimeoutMS = 30
	suite.startHost(game)
	suite.startLink("secret")
	suite.awaitConnected()
	match, err := suite.link.CreateMatch(suite.ctx, players)
	suite.Require().NoError(err)
	outcome := suite.awaitOutcome(match)
	suite.True(outcome.TimedOut)
}

func (suite *LinkSuite) TestWrongPassword() {
	suite.startHost(games.DefaultConfig())
	suite.startLink("wrong")
	time.Sleep(100 * time.Millisecond)
	suite.False(suite.link.Connected())
	_, err := suite.link.CreateMatch(suite.ctx, players)
	suite.True(errors.Is(err, errors.KindNoGameServerAvailable))
}

func (suite *LinkSuite) TestReconnect() {
	suite.startHost(games.DefaultConfig())
	suite.startLink("secret")
	suite.awaitConnected()
	suite.link.m.Lock()
	conn := suite.link.conn
	suite.link.m.Unlock()
	suite.Require().NotNil(conn)
	_ = conn.Close()
	suite.Eventually(func() bool {
		_, err := suite.link.CreateMatch(suite.ctx, players)
		return err == nil
	}, waitTimeout, 20*time.Millisecond, "should create match after reconnect")
	suite.True(suite.registry.IsConnected(nil))
}

func TestLink(t *testing.T) {
	suite.Run(t, new(LinkSuite))
}

func TestCreateMatchWithoutConnection(t *testing.T) {
	link := NewLink(zap.NewNop(), Config{URL: "ws://127.0.0.1:1"}, NewWebsocketDialer())
	_, err := link.CreateMatch(context.Background(), players)
	if !errors.Is(err, errors.KindNoGameServerAvailable) {
		t.Fatalf("expected no game server available but got %v", err)
	}
}
