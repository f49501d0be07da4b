package gamehost

import (
	"context"
	"encoding/json"
	"github.com/gobuffalo/nulls"
	"github.com/lefinal/rally-server/client"
	"github.com/lefinal/rally-server/games"
	"github.com/lefinal/rally-server/messages"
	"github.com/lefinal/rally-server/registry"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"sync"
	"testing"
	"time"
)

const waitTimeout = time.Second

type HostSuite struct {
	suite.Suite
	ctx      context.Context
	cancel   context.CancelFunc
	registry *registry.Registry
	host     *Host
	wg       sync.WaitGroup
}

func (suite *HostSuite) SetupTest() {
	suite.ctx, suite.cancel = context.WithCancel(context.Background())
	suite.registry = registry.NewRegistry(zap.NewNop(), registry.Config{
		ID:       "lobby",
		Password: "secret",
		Game:     games.DefaultConfig(),
	}, nil)
	suite.host = NewHost(zap.NewNop(), suite.registry)
}

func (suite *HostSuite) TearDownTest() {
	suite.cancel()
	suite.wg.Wait()
	_ = suite.registry.RemoveMatch(games.NewMatchID("alice-id", "bob-id"), true, true)
}

func (suite *HostSuite) accept(id string) *client.Client {
	c := client.NewClient(id, "127.0.0.1", 16)
	suite.wg.Add(1)
	go func() {
		defer suite.wg.Done()
		suite.host.AcceptClient(suite.ctx, c)
	}()
	return c
}

func (suite *HostSuite) send(c *client.Client, messageType messages.MessageType, payload interface{}) {
	c.Receive <- messages.MustEncode(messageType, payload)
}

// expect waits for the next message of the given type. Game state messages are
// skipped.
func (suite *HostSuite) expect(c *client.Client, messageType messages.MessageType) []byte {
	timeout := time.After(waitTimeout)
	for {
		select {
		case <-timeout:
			suite.FailNow("timeout", "waiting for %s", messageType)
			return nil
		case raw := <-c.Outbound():
			envelope, err := messages.Parse(raw)
			suite.Require().NoError(err)
			if envelope.Type == messages.MessageTypeGameState && messageType != messages.MessageTypeGameState {
				continue
			}
			suite.Require().Equal(messageType, envelope.Type, "unexpected message %s", string(raw))
			return raw
		}
	}
}

func (suite *HostSuite) expectError(c *client.Client, code messages.ErrorCode) {
	raw := suite.expect(c, messages.MessageTypeError)
	var m messages.MessageError
	suite.Require().NoError(json.Unmarshal(raw, &m))
	suite.Equal(code, m.Error)
}

func (suite *HostSuite) expectClosed(c *client.Client, code int) {
	select {
	case <-time.After(waitTimeout):
		suite.FailNow("client should be closed")
	case <-c.Closed():
	}
	suite.Equal(code, c.RequestedCloseFrame().Code)
}

func (suite *HostSuite) expectOpen(c *client.Client) {
	select {
	case <-c.Closed():
		suite.Fail("client should not be closed")
	default:
	}
}

func (suite *HostSuite) connectControl() *client.Client {
	control := suite.accept("control")
	suite.send(control, messages.MessageTypeConnectLobby, messages.MessageConnectLobby{ID: "lobby", Pass: "secret"})
	suite.expect(control, messages.MessageTypeLobbyConnected)
	return control
}

func (suite *HostSuite) createMatch(control *client.Client) messages.MatchID {
	suite.send(control, messages.MessageTypeNewMatch, messages.MessageNewMatch{
		Players: map[int]messages.PlayerIdentity{
			1: {ID: "alice-id", Name: "Alice"},
			2: {ID: "bob-id", Name: "Bob"},
		},
		MaxPlayers: 2,
	})
	raw := suite.expect(control, messages.MessageTypeMatchCreated)
	var m messages.MessageMatchCreated
	suite.Require().NoError(json.Unmarshal(raw, &m))
	return m.MatchID
}

func (suite *HostSuite) TestConnectLobbyWrongPassword() {
	c := suite.accept("c")
	suite.send(c, messages.MessageTypeConnectLobby, messages.MessageConnectLobby{ID: "lobby", Pass: "wrong"})
	suite.expectError(c, messages.ErrorCodePermissionDenied)
	suite.expectClosed(c, 1008)
}

func (suite *HostSuite) TestSecondControlClosed() {
	control := suite.connectControl()
	second := suite.accept("second")
	suite.send(second, messages.MessageTypeConnectLobby, messages.MessageConnectLobby{ID: "lobby", Pass: "secret"})
	suite.expectError(second, messages.ErrorCodePermissionDenied)
	suite.expectClosed(second, 1008)
	suite.expectOpen(control)
}

func (suite *HostSuite) TestControlErrorKeepsConnection() {
	control := suite.connectControl()
	control.Receive <- []byte(`{"type":`)
	suite.expectError(control, messages.ErrorCodeInvalidData)
	suite.send(control, messages.MessageTypeNewMatch, messages.MessageNewMatch{MaxPlayers: 2})
	suite.expectError(control, messages.ErrorCodePlayerMissing)
	suite.expectOpen(control)
}

func (suite *HostSuite) TestNewMatchWithoutControl() {
	c := suite.accept("c")
	suite.send(c, messages.MessageTypeNewMatch, messages.MessageNewMatch{MaxPlayers: 2})
	suite.expectError(c, messages.ErrorCodePermissionDenied)
	suite.expectClosed(c, 1008)
}

func (suite *HostSuite) TestConnectUnknownMatch() {
	c := suite.accept("c")
	suite.send(c, messages.MessageTypeConnectPlayer, messages.MessageConnectPlayer{MatchID: "unknown", ID: "alice-id"})
	suite.expectError(c, messages.ErrorCodeInvalidMatchID)
	suite.expectClosed(c, 1008)
}

func (suite *HostSuite) TestInputWithoutBinding() {
	c := suite.accept("c")
	suite.send(c, messages.MessageTypeInput, messages.MessageInput{Up: true})
	suite.expectError(c, messages.ErrorCodeNotConnected)
	suite.expectClosed(c, 1001)
}

func (suite *HostSuite) TestPlay() {
	control := suite.connectControl()
	matchID := suite.createMatch(control)
	alice := suite.accept("alice")
	suite.send(alice, messages.MessageTypeConnectPlayer, messages.MessageConnectPlayer{
		MatchID:  matchID,
		ID:       "alice-id",
		Name:     "Alice",
		PlayerID: nulls.NewInt(1),
	})
	suite.expect(alice, messages.MessageTypePlayerConnected)
	bob := suite.accept("bob")
	suite.send(bob, messages.MessageTypeConnectPlayer, messages.MessageConnectPlayer{
		MatchID: matchID,
		ID:      "bob-id",
		Name:    "Bob",
	})
	raw := suite.expect(bob, messages.MessageTypePlayerConnected)
	var connected messages.MessagePlayerConnected
	suite.Require().NoError(json.Unmarshal(raw, &connected))
	suite.Equal(2, connected.PlayerID, "slot should be looked up by id")
	match, ok := suite.registry.Match(matchID)
	suite.Require().True(ok)
	suite.Eventually(func() bool {
		return match.Phase() == games.MatchPhaseActive
	}, waitTimeout, 5*time.Millisecond)
	suite.expect(alice, messages.MessageTypeGameState)
	suite.send(alice, messages.MessageTypeInput, messages.MessageInput{MatchID: matchID, Up: true})
	suite.send(alice, messages.MessageTypePing, messages.MessagePing{MatchID: matchID})
	suite.expect(alice, messages.MessageTypePong)
	// Disconnect.
	close(bob.Receive)
	suite.Eventually(func() bool {
		return match.ConnectedPlayers() == 1
	}, waitTimeout, 5*time.Millisecond)
}

func (suite *HostSuite) TestSecondConnectOnSameSession() {
	control := suite.connectControl()
	matchID := suite.createMatch(control)
	alice := suite.accept("alice")
	req := messages.MessageConnectPlayer{MatchID: matchID, ID: "alice-id", Name: "Alice"}
	suite.send(alice, messages.MessageTypeConnectPlayer, req)
	suite.expect(alice, messages.MessageTypePlayerConnected)
	suite.send(alice, messages.MessageTypeConnectPlayer, req)
	suite.expectError(alice, messages.ErrorCodeDuplicate)
	suite.expectClosed(alice, 1008)
}

func (suite *HostSuite) TestSlotExclusive() {
	control := suite.connectControl()
	matchID := suite.createMatch(control)
	req := messages.MessageConnectPlayer{MatchID: matchID, ID: "alice-id", Name: "Alice", PlayerID: nulls.NewInt(1)}
	first := suite.accept("first")
	suite.send(first, messages.MessageTypeConnectPlayer, req)
	suite.expect(first, messages.MessageTypePlayerConnected)
	second := suite.accept("second")
	suite.send(second, messages.MessageTypeConnectPlayer, req)
	suite.expectError(second, messages.ErrorCodeDuplicate)
	suite.expectOpen(first)
}

func (suite *HostSuite) TestRemoveMatchRequiresControl() {
	control := suite.connectControl()
	matchID := suite.createMatch(control)
	c := suite.accept("c")
	suite.send(c, messages.MessageTypeRemoveMatch, messages.MessageRemoveMatch{MatchID: matchID})
	suite.expectError(c, messages.ErrorCodePermissionDenied)
	suite.send(control, messages.MessageTypeRemoveMatch, messages.MessageRemoveMatch{MatchID: matchID})
	suite.expect(control, messages.MessageTypeRemoveMatch)
	_, ok := suite.registry.Match(matchID)
	suite.False(ok)
}

func (suite *HostSuite) TestControlDisconnectReleases() {
	control := suite.connectControl()
	close(control.Receive)
	suite.Eventually(func() bool {
		return !suite.registry.IsConnected(nil)
	}, waitTimeout, 5*time.Millisecond)
}

func (suite *HostSuite) TestClosedControlRequeuesUnsent() {
	control := suite.connectControl()
	queued := messages.MustEncode(messages.MessageTypeMatchCreated, messages.MessageMatchCreated{MatchID: "queued"})
	suite.Require().NoError(suite.registry.Send(queued))
	// The message was handed to the connection but never written.
	control.Close(1001, "gone")
	suite.Eventually(func() bool {
		return !suite.registry.IsConnected(nil)
	}, waitTimeout, 5*time.Millisecond)
	suite.Equal(1, suite.registry.Stats().QueuedMessages)
	next := suite.accept("control-2")
	suite.send(next, messages.MessageTypeConnectLobby, messages.MessageConnectLobby{ID: "lobby", Pass: "secret"})
	suite.expect(next, messages.MessageTypeLobbyConnected)
	suite.Equal(queued, suite.expect(next, messages.MessageTypeMatchCreated))
}

func (suite *HostSuite) TestNewMatchErrorCarriesMatchID() {
	control := suite.connectControl()
	matchID := suite.createMatch(control)
	suite.send(control, messages.MessageTypeNewMatch, messages.MessageNewMatch{
		Players: map[int]messages.PlayerIdentity{
			1: {ID: "alice-id", Name: "Alice"},
			2: {ID: "bob-id", Name: "Bob"},
		},
		MaxPlayers: 2,
	})
	raw := suite.expect(control, messages.MessageTypeError)
	var m messages.MessageError
	suite.Require().NoError(json.Unmarshal(raw, &m))
	suite.Equal(messages.ErrorCodeDuplicate, m.Error)
	suite.Equal(matchID, m.MatchID)
	suite.expectOpen(control)
}

func TestHost(t *testing.T) {
	suite.Run(t, new(HostSuite))
}
