package games

import (
	"encoding/json"
	"github.com/gobuffalo/nulls"
	"github.com/gorilla/websocket"
	"github.com/lefinal/rally-server/errors"
	"github.com/lefinal/rally-server/messages"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"math/rand"
	"sync"
	"testing"
	"time"
)

// connMock records sent messages and close calls.
type connMock struct {
	m         sync.Mutex
	sent      [][]byte
	closed    bool
	closeCode int
}

func (c *connMock) Send(message []byte) error {
	c.m.Lock()
	defer c.m.Unlock()
	if c.closed {
		return errors.NewNotConnectedError("closed", nil)
	}
	c.sent = append(c.sent, message)
	return nil
}

func (c *connMock) Close(code int, _ string) {
	c.m.Lock()
	defer c.m.Unlock()
	c.closed = true
	c.closeCode = code
}

// sentTypes returns the message types of all sent messages.
func (c *connMock) sentTypes() []messages.MessageType {
	c.m.Lock()
	defer c.m.Unlock()
	types := make([]messages.MessageType, 0, len(c.sent))
	for _, raw := range c.sent {
		envelope, err := messages.Parse(raw)
		if err != nil {
			panic(err)
		}
		types = append(types, envelope.Type)
	}
	return types
}

func (c *connMock) countType(t messages.MessageType) int {
	n := 0
	for _, sentType := range c.sentTypes() {
		if sentType == t {
			n++
		}
	}
	return n
}

type listenerMock struct {
	mock.Mock
}

func (l *listenerMock) MatchEnded(stats messages.MatchStats) {
	l.Called(stats)
}

func (l *listenerMock) MatchTimedOut(matchID messages.MatchID) {
	l.Called(matchID)
}

var testPlayers = map[int]messages.PlayerIdentity{
	1: {ID: "alice-id", Name: "Alice"},
	2: {ID: "bob-id", Name: "Bob"},
}

type MatchSuite struct {
	suite.Suite
	config   Config
	clock    *testClock
	listener *listenerMock
	match    *Match
	conn1    *connMock
	conn2    *connMock
}

func (suite *MatchSuite) SetupTest() {
	suite.config = DefaultConfig()
	suite.clock = newTestClock()
	suite.listener = &listenerMock{}
	suite.conn1 = &connMock{}
	suite.conn2 = &connMock{}
	suite.match = newMatch(zap.NewNop(), "m", testPlayers, suite.config, suite.listener,
		rand.New(rand.NewSource(1)), suite.clock.now, false)
}

func (suite *MatchSuite) TearDownTest() {
	suite.match.m.Lock()
	suite.match.stopInactivityTimerLocked()
	suite.match.m.Unlock()
}

func (suite *MatchSuite) connect(conn Conn, slot int) error {
	_, err := suite.match.ConnectPlayer(conn, messages.MessageConnectPlayer{
		MatchID:  "m",
		ID:       testPlayers[slot].ID,
		Name:     testPlayers[slot].Name,
		PlayerID: nulls.NewInt(slot),
	})
	return err
}

func (suite *MatchSuite) connectBoth() {
	suite.Require().NoError(suite.connect(suite.conn1, 1))
	suite.Require().NoError(suite.connect(suite.conn2, 2))
}

// score lets the ball reach the goal of the opposite side of the given one.
func (suite *MatchSuite) score(side Side) {
	suite.match.m.Lock()
	b := suite.match.ball
	suite.Require().NotNil(b)
	b.dirY = 0
	if side == SideLeft {
		b.dirX = 1
		b.x = suite.config.Map.Width - suite.config.Map.Margin - suite.config.Ball.Size - 0.5
	} else {
		b.dirX = -1
		b.x = suite.config.Map.Margin + 0.5
	}
	suite.match.m.Unlock()
	suite.match.step(10 * time.Millisecond)
}

func (suite *MatchSuite) TestStartsWhenBothConnected() {
	suite.Require().NoError(suite.connect(suite.conn1, 1))
	suite.Equal(MatchPhaseWaitingForPlayers, suite.match.Phase())
	suite.Require().NoError(suite.connect(suite.conn2, 2))
	suite.Equal(MatchPhaseActive, suite.match.Phase())
	suite.NotNil(suite.match.ball, "ball should be spawned")
	suite.Equal(1, suite.conn1.countType(messages.MessageTypePlayerConnected))
	suite.Equal(1, suite.conn2.countType(messages.MessageTypePlayerConnected))
}

func (suite *MatchSuite) TestConnectWithoutSlot() {
	slot, err := suite.match.ConnectPlayer(suite.conn2, messages.MessageConnectPlayer{
		MatchID: "m",
		ID:      "bob-id",
		Name:    "Bob",
	})
	suite.Require().NoError(err)
	suite.Equal(2, slot)
}

func (suite *MatchSuite) TestThirdConnectRejected() {
	suite.connectBoth()
	_, err := suite.match.ConnectPlayer(&connMock{}, messages.MessageConnectPlayer{
		MatchID: "m",
		ID:      "mallory-id",
		Name:    "Mallory",
	})
	suite.True(errors.Is(err, errors.KindIdentityMismatch), "fresh identity should not be found")
	_, err = suite.match.ConnectPlayer(&connMock{}, messages.MessageConnectPlayer{
		MatchID:  "m",
		ID:       "mallory-id",
		Name:     "Mallory",
		PlayerID: nulls.NewInt(1),
	})
	suite.True(errors.Is(err, errors.KindDuplicate), "bound slot should be duplicate")
	suite.Equal(2, suite.match.ConnectedPlayers())
}

func (suite *MatchSuite) TestIdentityMismatch() {
	_, err := suite.match.ConnectPlayer(suite.conn1, messages.MessageConnectPlayer{
		MatchID:  "m",
		ID:       "alice-id",
		Name:     "Eve",
		PlayerID: nulls.NewInt(1),
	})
	suite.True(errors.Is(err, errors.KindIdentityMismatch))
	_, err = suite.match.ConnectPlayer(suite.conn1, messages.MessageConnectPlayer{
		MatchID:  "m",
		ID:       "alice-id",
		Name:     "Alice",
		PlayerID: nulls.NewInt(3),
	})
	suite.True(errors.Is(err, errors.KindInvalidData))
}

func (suite *MatchSuite) TestPlayToMaxScore() {
	suite.connectBoth()
	suite.listener.On("MatchEnded", mock.Anything).Once()
	suite.score(SideRight)
	for i := 0; i < suite.config.MaxScore; i++ {
		suite.score(SideLeft)
	}
	suite.Equal(MatchPhaseEnded, suite.match.Phase())
	suite.Nil(suite.match.ball, "ball should be gone after end")
	suite.listener.AssertExpectations(suite.T())
	stats := suite.listener.Calls[0].Arguments.Get(0).(messages.MatchStats)
	slot, winner, ok := stats.Winner()
	suite.Require().True(ok)
	suite.Equal(1, slot)
	suite.Equal(suite.config.MaxScore, winner.Score)
	suite.Equal(1, stats.Players[2].Score)
	suite.Less(stats.Players[2].Score, suite.config.MaxScore)
	suite.Equal(1, suite.conn1.countType(messages.MessageTypeEndGame))
	suite.True(suite.conn1.closed)
	suite.Equal(websocket.CloseNormalClosure, suite.conn2.closeCode)
	// Closing afterwards must not report again.
	suite.match.Close(false)
	suite.Equal(MatchPhaseDestroyed, suite.match.Phase())
	suite.listener.AssertNumberOfCalls(suite.T(), "MatchEnded", 1)
}

func (suite *MatchSuite) TestScoresMonotonic() {
	suite.connectBoth()
	last := 0
	for i := 0; i < 5; i++ {
		suite.score(SideRight)
		suite.match.m.Lock()
		current := suite.match.players[1].score
		suite.match.m.Unlock()
		suite.GreaterOrEqual(current, last)
		last = current
	}
	suite.Equal(5, last)
	suite.Equal(MatchPhaseActive, suite.match.Phase())
	suite.match.m.Lock()
	suite.True(suite.match.ball.movingToward(SideLeft), "should serve toward the side scored against")
	suite.match.m.Unlock()
}

func (suite *MatchSuite) TestPaddleCollision() {
	suite.connectBoth()
	suite.match.m.Lock()
	paddleBox := suite.match.players[0].paddle.HitBox()
	b := suite.match.ball
	b.dirX = -1
	b.dirY = 0
	b.x = paddleBox.X + paddleBox.W - 1
	b.y = paddleBox.Y + paddleBox.H/2
	speed := b.speed
	suite.match.m.Unlock()
	suite.match.step(time.Millisecond)
	suite.match.m.Lock()
	defer suite.match.m.Unlock()
	suite.True(b.movingToward(SideRight), "should bounce off paddle")
	suite.Greater(b.speed, speed)
	suite.GreaterOrEqual(b.x, paddleBox.X+paddleBox.W, "should be pushed out of paddle")
}

func (suite *MatchSuite) TestBounceHintValidated() {
	suite.connectBoth()
	suite.False(suite.match.HandleBounceHint(AxisX), "ball in center should not bounce")
	suite.match.m.Lock()
	paddleBox := suite.match.players[1].paddle.HitBox()
	b := suite.match.ball
	b.dirX = 1
	b.x = paddleBox.X - 2
	b.y = paddleBox.Y
	suite.match.m.Unlock()
	suite.True(suite.match.HandleBounceHint(AxisX))
	suite.False(suite.match.HandleBounceHint(AxisX), "ball moves away after bounce")
}

func (suite *MatchSuite) TestInputMovesPaddle() {
	suite.connectBoth()
	suite.match.m.Lock()
	_, y0 := suite.match.players[0].paddle.Position()
	suite.match.m.Unlock()
	suite.Require().NoError(suite.match.HandleInput(1, false, true))
	suite.match.step(10 * time.Millisecond)
	suite.match.m.Lock()
	_, y1 := suite.match.players[0].paddle.Position()
	suite.match.m.Unlock()
	suite.Greater(y1, y0)
	suite.Error(suite.match.HandleInput(5, true, false))
}

func (suite *MatchSuite) TestPing() {
	suite.connectBoth()
	suite.Require().NoError(suite.match.Ping(2))
	suite.Equal(1, suite.conn2.countType(messages.MessageTypePong))
	suite.Equal(0, suite.conn1.countType(messages.MessageTypePong))
}

func (suite *MatchSuite) TestBroadcastOnlyOnChange() {
	suite.connectBoth()
	suite.match.broadcast()
	suite.match.broadcast()
	suite.Equal(1, suite.conn1.countType(messages.MessageTypeGameState))
	suite.match.step(10 * time.Millisecond)
	suite.match.broadcast()
	suite.Equal(2, suite.conn1.countType(messages.MessageTypeGameState))
	suite.conn1.m.Lock()
	raw := suite.conn1.sent[len(suite.conn1.sent)-1]
	suite.conn1.m.Unlock()
	var state messages.MessageGameState
	suite.Require().NoError(json.Unmarshal(raw, &state))
	suite.NotNil(state.Ball)
	suite.True(state.Players[1].Connected)
}

func (suite *MatchSuite) TestForcedRemovalWhileWaiting() {
	suite.Require().NoError(suite.connect(suite.conn1, 1))
	suite.False(suite.match.SafeToRemove(), "connected player expects notification")
	suite.match.Close(false)
	suite.Equal(MatchPhaseDestroyed, suite.match.Phase())
	suite.True(suite.conn1.closed)
	suite.listener.AssertNotCalled(suite.T(), "MatchEnded", mock.Anything)
	suite.match.Close(false)
}

func (suite *MatchSuite) TestForcedRemovalWhileActive() {
	suite.connectBoth()
	suite.listener.On("MatchEnded", mock.Anything).Once()
	suite.match.Close(false)
	suite.listener.AssertExpectations(suite.T())
	stats := suite.listener.Calls[0].Arguments.Get(0).(messages.MatchStats)
	_, _, ok := stats.Winner()
	suite.False(ok, "forced removal has no winner")
}

func (suite *MatchSuite) TestTimeoutCloseSkipsStats() {
	suite.connectBoth()
	suite.match.Close(true)
	suite.Equal(MatchPhaseDestroyed, suite.match.Phase())
	suite.listener.AssertNotCalled(suite.T(), "MatchEnded", mock.Anything)
	suite.Equal(0, suite.conn1.countType(messages.MessageTypeEndGame))
}

func (suite *MatchSuite) TestSafeToRemove() {
	suite.True(suite.match.SafeToRemove(), "nobody connected yet")
	suite.connectBoth()
	suite.False(suite.match.SafeToRemove())
}

func (suite *MatchSuite) TestStaleDisconnectIgnored() {
	suite.connectBoth()
	suite.match.DisconnectPlayer(1, &connMock{})
	suite.Equal(2, suite.match.ConnectedPlayers())
	suite.match.DisconnectPlayer(1, suite.conn1)
	suite.Equal(1, suite.match.ConnectedPlayers())
}

func TestMatch(t *testing.T) {
	suite.Run(t, new(MatchSuite))
}

// MatchTimeoutSuite tests inactivity timers with real time.
type MatchTimeoutSuite struct {
	suite.Suite
	config   Config
	listener *listenerMock
	match    *Match
}

func (suite *MatchTimeoutSuite) SetupTest() {
	suite.config = DefaultConfig()
	suite.config.InactivityTimeoutMS = 30
	suite.listener = &listenerMock{}
	suite.match = newMatch(zap.NewNop(), "m", testPlayers, suite.config, suite.listener,
		rand.New(rand.NewSource(1)), time.Now, false)
}

func (suite *MatchTimeoutSuite) connect(conn Conn, slot int) {
	_, err := suite.match.ConnectPlayer(conn, messages.MessageConnectPlayer{
		ID:       testPlayers[slot].ID,
		Name:     testPlayers[slot].Name,
		PlayerID: nulls.NewInt(slot),
	})
	suite.Require().NoError(err)
}

func (suite *MatchTimeoutSuite) TestArmedAtConstruction() {
	timedOut := make(chan struct{})
	suite.listener.On("MatchTimedOut", messages.MatchID("m")).Run(func(_ mock.Arguments) {
		close(timedOut)
	}).Once()
	select {
	case <-timedOut:
	case <-time.After(time.Second):
		suite.Fail("timeout", "inactivity timer did not fire")
	}
	suite.listener.AssertExpectations(suite.T())
}

func (suite *MatchTimeoutSuite) TestCancelledByConnect() {
	suite.connect(&connMock{}, 1)
	time.Sleep(100 * time.Millisecond)
	suite.listener.AssertNotCalled(suite.T(), "MatchTimedOut", mock.Anything)
}

func (suite *MatchTimeoutSuite) TestRearmedWhenAllDisconnect() {
	conn1 := &connMock{}
	conn2 := &connMock{}
	suite.connect(conn1, 1)
	suite.connect(conn2, 2)
	suite.Equal(MatchPhaseActive, suite.match.Phase())
	suite.listener.On("MatchTimedOut", messages.MatchID("m")).Run(func(_ mock.Arguments) {
		suite.match.Close(true)
	}).Once()
	suite.match.DisconnectPlayer(1, conn1)
	time.Sleep(60 * time.Millisecond)
	suite.listener.AssertNotCalled(suite.T(), "MatchTimedOut", mock.Anything)
	suite.match.DisconnectPlayer(2, conn2)
	suite.Eventually(func() bool {
		return suite.match.Phase() == MatchPhaseDestroyed
	}, time.Second, 5*time.Millisecond)
	suite.listener.AssertNotCalled(suite.T(), "MatchEnded", mock.Anything)
	suite.listener.AssertNumberOfCalls(suite.T(), "MatchTimedOut", 1)
}

func TestMatchTimeout(t *testing.T) {
	suite.Run(t, new(MatchTimeoutSuite))
}

func TestNewMatchID(t *testing.T) {
	a := NewMatchID("alice-id", "bob-id")
	if a != NewMatchID("alice-id", "bob-id") {
		t.Error("match id should be deterministic")
	}
	if a == NewMatchID("bob-id", "alice-id") {
		t.Error("match id should depend on slot order")
	}
	if NewMatchID("a", "bc") == NewMatchID("ab", "c") {
		t.Error("match id should separate player ids")
	}
}
