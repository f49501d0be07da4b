package games

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"math/rand"
	"sync"
	"testing"
	"time"
)

// testClock is a manually advanced clock.
type testClock struct {
	m sync.Mutex
	t time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2022, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time {
	c.m.Lock()
	defer c.m.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.m.Lock()
	defer c.m.Unlock()
	c.t = c.t.Add(d)
}

func testBall(toward Side) (*Ball, *testClock) {
	clock := newTestClock()
	return newBall(DefaultConfig(), rand.New(rand.NewSource(1)), clock.now, toward), clock
}

func TestBallServe(t *testing.T) {
	left, _ := testBall(SideLeft)
	assert.True(t, left.movingToward(SideLeft), "should serve toward left")
	right, _ := testBall(SideRight)
	assert.True(t, right.movingToward(SideRight), "should serve toward right")
	x, y := left.Position()
	c := DefaultConfig()
	assert.Equal(t, (c.Map.Width-c.Ball.Size)/2, x)
	assert.Equal(t, (c.Map.Height-c.Ball.Size)/2, y)
	assert.LessOrEqual(t, left.dirY, maxServeSlope)
	assert.GreaterOrEqual(t, left.dirY, -maxServeSlope)
}

func TestBallBounceDebounce(t *testing.T) {
	b, clock := testBall(SideLeft)
	require.True(t, b.Bounce(AxisX))
	assert.True(t, b.movingToward(SideRight))
	clock.advance(50 * time.Millisecond)
	assert.False(t, b.Bounce(AxisX), "second bounce within cooldown should be ignored")
	assert.True(t, b.movingToward(SideRight), "direction should be flipped only once")
	assert.True(t, b.Bounce(AxisY), "other axis should not be debounced")
	clock.advance(200 * time.Millisecond)
	assert.True(t, b.Bounce(AxisX))
	assert.True(t, b.movingToward(SideLeft))
}

func TestBallBounceSpeed(t *testing.T) {
	b, clock := testBall(SideLeft)
	c := DefaultConfig()
	last := b.Speed()
	for i := 0; i < 100; i++ {
		clock.advance(time.Second)
		b.Bounce(AxisX)
		assert.GreaterOrEqual(t, b.Speed(), last, "speed should never decrease")
		assert.LessOrEqual(t, b.Speed(), c.Ball.MaxSpeed, "speed should never exceed max")
		last = b.Speed()
	}
	assert.Equal(t, c.Ball.MaxSpeed, b.Speed())
	clock.advance(time.Second)
	b.Bounce(AxisY)
	assert.Equal(t, c.Ball.MaxSpeed, b.Speed(), "wall bounce should not change speed")
}

func TestBallTickClampsDelta(t *testing.T) {
	b, _ := testBall(SideLeft)
	x0, _ := b.Position()
	b.dirY = 0
	assert.Equal(t, SideNone, b.Tick(10*time.Second))
	x1, _ := b.Position()
	assert.InDelta(t, b.Speed()*DefaultConfig().MaxDelta().Seconds(), x0-x1, 0.0001)
}

func TestBallTickWalls(t *testing.T) {
	b, _ := testBall(SideLeft)
	c := DefaultConfig()
	b.y = c.Map.Margin + 1
	b.dirY = -1
	b.Tick(20 * time.Millisecond)
	_, y := b.Position()
	assert.Equal(t, c.Map.Margin, y)
	assert.Greater(t, b.dirY, 0.0, "should reflect from top wall")
}

func TestBallTickScores(t *testing.T) {
	c := DefaultConfig()
	b, _ := testBall(SideLeft)
	b.x = c.Map.Margin + 1
	assert.Equal(t, SideRight, b.Tick(20*time.Millisecond), "reaching left margin should score for right")
	assert.Equal(t, SideNone, b.Tick(20*time.Millisecond), "ball should stop after score")

	b, _ = testBall(SideRight)
	b.x = c.Map.Width - c.Map.Margin - c.Ball.Size - 1
	assert.Equal(t, SideLeft, b.Tick(20*time.Millisecond))
}

func TestPaddle(t *testing.T) {
	c := DefaultConfig()
	p := newPaddle(c, SideLeft)
	x, y0 := p.Position()
	assert.Equal(t, c.Paddle.Offset, x)
	p.UpdateDirection(true, false)
	p.Tick(0.1)
	_, y := p.Position()
	assert.Equal(t, y0, y, "stopped paddle should not move")

	p.Start()
	p.Tick(0.1)
	_, y = p.Position()
	assert.InDelta(t, y0-c.Paddle.Speed*0.1, y, 0.0001)

	p.UpdateDirection(true, true)
	p.Tick(0.1)
	_, y2 := p.Position()
	assert.Equal(t, y, y2, "neutral direction should not move")

	p.UpdateDirection(true, false)
	for i := 0; i < 100; i++ {
		p.Tick(0.1)
	}
	_, y = p.Position()
	assert.Equal(t, c.Map.Margin, y, "should be clamped at top")

	p.UpdateDirection(false, true)
	for i := 0; i < 100; i++ {
		p.Tick(0.1)
	}
	_, y = p.Position()
	assert.Equal(t, c.Map.Height-c.Map.Margin-c.Paddle.Height, y, "should be clamped at bottom")

	p.Stop()
	assert.False(t, p.Running())
	right := newPaddle(c, SideRight)
	x, _ = right.Position()
	assert.Equal(t, c.Map.Width-c.Paddle.Offset-c.Paddle.Width, x)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	c := DefaultConfig()
	c.MaxScore = 0
	c.Paddle.Height = 1000
	assert.Error(t, c.Validate())
}
