package games

import (
	"math"
	"math/rand"
	"time"
)

// Axis is the axis a Ball bounces on.
type Axis string

const (
	// AxisX is a bounce that reverses horizontal movement (paddle hit).
	AxisX Axis = "x"
	// AxisY is a bounce that reverses vertical movement (wall hit).
	AxisY Axis = "y"
)

// maxServeSlope limits the vertical component of a serve.
const maxServeSlope = 0.75

// Ball is the simulated puck of a single rally.
type Ball struct {
	config Config
	now    func() time.Time
	// x and y is the top-left corner.
	x, y float64
	// dirX is either -1 or 1. dirY is in [-1, 1].
	dirX, dirY float64
	speed      float64
	// lastBounceAxis and lastBounceAt are used for debouncing.
	lastBounceAxis Axis
	lastBounceAt   time.Time
	// scored is set when the ball reached a horizontal margin.
	scored bool
}

// newBall creates a Ball in the center of the map. If toward is SideNone, the
// serve direction is fully random.
func newBall(config Config, rng *rand.Rand, now func() time.Time, toward Side) *Ball {
	b := &Ball{
		config: config,
		now:    now,
		x:      (config.Map.Width - config.Ball.Size) / 2,
		y:      (config.Map.Height - config.Ball.Size) / 2,
		speed:  config.Ball.Speed,
	}
	switch toward {
	case SideLeft:
		b.dirX = -1
	case SideRight:
		b.dirX = 1
	default:
		if rng.Intn(2) == 0 {
			b.dirX = -1
		} else {
			b.dirX = 1
		}
	}
	b.dirY = (rng.Float64()*2 - 1) * maxServeSlope
	return b
}

// Position returns the top-left corner of the ball.
func (b *Ball) Position() (float64, float64) {
	return b.x, b.y
}

// Speed returns the current speed in units per second.
func (b *Ball) Speed() float64 {
	return b.speed
}

// HitBox returns the area the ball occupies.
func (b *Ball) HitBox() Rect {
	return Rect{X: b.x, Y: b.y, W: b.config.Ball.Size, H: b.config.Ball.Size}
}

// movingToward checks the horizontal direction of the ball.
func (b *Ball) movingToward(side Side) bool {
	if side == SideLeft {
		return b.dirX < 0
	}
	return b.dirX > 0
}

// Bounce reverses the direction on the given axis. A bounce on the same axis
// as the last one within the cooldown is ignored. Bounces on AxisX increase
// the speed up to the maximum. It reports whether the bounce was applied.
func (b *Ball) Bounce(axis Axis) bool {
	now := b.now()
	if axis == b.lastBounceAxis && now.Sub(b.lastBounceAt) < b.config.BounceCooldown() {
		return false
	}
	b.lastBounceAxis = axis
	b.lastBounceAt = now
	switch axis {
	case AxisX:
		b.dirX = -b.dirX
		b.speed = math.Min(b.speed+b.config.Ball.SpeedIncrement, b.config.Ball.MaxSpeed)
	case AxisY:
		b.dirY = -b.dirY
	}
	return true
}

// Tick moves the ball. If it reached a horizontal margin, the side that scored
// is returned and the ball does not move anymore.
func (b *Ball) Tick(delta time.Duration) Side {
	if b.scored {
		return SideNone
	}
	if delta > b.config.MaxDelta() {
		delta = b.config.MaxDelta()
	}
	if delta < 0 {
		delta = 0
	}
	d := delta.Seconds()
	b.x += b.dirX * b.speed * d
	b.y += b.dirY * b.speed * d
	// Walls.
	top := b.config.Map.Margin
	bottom := b.config.Map.Height - b.config.Map.Margin - b.config.Ball.Size
	if b.y <= top {
		b.y = top
		if b.dirY < 0 {
			b.Bounce(AxisY)
		}
	} else if b.y >= bottom {
		b.y = bottom
		if b.dirY > 0 {
			b.Bounce(AxisY)
		}
	}
	// Goals.
	if b.x <= b.config.Map.Margin {
		b.scored = true
		return SideRight
	}
	if b.x+b.config.Ball.Size >= b.config.Map.Width-b.config.Map.Margin {
		b.scored = true
		return SideLeft
	}
	return SideNone
}
