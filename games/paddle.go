package games

// Paddle is the simulated actuator of a Player.
type Paddle struct {
	config  Config
	side    Side
	x, y    float64
	up      bool
	down    bool
	running bool
}

// newPaddle creates a vertically centered Paddle for the given side.
func newPaddle(config Config, side Side) *Paddle {
	p := &Paddle{
		config: config,
		side:   side,
		y:      (config.Map.Height - config.Paddle.Height) / 2,
	}
	if side == SideLeft {
		p.x = config.Paddle.Offset
	} else {
		p.x = config.Map.Width - config.Paddle.Offset - config.Paddle.Width
	}
	return p
}

// Start lets the paddle move on ticks.
func (p *Paddle) Start() {
	p.running = true
}

// Stop stops the paddle in place and resets its direction.
func (p *Paddle) Stop() {
	p.running = false
	p.up = false
	p.down = false
}

// Running reports whether the paddle moves on ticks.
func (p *Paddle) Running() bool {
	return p.running
}

// UpdateDirection sets the movement intent. Setting both or none is neutral.
func (p *Paddle) UpdateDirection(up, down bool) {
	p.up = up
	p.down = down
}

// Tick moves the paddle according to its direction and keeps it inside the
// margin.
func (p *Paddle) Tick(deltaSeconds float64) {
	if !p.running || p.up == p.down {
		return
	}
	dy := p.config.Paddle.Speed * deltaSeconds
	if p.up {
		p.y -= dy
	} else {
		p.y += dy
	}
	minY := p.config.Map.Margin
	maxY := p.config.Map.Height - p.config.Map.Margin - p.config.Paddle.Height
	if p.y < minY {
		p.y = minY
	}
	if p.y > maxY {
		p.y = maxY
	}
}

// Position returns the top-left corner of the paddle.
func (p *Paddle) Position() (float64, float64) {
	return p.x, p.y
}

// HitBox returns the area the paddle occupies.
func (p *Paddle) HitBox() Rect {
	return Rect{X: p.x, Y: p.y, W: p.config.Paddle.Width, H: p.config.Paddle.Height}
}
