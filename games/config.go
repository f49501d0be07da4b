package games

import (
	"encoding/json"
	"fmt"
	"github.com/lefinal/rally-server/errors"
	"os"
	"time"
)

// MapConfig describes the play-field.
type MapConfig struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	// Margin is the distance from the outer border that the ball and paddles
	// must not cross.
	Margin float64 `json:"margin"`
}

// PaddleConfig describes paddle dimensions and movement.
type PaddleConfig struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	// Speed in units per second.
	Speed float64 `json:"speed"`
	// Offset is the horizontal distance from the map border.
	Offset float64 `json:"offset"`
}

// BallConfig describes ball dimensions and movement.
type BallConfig struct {
	Size float64 `json:"size"`
	// Speed is the initial speed in units per second.
	Speed float64 `json:"speed"`
	// SpeedIncrement is added on each paddle bounce.
	SpeedIncrement float64 `json:"speed_increment"`
	MaxSpeed       float64 `json:"max_speed"`
	// BounceCooldownMS is the window in milliseconds in which a second bounce
	// on the same axis is ignored.
	BounceCooldownMS int `json:"bounce_cooldown_ms"`
}

// Config is the configuration for matches.
type Config struct {
	Map    MapConfig    `json:"map"`
	Paddle PaddleConfig `json:"paddle"`
	Ball   BallConfig   `json:"ball"`
	// MaxScore is the score that ends a match.
	MaxScore int `json:"max_score"`
	// PhysicsIntervalMS is the interval of physics ticks in milliseconds.
	PhysicsIntervalMS int `json:"physics_interval_ms"`
	// BroadcastIntervalMS is the interval of state broadcasts in milliseconds.
	BroadcastIntervalMS int `json:"broadcast_interval_ms"`
	// InactivityTimeoutMS is the time in milliseconds after which a match
	// without any connected player is removed.
	InactivityTimeoutMS int `json:"inactivity_timeout_ms"`
	// MaxDeltaMS clamps the delta of a single physics tick.
	MaxDeltaMS int `json:"max_delta_ms"`
}

// DefaultConfig returns the Config that is used if nothing else is
// configured.
func DefaultConfig() Config {
	return Config{
		Map: MapConfig{
			Width:  800,
			Height: 600,
			Margin: 10,
		},
		Paddle: PaddleConfig{
			Width:  10,
			Height: 80,
			Speed:  400,
			Offset: 20,
		},
		Ball: BallConfig{
			Size:             10,
			Speed:            300,
			SpeedIncrement:   25,
			MaxSpeed:         800,
			BounceCooldownMS: 100,
		},
		MaxScore:            11,
		PhysicsIntervalMS:   10,
		BroadcastIntervalMS: 33,
		InactivityTimeoutMS: int((3 * time.Minute).Milliseconds()),
		MaxDeltaMS:          50,
	}
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// PhysicsInterval returns PhysicsIntervalMS as time.Duration.
func (c Config) PhysicsInterval() time.Duration { return ms(c.PhysicsIntervalMS) }

// BroadcastInterval returns BroadcastIntervalMS as time.Duration.
func (c Config) BroadcastInterval() time.Duration { return ms(c.BroadcastIntervalMS) }

// InactivityTimeout returns InactivityTimeoutMS as time.Duration.
func (c Config) InactivityTimeout() time.Duration { return ms(c.InactivityTimeoutMS) }

// MaxDelta returns MaxDeltaMS as time.Duration.
func (c Config) MaxDelta() time.Duration { return ms(c.MaxDeltaMS) }

// BounceCooldown returns BallConfig.BounceCooldownMS as time.Duration.
func (c Config) BounceCooldown() time.Duration { return ms(c.Ball.BounceCooldownMS) }

// Validate assures that the Config describes a playable match.
func (c Config) Validate() error {
	problems := make([]string, 0)
	if c.Map.Width <= 0 || c.Map.Height <= 0 {
		problems = append(problems, "map dimensions must be positive")
	}
	if c.Map.Margin < 0 {
		problems = append(problems, "map margin must not be negative")
	}
	if c.Paddle.Height <= 0 || c.Paddle.Width <= 0 {
		problems = append(problems, "paddle dimensions must be positive")
	}
	if c.Paddle.Height > c.Map.Height-2*c.Map.Margin {
		problems = append(problems, "paddle does not fit into map")
	}
	if c.Ball.Size <= 0 {
		problems = append(problems, "ball size must be positive")
	}
	if c.Ball.Speed <= 0 || c.Ball.MaxSpeed < c.Ball.Speed {
		problems = append(problems, "ball speed must be positive and not exceed max speed")
	}
	if c.Ball.SpeedIncrement < 0 {
		problems = append(problems, "ball speed increment must not be negative")
	}
	if c.MaxScore <= 0 {
		problems = append(problems, "max score must be positive")
	}
	if c.PhysicsIntervalMS <= 0 || c.BroadcastIntervalMS <= 0 {
		problems = append(problems, "tick intervals must be positive")
	}
	if c.InactivityTimeoutMS <= 0 {
		problems = append(problems, "inactivity timeout must be positive")
	}
	if c.MaxDeltaMS <= 0 {
		problems = append(problems, "max delta must be positive")
	}
	if len(problems) > 0 {
		return errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindInvalidData,
			Message: fmt.Sprintf("invalid game config: %v", problems),
			Details: errors.Details{"problems": problems},
		}
	}
	return nil
}

// LoadConfig reads the Config from the JSON file with the given path. Missing
// fields keep their default values.
func LoadConfig(filename string) (Config, error) {
	c := DefaultConfig()
	raw, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, errors.NewInternalErrorFromErr(err, "read game config file", errors.Details{"filename": filename})
	}
	err = json.Unmarshal(raw, &c)
	if err != nil {
		return Config{}, errors.NewJSONError(err, "parse game config", true)
	}
	err = c.Validate()
	if err != nil {
		return Config{}, errors.Wrap(err, "validate game config", nil)
	}
	return c, nil
}
