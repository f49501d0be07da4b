package games

import "github.com/lefinal/rally-server/messages"

// MatchPhase is the phase a Match is currently in.
type MatchPhase string

const (
	// MatchPhaseWaitingForPlayers is used until both players connected.
	MatchPhaseWaitingForPlayers MatchPhase = "waiting-for-players"
	// MatchPhaseActive is used while the simulation is running.
	MatchPhaseActive MatchPhase = "active"
	// MatchPhaseEnded is used when the match has a winner or was stopped while
	// active.
	MatchPhaseEnded MatchPhase = "ended"
	// MatchPhaseDestroyed is the terminal phase after all resources have been
	// released.
	MatchPhaseDestroyed MatchPhase = "destroyed"
)

// Side is a side of the play-field.
type Side string

const (
	// SideNone is used when no side is referred to, for example when no player
	// scored.
	SideNone  Side = ""
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	switch s {
	case SideLeft:
		return SideRight
	case SideRight:
		return SideLeft
	}
	return SideNone
}

// Slots of a match. Slot 1 plays on the left, slot 2 on the right.
const (
	SlotLeft  = 1
	SlotRight = 2
)

// sideForSlot returns the side the player in the given slot plays on.
func sideForSlot(slot int) Side {
	if slot == SlotLeft {
		return SideLeft
	}
	return SideRight
}

// Rect is an axis-aligned rectangle with its origin at the top-left corner.
type Rect struct {
	X, Y, W, H float64
}

// Intersects checks whether both rectangles overlap.
func (r Rect) Intersects(o Rect) bool {
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Listener is notified when a Match finished.
type Listener interface {
	// MatchEnded is called exactly once with the final stats of a match that
	// ended or was removed while active.
	MatchEnded(stats messages.MatchStats)
	// MatchTimedOut is called when the inactivity timeout of a match fired.
	MatchTimedOut(matchID messages.MatchID)
}
