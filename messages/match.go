package messages

import "github.com/gobuffalo/nulls"

// MessageConnectPlayer is used with MessageTypeConnectPlayer for binding a
// socket to a match slot.
type MessageConnectPlayer struct {
	MatchID MatchID `json:"matchId"`
	ID      UserID  `json:"id"`
	Name    string  `json:"name"`
	// PlayerID is the optional slot to bind to. If not set, the slot is looked
	// up by id.
	PlayerID nulls.Int `json:"playerId"`
}

// MessagePlayerConnected is used with MessageTypePlayerConnected.
type MessagePlayerConnected struct {
	ID       UserID  `json:"id"`
	MatchID  MatchID `json:"matchId"`
	PlayerID int     `json:"playerId"`
}

// MessageInput is used with MessageTypeInput.
type MessageInput struct {
	ID      UserID  `json:"id"`
	MatchID MatchID `json:"matchId"`
	Up      bool    `json:"up"`
	Down    bool    `json:"down"`
}

// MessagePing is used with MessageTypePing and MessageTypePong.
type MessagePing struct {
	ID      UserID  `json:"id"`
	MatchID MatchID `json:"matchId"`
}

// MessageBounce is used with MessageTypeBounce.
type MessageBounce struct {
	// Axis is either "x" or "y".
	Axis string `json:"axis"`
}

// Position is a point on the map.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PlayerState is the state of one player in MessageGameState.
type PlayerState struct {
	Position
	Score     int  `json:"score"`
	Connected bool `json:"connected"`
}

// MessageGameState is used with MessageTypeGameState.
type MessageGameState struct {
	MatchID MatchID             `json:"matchId"`
	Players map[int]PlayerState `json:"players"`
	// Ball is omitted between rallies.
	Ball *Position `json:"ball,omitempty"`
}
