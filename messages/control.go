package messages

// MessageConnectLobby is used with MessageTypeConnectLobby.
type MessageConnectLobby struct {
	// ID is the configured lobby id.
	ID string `json:"id"`
	// Pass is the configured lobby password.
	Pass string `json:"pass"`
}

// PlayerIdentity is the expected identity of a player in a match slot.
type PlayerIdentity struct {
	ID   UserID `json:"id"`
	Name string `json:"name"`
}

// MessageNewMatch is used with MessageTypeNewMatch.
type MessageNewMatch struct {
	// Players holds the expected identities by slot (1 and 2).
	Players map[int]PlayerIdentity `json:"players"`
	// MaxPlayers must be 2.
	MaxPlayers int `json:"maxPlayers"`
}

// MessageMatchCreated is used with MessageTypeMatchCreated.
type MessageMatchCreated struct {
	MatchID MatchID `json:"matchId"`
}

// MessageRemoveMatch is used with MessageTypeRemoveMatch and
// MessageTypeTimeoutRemove.
type MessageRemoveMatch struct {
	MatchID MatchID `json:"matchId"`
	// Force removes the match even if it is still in use. Only evaluated for
	// requests from the control channel.
	Force bool `json:"force,omitempty"`
}

// PlayerStats are the final stats of one player in MatchStats.
type PlayerStats struct {
	ID     UserID `json:"id"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
	Winner bool   `json:"winner"`
}

// MatchTime holds timing information of a finished match.
type MatchTime struct {
	// Duration in milliseconds.
	Duration int64 `json:"duration"`
	// StartedAt as unix timestamp in milliseconds.
	StartedAt int64 `json:"startedAt"`
}

// MatchStats are the final stats of a match.
type MatchStats struct {
	MatchID MatchID `json:"matchId"`
	// Players holds the stats by slot.
	Players map[int]PlayerStats `json:"players"`
	Time    MatchTime           `json:"time"`
}

// Winner returns the stats of the winning player. If no player won, false is
// returned.
func (s MatchStats) Winner() (int, PlayerStats, bool) {
	for slot, p := range s.Players {
		if p.Winner {
			return slot, p, true
		}
	}
	return 0, PlayerStats{}, false
}

// MessageEndGame is used with MessageTypeEndGame.
type MessageEndGame struct {
	MatchStats
}
