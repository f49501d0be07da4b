package messages

// LobbyType is the type of matchmaking lobby.
type LobbyType string

const (
	// LobbyTypeRanked is a lobby for 2 players playing one match.
	LobbyTypeRanked LobbyType = "RANKED"
	// LobbyTypeTournament is a lobby for 4 players playing a bracket.
	LobbyTypeTournament LobbyType = "TOURNAMENT"
)

// MessageQueueJoin is used with MessageTypeQueueJoin.
type MessageQueueJoin struct {
	ID        UserID    `json:"id"`
	Name      string    `json:"name"`
	LobbyType LobbyType `json:"lobbyType"`
}

// MessageQueueJoined is used with MessageTypeQueueJoined.
type MessageQueueJoined struct {
	LobbyID   LobbyID   `json:"lobbyId"`
	LobbyType LobbyType `json:"lobbyType"`
	Size      int       `json:"size"`
	Capacity  int       `json:"capacity"`
}

// MessageQueueLeft is used with MessageTypeQueueLeft.
type MessageQueueLeft struct {
	LobbyID LobbyID `json:"lobbyId"`
}

// MessageMatchFound is used with MessageTypeMatchFound.
type MessageMatchFound struct {
	MatchID  MatchID        `json:"matchId"`
	LobbyID  LobbyID        `json:"lobbyId"`
	Slot     int            `json:"slot"`
	Opponent PlayerIdentity `json:"opponent"`
}

// MatchResult is either a win or a loss.
type MatchResult string

const (
	MatchResultWin  MatchResult = "WIN"
	MatchResultLoss MatchResult = "LOSS"
)

// MessageMatchResult is used with MessageTypeMatchResult.
type MessageMatchResult struct {
	MatchID MatchID     `json:"matchId"`
	Result  MatchResult `json:"result"`
	// Points is the applied rank point delta.
	Points   int        `json:"points"`
	Rank     int64      `json:"rank"`
	Tier     string     `json:"tier"`
	Level    int        `json:"level"`
	XP       int64      `json:"xp"`
	XPGained int        `json:"xpGained"`
	Stats    MatchStats `json:"stats"`
}

// MessageMatchAborted is used with MessageTypeMatchAborted.
type MessageMatchAborted struct {
	MatchID MatchID `json:"matchId"`
	Reason  string  `json:"reason"`
}

// BracketGame is one game in MessageTournamentBracket.
type BracketGame struct {
	Players  []PlayerIdentity `json:"players"`
	MatchID  MatchID          `json:"matchId,omitempty"`
	Finished bool             `json:"finished"`
	Winner   UserID           `json:"winner,omitempty"`
}

// MessageTournamentBracket is used with MessageTypeTournamentBracket.
type MessageTournamentBracket struct {
	LobbyID LobbyID       `json:"lobbyId"`
	Round   int           `json:"round"`
	Games   []BracketGame `json:"games"`
	// Byes holds players that advance without playing this round.
	Byes []PlayerIdentity `json:"byes,omitempty"`
}

// MessageTournamentResult is used with MessageTypeTournamentResult.
type MessageTournamentResult struct {
	LobbyID LobbyID `json:"lobbyId"`
	// Champion is nil if all games of the final round were aborted.
	Champion *PlayerIdentity `json:"champion"`
}
