package matchmaking

import (
	"github.com/lefinal/rally-server/messages"
	"sync"
)

// bracketGame is one game of a tournament round.
type bracketGame struct {
	players  [2]*Client
	matchID  messages.MatchID
	finished bool
	// winner is nil if the game was aborted.
	winner *Client
}

// Bracket is one round of a tournament.
type Bracket struct {
	lobbyID messages.LobbyID
	round   int
	// m locks games and their state.
	m     sync.Mutex
	games []*bracketGame
	byes  []*Client
}

// newBracket pairs the given players for the given round. Players are seeded
// by rank and the highest plays the lowest. With an odd amount of players, the
// highest seed advances without playing.
func newBracket(lobbyID messages.LobbyID, round int, players []*Client) *Bracket {
	b := &Bracket{
		lobbyID: lobbyID,
		round:   round,
	}
	seeded := seedByRank(players)
	if len(seeded)%2 == 1 {
		b.byes = append(b.byes, seeded[0])
		seeded = seeded[1:]
	}
	for i := 0; i < len(seeded)/2; i++ {
		b.games = append(b.games, &bracketGame{
			players: [2]*Client{seeded[i], seeded[len(seeded)-1-i]},
		})
	}
	return b
}

func (b *Bracket) setMatchID(game *bracketGame, matchID messages.MatchID) {
	b.m.Lock()
	defer b.m.Unlock()
	game.matchID = matchID
}

// finish sets the result of the given game. A nil winner eliminates both
// players.
func (b *Bracket) finish(game *bracketGame, winner *Client) {
	b.m.Lock()
	defer b.m.Unlock()
	game.finished = true
	game.winner = winner
}

// advancing returns the players of the next round ordered by their game.
func (b *Bracket) advancing() []*Client {
	b.m.Lock()
	defer b.m.Unlock()
	advancing := make([]*Client, 0, len(b.games)+len(b.byes))
	advancing = append(advancing, b.byes...)
	for _, game := range b.games {
		if game.winner != nil {
			advancing = append(advancing, game.winner)
		}
	}
	return advancing
}

// message returns the bracket state for messages.MessageTypeTournamentBracket.
func (b *Bracket) message() messages.MessageTournamentBracket {
	b.m.Lock()
	defer b.m.Unlock()
	m := messages.MessageTournamentBracket{
		LobbyID: b.lobbyID,
		Round:   b.round,
		Games:   make([]messages.BracketGame, 0, len(b.games)),
	}
	for _, game := range b.games {
		g := messages.BracketGame{
			Players:  []messages.PlayerIdentity{game.players[0].Identity(), game.players[1].Identity()},
			MatchID:  game.matchID,
			Finished: game.finished,
		}
		if game.winner != nil {
			g.Winner = game.winner.ID
		}
		m.Games = append(m.Games, g)
	}
	for _, bye := range b.byes {
		m.Byes = append(m.Byes, bye.Identity())
	}
	return m
}
