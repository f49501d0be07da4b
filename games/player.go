package games

import (
	"fmt"
	"github.com/lefinal/rally-server/errors"
	"github.com/lefinal/rally-server/messages"
)

// Conn is a connection a Player sends messages to.
type Conn interface {
	// Send sends the given message without blocking.
	Send(message []byte) error
	// Close closes the connection with the given websocket close code.
	Close(code int, reason string)
}

// Player is one participant of a Match and occupies one slot.
type Player struct {
	slot     int
	side     Side
	identity messages.PlayerIdentity
	score    int
	conn     Conn
	paddle   *Paddle
}

func newPlayer(config Config, slot int, identity messages.PlayerIdentity) *Player {
	side := sideForSlot(slot)
	return &Player{
		slot:     slot,
		side:     side,
		identity: identity,
		paddle:   newPaddle(config, side),
	}
}

// Connect binds the given connection to the player. It fails with
// errors.KindDuplicate if a connection is already bound and with
// errors.KindIdentityMismatch if the id or name do not match the expected
// identity.
func (p *Player) Connect(conn Conn, id messages.UserID, name string) error {
	if p.conn != nil {
		return errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindDuplicate,
			Message: fmt.Sprintf("slot %d already connected", p.slot),
			Details: errors.Details{"slot": p.slot},
		}
	}
	if id != p.identity.ID || name != p.identity.Name {
		return errors.Error{
			Code:    errors.ErrNotFound,
			Kind:    errors.KindIdentityMismatch,
			Message: fmt.Sprintf("identity does not match slot %d", p.slot),
			Details: errors.Details{"slot": p.slot, "id": id},
		}
	}
	p.conn = conn
	p.paddle.Start()
	return nil
}

// Disconnect releases the connection and stops the paddle. The connection is
// not closed.
func (p *Player) Disconnect() {
	p.conn = nil
	p.paddle.Stop()
}

// Connected reports whether a connection is bound.
func (p *Player) Connected() bool {
	return p.conn != nil
}

// Send sends the given message to the bound connection.
func (p *Player) Send(message []byte) error {
	if p.conn == nil {
		return errors.NewNotConnectedError("player not connected", errors.Details{"slot": p.slot})
	}
	err := p.conn.Send(message)
	if err != nil {
		return errors.Wrap(err, "send", errors.Details{"slot": p.slot})
	}
	return nil
}

// UpdateDirection updates the paddle direction. The last call wins.
func (p *Player) UpdateDirection(up, down bool) {
	p.paddle.UpdateDirection(up, down)
}

// Score returns the current score.
func (p *Player) Score() int {
	return p.score
}

// Identity returns the expected identity of the player.
func (p *Player) Identity() messages.PlayerIdentity {
	return p.identity
}
