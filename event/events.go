// Package event holds the payloads that are published to and received from the
// MQTT event feed.
package event

import (
	"github.com/eclipse/paho.golang/paho"
	"github.com/lefinal/rally-server/errors"
	"github.com/lefinal/rally-server/messages"
)

// Event is a received MQTT message with its parsed payload.
type Event[T any] struct {
	Publish *paho.Publish
	Payload T
}

// MatchCreatedPayload is published when the game host created a match.
type MatchCreatedPayload struct {
	MatchID messages.MatchID                `json:"matchId"`
	Players map[int]messages.PlayerIdentity `json:"players"`
}

// MatchEndedPayload is published when a match ended with a result.
type MatchEndedPayload struct {
	messages.MatchStats
}

// MatchRemovedPayload is published when a match was removed without result.
type MatchRemovedPayload struct {
	MatchID messages.MatchID `json:"matchId"`
	// Timeout is set if the match was removed because of inactivity.
	Timeout bool `json:"timeout"`
}

// LobbyEndedPayload is published when a matchmaking lobby ended.
type LobbyEndedPayload struct {
	LobbyID   messages.LobbyID   `json:"lobbyId"`
	LobbyType messages.LobbyType `json:"lobbyType"`
	MatchIDs  []messages.MatchID `json:"matchIds"`
}

// RemoveMatchRequestPayload is received for requesting the removal of a match.
type RemoveMatchRequestPayload struct {
	MatchID messages.MatchID `json:"matchId"`
	Force   bool             `json:"force"`
}

// ErrorEventPayload is published for failed requests.
type ErrorEventPayload struct {
	// Code is the error code from errors.Error.
	Code string `json:"code"`
	// Err is the error from errors.Error.
	Err string `json:"err"`
	// Message is the message from errors.Error.
	Message string `json:"message"`
	// Details are error details from errors.Error.
	Details map[string]interface{} `json:"details"`
}

// ErrorEventPayloadFromError creates a ErrorEventPayload from the given error.
// Details are only included for errors that blame the user.
func ErrorEventPayloadFromError(err error) ErrorEventPayload {
	e, _ := errors.Cast(err)
	if !errors.BlameUser(err) {
		return ErrorEventPayload{
			Code:    string(e.Code),
			Message: "internal server error",
		}
	}
	return ErrorEventPayload{
		Code:    string(e.Code),
		Err:     e.Error(),
		Message: e.Message,
		Details: e.Details,
	}
}
