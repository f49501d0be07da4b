// Provide basic message functionality.

package messages

import (
	"bytes"
	"encoding/json"
	"github.com/lefinal/rally-server/errors"
)

// MessageType is the type of message and serves for using the correct parsing
// method.
type MessageType string

// UserID identifies a human player across matches.
type UserID string

// MatchID identifies a match on the game host. It is derived from the ids of
// both players.
type MatchID string

// LobbyID identifies a matchmaking lobby.
type LobbyID string

// Envelope holds the fields every message carries. The payload fields are
// located next to the type field in the same JSON object.
type Envelope struct {
	// Type is the type of the message.
	Type MessageType `json:"type"`
}

// Control channel message types.
const (
	// MessageTypeConnectLobby is used with MessageConnectLobby for authenticating
	// the control channel.
	MessageTypeConnectLobby MessageType = "CONNECT_LOBBY"
	// MessageTypeLobbyConnected is sent as acknowledgement for
	// MessageTypeConnectLobby.
	MessageTypeLobbyConnected MessageType = "LOBBY_CONNECTED"
	// MessageTypeNewMatch is used with MessageNewMatch.
	MessageTypeNewMatch MessageType = "NEW_MATCH"
	// MessageTypeMatchCreated is used with MessageMatchCreated.
	MessageTypeMatchCreated MessageType = "MATCH_CREATED"
	// MessageTypeRemoveMatch is used with MessageRemoveMatch.
	MessageTypeRemoveMatch MessageType = "REMOVE_MATCH"
	// MessageTypeTimeoutRemove is used with MessageRemoveMatch when a match was
	// removed because of inactivity.
	MessageTypeTimeoutRemove MessageType = "TIMEOUT_REMOVE"
)

// Player message types.
const (
	MessageTypeConnectPlayer   MessageType = "CONNECT_PLAYER"
	MessageTypePlayerConnected MessageType = "PLAYER_CONNECTED"
	MessageTypeInput           MessageType = "INPUT"
	MessageTypePing            MessageType = "PING"
	MessageTypePong            MessageType = "PONG"
	MessageTypeBounce          MessageType = "BOUNCE"
	MessageTypeGameState       MessageType = "GAME_STATE"
	// MessageTypeEndGame is used with MessageEndGame and sent to both players as
	// well as the control channel.
	MessageTypeEndGame MessageType = "END_GAME"
	// MessageTypeError is used with MessageError.
	MessageTypeError MessageType = "ERROR"
)

// Matchmaking message types.
const (
	MessageTypeQueueJoin         MessageType = "QUEUE_JOIN"
	MessageTypeQueueJoined       MessageType = "QUEUE_JOINED"
	MessageTypeQueueLeave        MessageType = "QUEUE_LEAVE"
	MessageTypeQueueLeft         MessageType = "QUEUE_LEFT"
	MessageTypeMatchFound        MessageType = "MATCH_FOUND"
	MessageTypeMatchResult       MessageType = "MATCH_RESULT"
	MessageTypeMatchAborted      MessageType = "MATCH_ABORTED"
	MessageTypeTournamentBracket MessageType = "TOURNAMENT_BRACKET"
	MessageTypeTournamentResult  MessageType = "TOURNAMENT_RESULT"
)

// Parse reads the Envelope of the given raw message. The returned type is
// guaranteed to be non-empty.
func Parse(raw []byte) (Envelope, error) {
	var envelope Envelope
	err := json.Unmarshal(raw, &envelope)
	if err != nil {
		return Envelope{}, errors.NewJSONError(err, "parse message envelope", true)
	}
	if envelope.Type == "" {
		return Envelope{}, errors.NewInvalidDataError("missing message type", nil)
	}
	return envelope, nil
}

// Decode decodes the payload of the given raw message into the passed target.
// Unknown fields as well as the type field are ignored.
func Decode(raw []byte, target interface{}) error {
	err := json.Unmarshal(raw, target)
	if err != nil {
		return errors.NewJSONError(err, "decode message payload", true)
	}
	return nil
}

// Encode creates a message with the given type. The payload must marshal to a
// JSON object or be nil.
func Encode(messageType MessageType, payload interface{}) ([]byte, error) {
	typeRaw, err := json.Marshal(messageType)
	if err != nil {
		return nil, errors.NewJSONError(err, "marshal message type", false)
	}
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(typeRaw)
	if payload == nil {
		buf.WriteByte('}')
		return buf.Bytes(), nil
	}
	payloadRaw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.NewJSONError(err, "marshal message payload", false)
	}
	if len(payloadRaw) < 2 || payloadRaw[0] != '{' {
		return nil, errors.NewInternalError("payload is no json object", errors.Details{"type": messageType})
	}
	if len(payloadRaw) > 2 {
		buf.WriteByte(',')
	}
	buf.Write(payloadRaw[1:])
	return buf.Bytes(), nil
}

// MustEncode is the same as Encode but panics if encoding fails. Use it only
// with payloads that cannot fail to marshal.
func MustEncode(messageType MessageType, payload interface{}) []byte {
	b, err := Encode(messageType, payload)
	if err != nil {
		panic(err)
	}
	return b
}
