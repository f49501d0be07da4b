package messages

import (
	"fmt"
	"github.com/gorilla/websocket"
	"github.com/lefinal/rally-server/errors"
)

// ErrorCode is the error code that is sent to peers in MessageError.
type ErrorCode string

// Error codes.
const (
	ErrorCodeInvalidData           ErrorCode = "INVALID_DATA"
	ErrorCodeNotFound              ErrorCode = "NOT_FOUND"
	ErrorCodeDuplicate             ErrorCode = "DUPLICATE"
	ErrorCodeNotConnected          ErrorCode = "NOT_CONNECTED"
	ErrorCodePlayerMissing         ErrorCode = "PLAYER_MISSING"
	ErrorCodePermissionDenied      ErrorCode = "PERMISSION_DENIED"
	ErrorCodeTooManyConnections    ErrorCode = "TOO_MANY_CONNECTIONS"
	ErrorCodeInvalidMatchID        ErrorCode = "INVALID_MATCH_ID"
	ErrorCodeInvalidStats          ErrorCode = "INVALID_STATS"
	ErrorCodeNoGameServerAvailable ErrorCode = "NO_GAME_SERVER_AVAILABLE"
	ErrorCodeMatchNotRemovable     ErrorCode = "MATCH_NOT_REMOVABLE"
	ErrorCodeLobbyFull             ErrorCode = "LOBBY_FULL"
	ErrorCodeInternal              ErrorCode = "INTERNAL_ERROR"
)

// MessageError is used with MessageTypeError.
type MessageError struct {
	Error    ErrorCode `json:"error"`
	MatchID  MatchID   `json:"matchId,omitempty"`
	PlayerID int       `json:"playerId,omitempty"`
	// Message is a human-readable description. Internal errors are not described
	// further.
	Message string `json:"message,omitempty"`
}

var errorCodesByKind = map[errors.Kind]ErrorCode{
	errors.KindInvalidData:           ErrorCodeInvalidData,
	errors.KindDecodeJSON:            ErrorCodeInvalidData,
	errors.KindIdentityMismatch:      ErrorCodeNotFound,
	errors.KindResourceNotFound:      ErrorCodeNotFound,
	errors.KindDuplicate:             ErrorCodeDuplicate,
	errors.KindNotConnected:          ErrorCodeNotConnected,
	errors.KindSendBufferFull:        ErrorCodeNotConnected,
	errors.KindPlayerMissing:         ErrorCodePlayerMissing,
	errors.KindPermissionDenied:      ErrorCodePermissionDenied,
	errors.KindTooManyConnections:    ErrorCodeTooManyConnections,
	errors.KindInvalidMatchID:        ErrorCodeInvalidMatchID,
	errors.KindInvalidStats:          ErrorCodeInvalidStats,
	errors.KindNoGameServerAvailable: ErrorCodeNoGameServerAvailable,
	errors.KindMatchNotRemovable:     ErrorCodeMatchNotRemovable,
	errors.KindLobbyFull:             ErrorCodeLobbyFull,
}

// ErrorCodeFromError maps the given error to the ErrorCode that is reported to
// peers. Errors without a known kind are mapped by their code.
func ErrorCodeFromError(err error) ErrorCode {
	e, _ := errors.Cast(err)
	if code, ok := errorCodesByKind[e.Kind]; ok {
		return code
	}
	switch e.Code {
	case errors.ErrBadRequest, errors.ErrProtocolViolation:
		return ErrorCodeInvalidData
	case errors.ErrForbidden:
		return ErrorCodePermissionDenied
	case errors.ErrNotFound:
		return ErrorCodeNotFound
	case errors.ErrCommunication:
		return ErrorCodeNotConnected
	}
	return ErrorCodeInternal
}

// CloseCodeFromError returns the websocket close code to use when closing a
// connection because of the given error.
func CloseCodeFromError(err error) int {
	switch ErrorCodeFromError(err) {
	case ErrorCodeInvalidData, ErrorCodePlayerMissing, ErrorCodeInvalidStats:
		return websocket.CloseInvalidFramePayloadData
	case ErrorCodeNotFound, ErrorCodeDuplicate, ErrorCodePermissionDenied, ErrorCodeInvalidMatchID:
		return websocket.ClosePolicyViolation
	case ErrorCodeTooManyConnections:
		return websocket.CloseTryAgainLater
	case ErrorCodeNotConnected:
		return websocket.CloseGoingAway
	}
	return websocket.CloseInternalServerErr
}

// MessageErrorFromError creates a MessageError from the given error.
func MessageErrorFromError(err error) MessageError {
	e, _ := errors.Cast(err)
	m := MessageError{
		Error: ErrorCodeFromError(err),
	}
	if errors.BlameUser(err) {
		m.Message = e.Message
	} else if m.Error == ErrorCodeInternal {
		m.Message = "internal server error"
	}
	return m
}

// EncodeError encodes a MessageTypeError message for the given error and
// optional match and player.
func EncodeError(err error, matchID MatchID, playerID int) []byte {
	m := MessageErrorFromError(err)
	m.MatchID = matchID
	m.PlayerID = playerID
	return MustEncode(MessageTypeError, m)
}

var kindsByErrorCode = map[ErrorCode]errors.Kind{
	ErrorCodeInvalidData:           errors.KindInvalidData,
	ErrorCodeNotFound:              errors.KindResourceNotFound,
	ErrorCodeDuplicate:             errors.KindDuplicate,
	ErrorCodeNotConnected:          errors.KindNotConnected,
	ErrorCodePlayerMissing:         errors.KindPlayerMissing,
	ErrorCodePermissionDenied:      errors.KindPermissionDenied,
	ErrorCodeTooManyConnections:    errors.KindTooManyConnections,
	ErrorCodeInvalidMatchID:        errors.KindInvalidMatchID,
	ErrorCodeInvalidStats:          errors.KindInvalidStats,
	ErrorCodeNoGameServerAvailable: errors.KindNoGameServerAvailable,
	ErrorCodeMatchNotRemovable:     errors.KindMatchNotRemovable,
	ErrorCodeLobbyFull:             errors.KindLobbyFull,
}

// Err converts a received MessageError into an errors.Error with the matching
// kind.
func (m MessageError) Err() error {
	kind, ok := kindsByErrorCode[m.Error]
	if !ok {
		kind = errors.KindUnexpected
	}
	return errors.Error{
		Code:    errors.ErrCommunication,
		Kind:    kind,
		Message: fmt.Sprintf("peer reported %s: %s", m.Error, m.Message),
		Details: errors.Details{"match_id": m.MatchID, "player_id": m.PlayerID},
	}
}
