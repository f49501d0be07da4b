package errors

// Code is the general class of an Error.
type Code string

const (
	ErrAborted           Code = "aborted"
	ErrBadRequest        Code = "bad-request"
	ErrCommunication     Code = "communication"
	ErrForbidden         Code = "forbidden"
	ErrProtocolViolation Code = "protocol-violation"
	ErrFatal             Code = "fatal"
	ErrNotFound          Code = "not-found"
	ErrInternal          Code = "internal"
	ErrUnavailable       Code = "unavailable"
	ErrUnexpected        Code = "unexpected"
)

// Kind is a more specific description of what went wrong.
type Kind string

const (
	// KindContextAborted is used when we were currently performing an operation but
	// the context got aborted.
	KindContextAborted Kind = "context-aborted"
	KindDB             Kind = "db"
	KindDBRollback     Kind = "db-rollback"
	KindDecodeJSON     Kind = "decode-json"
	KindEncodeJSON     Kind = "encode-json"
	// KindDuplicate is used when an entity is already bound, for example a match
	// slot that already holds a connection or a user that is already queued.
	KindDuplicate Kind = "duplicate"
	// KindIdentityMismatch is used when a supplied identity does not match the
	// expected one.
	KindIdentityMismatch Kind = "identity-mismatch"
	// KindInvalidData is used for malformed or unknown messages.
	KindInvalidData Kind = "invalid-data"
	// KindInvalidMatchID is used when a match result refers to an unexpected
	// match.
	KindInvalidMatchID Kind = "invalid-match-id"
	// KindInvalidStats is used when match stats cannot be reconciled with the
	// expected participants.
	KindInvalidStats Kind = "invalid-stats"
	// KindLobbyFull is used when a client is added to a lobby that already reached
	// its capacity.
	KindLobbyFull Kind = "lobby-full"
	// KindMatchNotRemovable is used when a match removal is requested that is not
	// forced while the match is still in use.
	KindMatchNotRemovable Kind = "match-not-removable"
	// KindNoGameServerAvailable is used when the simulation host cannot be reached.
	KindNoGameServerAvailable Kind = "no-game-server-available"
	// KindNotConnected is used when sending to a connection that is closed or
	// absent.
	KindNotConnected Kind = "not-connected"
	// KindNotRunning is used when actions are performed that require a running
	// entity.
	KindNotRunning Kind = "not-running"
	// KindOutboxOverflow is used when the outbound control queue dropped its
	// oldest message.
	KindOutboxOverflow Kind = "outbox-overflow"
	// KindPermissionDenied is used for privileged actions performed by
	// unauthenticated connections.
	KindPermissionDenied Kind = "permission-denied"
	// KindPlayerMissing is used when a match is requested with less than two
	// players.
	KindPlayerMissing    Kind = "player-missing"
	KindResourceNotFound Kind = "resource-not-found"
	// KindSendBufferFull is used when the outgoing buffer of a connection is
	// exhausted.
	KindSendBufferFull Kind = "send-buffer-full"
	// KindTooManyConnections is used when the admission guard rejects a
	// connection.
	KindTooManyConnections Kind = "too-many-connections"
	KindUnexpected         Kind = "unexpected"
)
