package errors

import "fmt"

// NewInternalError creates a new ErrInternal error with the given message.
func NewInternalError(message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Message: message,
		Details: details,
	}
}

// NewInternalErrorFromErr creates a new ErrInternal error with the given
// original error.
func NewInternalErrorFromErr(err error, message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Err:     err,
		Message: message,
		Details: details,
	}
}

// NewResourceNotFoundError returns a new ErrNotFound error with kind
// KindResourceNotFound and the given message.
func NewResourceNotFoundError(message string, details Details) error {
	return Error{
		Code:    ErrNotFound,
		Kind:    KindResourceNotFound,
		Message: message,
		Details: details,
	}
}

// NewContextAbortedError creates a new ErrAborted error with kind
// KindContextAborted for the given operation.
func NewContextAbortedError(currentOperation string) error {
	return Error{
		Code:    ErrAborted,
		Kind:    KindContextAborted,
		Message: fmt.Sprintf("context aborted while %s", currentOperation),
	}
}

// NewJSONError creates an error for failed JSON encoding or decoding. If
// blameUser is set, the error is an ErrBadRequest with KindInvalidData.
func NewJSONError(err error, message string, blameUser bool) error {
	if blameUser {
		return Error{
			Code:    ErrBadRequest,
			Kind:    KindInvalidData,
			Err:     err,
			Message: message,
		}
	}
	return Error{
		Code:    ErrInternal,
		Kind:    KindEncodeJSON,
		Err:     err,
		Message: message,
	}
}

// NewInvalidDataError creates a new ErrBadRequest error with kind
// KindInvalidData.
func NewInvalidDataError(message string, details Details) error {
	return Error{
		Code:    ErrBadRequest,
		Kind:    KindInvalidData,
		Message: message,
		Details: details,
	}
}

// NewPermissionDeniedError creates a new ErrForbidden error with kind
// KindPermissionDenied.
func NewPermissionDeniedError(message string, details Details) error {
	return Error{
		Code:    ErrForbidden,
		Kind:    KindPermissionDenied,
		Message: message,
		Details: details,
	}
}

// NewNotConnectedError creates a new ErrCommunication error with kind
// KindNotConnected.
func NewNotConnectedError(message string, details Details) error {
	return Error{
		Code:    ErrCommunication,
		Kind:    KindNotConnected,
		Message: message,
		Details: details,
	}
}

// NewExecQueryError creates a new ErrInternal error with kind KindDB for a
// failed query execution.
func NewExecQueryError(err error, message string, query string) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: message,
		Details: Details{"query": query},
	}
}

// NewScanDBRowError creates a new ErrInternal error with kind KindDB for a
// failed row scan.
func NewScanDBRowError(err error, message string, query string) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: message,
		Details: Details{"query": query},
	}
}

// NewQueryToSQLError creates a new ErrInternal error for a query that could not
// be built.
func NewQueryToSQLError(err error, details Details) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: "query to sql",
		Details: details,
	}
}

// NewDBTxBeginError creates a new ErrInternal error with kind KindDB for a
// transaction that could not be started.
func NewDBTxBeginError(err error) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: "begin tx",
	}
}

// NewDBTxCommitError creates a new ErrInternal error with kind KindDB for a
// transaction that could not be committed.
func NewDBTxCommitError(err error) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: "commit tx",
	}
}
