package userstore

import (
	"errors"
	"fmt"

	"github.com/hicsail/kidney-web/internal/domain/userpath"
)

// Error codes
const (
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	CodeCascadeAborted     = "CASCADE_ABORTED"
	CodeInvalidRequest     = "INVALID_REQUEST"
)

// Error is the failure type returned by every Store operation. Compare with
// errors.Is against the exported sentinels; only Code takes part in the match.
type Error struct {
	Code      string
	Op        string
	Key       string
	Stage     userpath.Category
	Message   string
	Err       error
	Retryable bool
}

func (e *Error) Error() string {
	msg := e.Code + ": " + e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Stage != "" {
		msg += fmt.Sprintf(" (stage %s)", e.Stage)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" - %v", e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels
var (
	ErrForbidden = &Error{
		Code:    CodeForbidden,
		Message: "path is outside the user's namespace",
	}

	ErrNotFound = &Error{
		Code:    CodeNotFound,
		Message: "object not found",
	}

	ErrBackendUnavailable = &Error{
		Code:      CodeBackendUnavailable,
		Message:   "storage backend is unavailable",
		Retryable: true,
	}

	ErrCascadeAborted = &Error{
		Code:      CodeCascadeAborted,
		Message:   "failed to delete derived artifact, source left in place",
		Retryable: true,
	}

	ErrInvalidRequest = &Error{
		Code:    CodeInvalidRequest,
		Message: "invalid request",
	}
)

func newError(sentinel *Error, op, key string, err error) *Error {
	return &Error{
		Code:      sentinel.Code,
		Op:        op,
		Key:       key,
		Message:   sentinel.Message,
		Err:       err,
		Retryable: sentinel.Retryable,
	}
}

func errForbidden(op, key string, err error) error {
	return newError(ErrForbidden, op, key, err)
}

func errNotFound(op, key string, err error) error {
	return newError(ErrNotFound, op, key, err)
}

func errBackendUnavailable(op, key string, err error) error {
	return newError(ErrBackendUnavailable, op, key, err)
}

func errInvalidRequest(op, key string, err error) error {
	return newError(ErrInvalidRequest, op, key, err)
}

func errCascadeAborted(key string, stage userpath.Category, err error) error {
	e := newError(ErrCascadeAborted, "delete", key, err)
	e.Stage = stage
	e.Message = fmt.Sprintf("failed to delete %s artifact, source left in place", stage)
	return e
}

// classifyPathError maps a path model rejection to a store error. Unknown
// categories and missing paths are caller mistakes; everything else is
// treated as an attempt to leave the namespace.
func classifyPathError(op, key string, err error) error {
	if errors.Is(err, userpath.ErrUnknownCategory) || errors.Is(err, userpath.ErrEmptyPath) {
		return errInvalidRequest(op, key, err)
	}
	return errForbidden(op, key, err)
}

// CodeOf returns the code of a store error, or CodeBackendUnavailable for
// anything else.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeBackendUnavailable
}
