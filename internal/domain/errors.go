package domain

import (
	"errors"
	"fmt"
)

// ErrorKind discriminates the failure classes surfaced by the room event core.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindValidation
	KindStore
	KindUnknownEventKind
	KindMalformedPayload
	KindDerivation
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindStore:
		return "store"
	case KindUnknownEventKind:
		return "unknown_event_kind"
	case KindMalformedPayload:
		return "malformed_payload"
	case KindDerivation:
		return "derivation"
	default:
		return "unknown"
	}
}

// Error is the tagged error value shared by every layer. A bare Error with
// only Kind set acts as the sentinel for that kind.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Kind.String() + ": " + e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches kind sentinels, so errors.Is(err, ErrNotFound) holds for every
// not-found error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind sentinels.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrStore             = &Error{Kind: KindStore}
	ErrUnknownEventKind  = &Error{Kind: KindUnknownEventKind}
	ErrMalformedPayload  = &Error{Kind: KindMalformedPayload}
	ErrDerivationWarning = &Error{Kind: KindDerivation}
)

var (
	// ErrRoomNotFound is returned when a room does not exist.
	ErrRoomNotFound = &Error{Kind: KindNotFound, Msg: "room not found"}
	// ErrRoomQuestionNotFound is returned when a question is not attached to the room.
	ErrRoomQuestionNotFound = &Error{Kind: KindNotFound, Msg: "room question not found"}
	// ErrQuestionNotFound indicates the question catalog has no such question.
	ErrQuestionNotFound = &Error{Kind: KindNotFound, Msg: "question not found"}
	// ErrInvalidState indicates an unrecognized room question state.
	ErrInvalidState = &Error{Kind: KindValidation, Msg: "invalid room question state"}
)

// NotFound builds a not-found error.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Validation builds a validation error.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// StoreError wraps a durability or I/O failure. Errors that already carry a
// kind are returned unchanged.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: KindStore, Msg: op, Err: err}
}

// DerivationWarning wraps a non-fatal side-effect failure.
func DerivationWarning(op string, err error) error {
	return &Error{Kind: KindDerivation, Msg: op, Err: err}
}

// KindOf returns the kind of the first domain Error in err's chain.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}
