package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure independently of the transport that renders it.
type Kind string

const (
	KindNotFound        Kind = "NOT_FOUND"
	KindInvalidState    Kind = "INVALID_STATE"
	KindOutOfStock      Kind = "OUT_OF_STOCK"
	KindBadRequest      Kind = "BAD_REQUEST"
	KindConflict        Kind = "CONFLICT"
	KindInvalidInterval Kind = "INVALID_INTERVAL"
)

// Error is a typed domain failure. Sentinels below carry only a Kind and
// match any Error of the same Kind through errors.Is.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrInvalidState    = &Error{Kind: KindInvalidState}
	ErrOutOfStock      = &Error{Kind: KindOutOfStock}
	ErrBadRequest      = &Error{Kind: KindBadRequest}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrInvalidInterval = &Error{Kind: KindInvalidInterval}
)

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, msg string) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func NotFound(format string, args ...any) error {
	return New(KindNotFound, format, args...)
}

func InvalidState(format string, args ...any) error {
	return New(KindInvalidState, format, args...)
}

func OutOfStock(format string, args ...any) error {
	return New(KindOutOfStock, format, args...)
}

func BadRequest(format string, args ...any) error {
	return New(KindBadRequest, format, args...)
}

func Conflict(format string, args ...any) error {
	return New(KindConflict, format, args...)
}

// KindOf returns the Kind of the first Error in err's chain, or "" when
// err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message returns the user-facing message of the first Error in the chain.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
