// Package apperr holds the error kinds surfaced at the HTTP boundary.
package apperr

import "errors"

var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrTransient    = errors.New("temporarily unavailable")
)

// Error pairs a kind with a message that is safe to show to the caller.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func New(kind error, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

func BadRequest(msg string) *Error { return New(ErrBadRequest, msg) }

func Forbidden(msg string) *Error { return New(ErrForbidden, msg) }

func NotFound(msg string) *Error { return New(ErrNotFound, msg) }

// Message returns the displayable text for err, falling back to the kind.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	for _, k := range []error{ErrBadRequest, ErrUnauthorized, ErrForbidden, ErrNotFound, ErrConflict, ErrTransient} {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "internal server error"
}
