// Package errs carries the error kinds the chat core reports back to a
// connection or an HTTP caller.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotBound        Kind = "not_bound"
	KindPersistence     Kind = "persistence_failure"
	KindInvalidInput    Kind = "invalid_input"
	KindForbidden       Kind = "forbidden"
	KindUpstreamTimeout Kind = "upstream_timeout"
	KindUpstream        Kind = "upstream_failure"
	KindInternal        Kind = "internal"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the outermost *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message is the text shown to end users. Wrapped causes stay in the logs.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return "internal error"
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindNotBound:
		return http.StatusConflict
	case KindPersistence, KindUpstream:
		return http.StatusBadGateway
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
