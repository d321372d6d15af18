package engine

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error so callers can branch without string
// matching. Remote errors additionally carry the engine's error code.
type Kind string

const (
	KindConnection        Kind = "connection"
	KindTimeout           Kind = "timeout"
	KindProtocol          Kind = "protocol"
	KindRemote            Kind = "remote"
	KindInvalidHandle     Kind = "invalid_handle"
	KindValidation        Kind = "validation"
	KindAppNotFound       Kind = "app_not_found"
	KindFieldNotFound     Kind = "field_not_found"
	KindAuthorization     Kind = "authorization"
	KindUnsupportedFormat Kind = "unsupported_format"
)

// Error is the single error type produced by this package.
type Error struct {
	Kind Kind
	Msg  string
	Code int // engine error code, set when Kind is KindRemote
	Err  error
}

func (e *Error) Error() string {
	if e.Kind == KindRemote {
		return fmt.Sprintf("engine: %s (code %d)", e.Msg, e.Code)
	}
	return "engine: " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an engine error of the given kind.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

func errf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

func wrapErr(k Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), Err: err}
}
