package media

import (
	"errors"
	"fmt"
)

// ErrorCode is the numeric media error code used by the native engines
type ErrorCode int

const (
	ErrAborted       ErrorCode = 1
	ErrNetwork       ErrorCode = 2
	ErrDecode        ErrorCode = 3
	ErrNoneSupported ErrorCode = 4
)

var (
	// ErrUnknownAction is returned for channel messages whose action is not "status".
	ErrUnknownAction = errors.New("unknown media action")
	// ErrInvalidArgument is returned when a command is rejected before dispatch.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Error is a failure reported by the native layer, surfaced verbatim
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("media error %d", e.Code)
	}
	if e.Code == 0 {
		return e.Message
	}
	return fmt.Sprintf("media error %d: %s", e.Code, e.Message)
}

// Unwrap returns the Go error this media error was converted from, if any
func (e *Error) Unwrap() error {
	return e.cause
}

// AsError converts a bridge error value into *Error. Values may be Go
// errors, {code, message} maps, bare codes or strings. nil yields nil.
func AsError(v any) *Error {
	switch val := v.(type) {
	case nil:
		return nil
	case *Error:
		return val
	case error:
		var merr *Error
		if errors.As(val, &merr) {
			return merr
		}
		return &Error{Message: val.Error(), cause: val}
	case map[string]any:
		e := &Error{}
		if n, ok := toNumber(val["code"]); ok {
			e.Code = ErrorCode(n)
		}
		if msg, ok := val["message"].(string); ok {
			e.Message = msg
		}
		return e
	case string:
		return &Error{Message: val}
	}
	if n, ok := toNumber(v); ok {
		return &Error{Code: ErrorCode(n)}
	}
	return &Error{Message: fmt.Sprint(v)}
}
