package protocol

import (
	"errors"
	"fmt"
)

// ErrStringTooLong is returned when a string does not fit the uint16 length prefix.
var ErrStringTooLong = errors.New("string exceeds 65535 bytes")

// ConnectionError means the agent could not be reached at all.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err is, or wraps, a *ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// UnknownKindError carries a kind tag outside the closed enumeration.
type UnknownKindError struct {
	Kind     int32
	Response bool
}

func (e *UnknownKindError) Error() string {
	if e.Response {
		return fmt.Sprintf("invalid response. (0x%x)", e.Kind)
	}
	return fmt.Sprintf("invalid request. (0x%x)", e.Kind)
}

// UnexpectedResponseError is returned when a caller receives a valid kind it did not ask for.
type UnexpectedResponseError struct {
	Got  ResponseKind
	Want []ResponseKind
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected response %s (want %v)", e.Got, e.Want)
}
