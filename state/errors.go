package state

import (
	"context"
	"errors"
	"fmt"
)

// ProtocolError is returned when the routing daemon sends output we cannot make sense of.
// The tick that observed it is aborted.
type ProtocolError struct {
	Line string
	Msg  string
}

func (e *ProtocolError) Error() string {
	if e.Line == "" {
		return fmt.Sprintf("protocol error: %s", e.Msg)
	}
	return fmt.Sprintf("protocol error: %s (line %q)", e.Msg, e.Line)
}

func NewProtocolError(line string, format string, args ...any) *ProtocolError {
	return &ProtocolError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

// TransportError wraps I/O failures talking to the daemon or the counter boundary.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ConfigurationError means the settings do not allow the requested operation. Nothing is mutated.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Msg
}

// DataAnomaly is a per-entry join failure. It is always recovered locally.
type DataAnomaly interface {
	error
	Anomaly() string
}

// IsRetryable reports whether err should simply be retried on the next scheduled tick.
func IsRetryable(err error) bool {
	var pe *ProtocolError
	var te *TransportError
	return errors.As(err, &pe) || errors.As(err, &te) || errors.Is(err, context.DeadlineExceeded)
}
