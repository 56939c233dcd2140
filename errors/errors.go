// Package errors provides error types and utilities for the ojsworker library.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Sentinel errors for common conditions
var (
	ErrNotConnected       = errors.New("not connected")
	ErrNoQueues           = errors.New("no queues configured")
	ErrJobNotFound        = errors.New("job not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrEmptyJobType       = errors.New("job type cannot be empty")
	ErrNilHandler         = errors.New("handler cannot be nil")
	ErrNilMiddleware      = errors.New("middleware cannot be nil")
	ErrMiddlewareNotFound = errors.New("middleware not found")
	ErrEngineRunning      = errors.New("engine is already running")
	ErrInvalidJob         = errors.New("invalid job envelope")
)

// Kind classifies transport failures
type Kind string

const (
	KindConnection Kind = "connection"
	KindTimeout    Kind = "timeout"
	KindServer     Kind = "server"
	KindRateLimit  Kind = "rate_limit"
	KindClient     Kind = "client"
	KindProtocol   Kind = "protocol"
)

// TransportError represents a failed worker RPC
type TransportError struct {
	Op         string        // fetch, ack, nack or heartbeat
	Kind       Kind          // failure class
	StatusCode int           // HTTP status, if any
	Code       string        // server error code, if any
	RetryAfter time.Duration // server-suggested backoff for rate limits
	Err        error         // underlying error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport %s (%s, status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the call later may succeed
func (e *TransportError) Temporary() bool {
	switch e.Kind {
	case KindConnection, KindTimeout, KindServer, KindRateLimit:
		return true
	}
	return false
}

// Timeout reports whether the call timed out
func (e *TransportError) Timeout() bool {
	return e.Kind == KindTimeout
}

// HandlerError represents a failure raised by a handler or middleware
type HandlerError struct {
	Type      string   // error type reported to the server
	JobType   string   // job type being handled
	Backtrace []string // captured stack for panics
	Err       error    // underlying error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s: %v", e.JobType, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// ErrorType returns the type reported in the nack payload
func (e *HandlerError) ErrorType() string {
	if e.Type != "" {
		return e.Type
	}
	var typed Typed
	if errors.As(e.Err, &typed) {
		return typed.ErrorType()
	}
	return TypeHandlerError
}

// SerializationError represents encoding or decoding failures
type SerializationError struct {
	Format string // serialization format
	Err    error  // underlying error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization (%s): %v", e.Format, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// ConnectionError represents connection-related errors
type ConnectionError struct {
	URI string // connection URI (may be redacted)
	Err error  // underlying error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s: %v", e.URI, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) Temporary() bool {
	if t, ok := e.Err.(interface{ Temporary() bool }); ok {
		return t.Temporary()
	}
	return false
}

func (e *ConnectionError) Timeout() bool {
	if t, ok := e.Err.(interface{ Timeout() bool }); ok {
		return t.Timeout()
	}
	return false
}

// Helper functions for creating errors

// NewTransportError creates a new transport error
func NewTransportError(op string, kind Kind, err error) *TransportError {
	return &TransportError{Op: op, Kind: kind, Err: err}
}

// NewSerializationError creates a new serialization error
func NewSerializationError(format string, err error) error {
	return &SerializationError{Format: format, Err: err}
}

// NewConnectionError creates a new connection error
func NewConnectionError(uri string, err error) error {
	return &ConnectionError{URI: uri, Err: err}
}

// ClassifyNetError maps a low-level client error to a transport error
func ClassifyNetError(op string, err error) *TransportError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTransportError(op, KindTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTransportError(op, KindTimeout, err)
	}
	return NewTransportError(op, KindConnection, err)
}

// KindOf returns the transport kind of err, or "" if it is not a transport error
func KindOf(err error) Kind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// IsTemporary checks if an error is temporary and retryable
func IsTemporary(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Temporary()
	}
	if t, ok := err.(interface{ Temporary() bool }); ok {
		return t.Temporary()
	}
	return false
}

// IsTimeout checks if an error is a timeout
func IsTimeout(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Timeout()
	}
	if t, ok := err.(interface{ Timeout() bool }); ok {
		return t.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
