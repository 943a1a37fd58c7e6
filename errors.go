package mi

import (
	"errors"
	"fmt"

	"github.com/sirion/mi/status"
)

var (
	ErrServerClosed    = errors.New("mi: server closed")
	ErrServerAddrError = errors.New("mi: address error")

	// ErrMalformedRequest is matched by every request-parse failure. It is never an I/O
	// failure: the bytes arrived, they just were not HTTP.
	ErrMalformedRequest = errors.New("mi: malformed request")
	ErrHeaderTooLarge   = errors.New("mi: header block too large")

	errHeaderBlockTooLarge = fmt.Errorf("%w: %w", ErrMalformedRequest, ErrHeaderTooLarge)

	// ErrNotConnected is returned by writes on a finalized Response.
	ErrNotConnected = errors.New("mi: connection closed")
)

// Error carries HTTP error semantics: a status code, its reason phrase and a message.
type Error struct {
	Code    status.Code
	Status  string
	Message string

	kind error
}

func NewError(code status.Code, message string) *Error {
	return &Error{
		Code:    code,
		Status:  status.Text(code),
		Message: message,
	}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.kind
}

func malformed(kind error, format string, args ...interface{}) error {
	err := NewError(status.BadRequest, fmt.Sprintf(format, args...))
	err.kind = kind
	return err
}

// IOError wraps a socket failure together with the step that hit it.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return "mi: " + e.Op + ": " + e.Err.Error()
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func ioFailure(op string, err error) error {
	if err == nil {
		return nil
	}

	return &IOError{Op: op, Err: err}
}
