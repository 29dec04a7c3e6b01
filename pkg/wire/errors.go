package wire

import (
	"errors"
	"fmt"
)

// ErrorKind represents the category of error that occurred
type ErrorKind int

const (
	// KindConfiguration indicates invalid construction arguments (empty server name, bad port range)
	KindConfiguration ErrorKind = iota + 1
	// KindEncoding indicates a value that cannot be written (duplicate or empty field name, unsupported type)
	KindEncoding
	// KindDecoding indicates a value that cannot be read (missing field, type mismatch, malformed bytes)
	KindDecoding
	// KindTransport indicates a socket or stream failure
	KindTransport
)

// Sentinel errors usable with errors.Is against any *Error of the same kind
var (
	ErrConfiguration = errors.New("configuration error")
	ErrEncoding      = errors.New("encoding error")
	ErrDecoding      = errors.New("decoding error")
	ErrTransport     = errors.New("transport error")

	// ErrIncomplete is returned by ParseMessage when the buffer does not yet
	// hold a whole frame.
	ErrIncomplete = errors.New("incomplete frame")
)

// String returns a human-readable name for the error kind
func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "Configuration Error"
	case KindEncoding:
		return "Encoding Error"
	case KindDecoding:
		return "Decoding Error"
	case KindTransport:
		return "Transport Error"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindEncoding:
		return ErrEncoding
	case KindDecoding:
		return ErrDecoding
	case KindTransport:
		return ErrTransport
	default:
		return nil
	}
}

// Error is the error type returned by every package of this module
type Error struct {
	Kind    ErrorKind // Category of error
	Op      string    // Operation that failed (e.g. "AddValue", "Start")
	Name    string    // Field, message or server name involved (if any)
	Message string    // Human-readable error message
	Err     error     // Underlying error (if any)
}

// Error implements the error interface
func (e *Error) Error() string {
	prefix := e.Kind.String()
	if e.Op != "" {
		prefix += " in " + e.Op
	}
	if e.Name != "" {
		prefix += fmt.Sprintf(" [%s]", e.Name)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinel, so errors.Is(err, ErrDecoding) works for
// any decoding failure regardless of its cause.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// ConfigurationError creates an error for invalid construction arguments
func ConfigurationError(op, name, message string) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Name: name, Message: message}
}

// EncodingError creates an error for a value that cannot be encoded
func EncodingError(op, name, message string) *Error {
	return &Error{Kind: KindEncoding, Op: op, Name: name, Message: message}
}

// DecodingError creates an error for a value that cannot be decoded
func DecodingError(op, name, message string) *Error {
	return &Error{Kind: KindDecoding, Op: op, Name: name, Message: message}
}

// TransportError wraps a socket failure
func TransportError(op, name string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Name: name, Message: "i/o failure", Err: err}
}

// KindOf returns the kind of err if it is (or wraps) an *Error, 0 otherwise
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
