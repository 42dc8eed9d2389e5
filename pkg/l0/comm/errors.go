package comm

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange indicates a value can't be represented on the wire.
	ErrOutOfRange = errors.New("value out of range")
	// ErrTruncated indicates a frame is shorter than its payload requires.
	ErrTruncated = errors.New("frame truncated")
	// ErrFrameWidth indicates a frame longer than FrameSize.
	ErrFrameWidth = errors.New("invalid frame width")
)

// EncodeError is returned when a command can't be encoded.
type EncodeError struct {
	Field string
	Value float32
}

// Error implements error.
func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s=%v: %v", e.Field, e.Value, ErrOutOfRange)
}

// Unwrap returns ErrOutOfRange.
func (e *EncodeError) Unwrap() error {
	return ErrOutOfRange
}

// DecodeError is returned when a received frame can't be decoded.
type DecodeError struct {
	Err  error
	Need int
	Got  int
}

// Error implements error.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v: need %d bytes, got %d", e.Err, e.Need, e.Got)
}

// Unwrap returns the underlying sentinel.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
