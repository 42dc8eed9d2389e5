package bus

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout indicates a transfer didn't complete in time.
	ErrTimeout = errors.New("transfer timeout")
	// ErrIOFailure indicates the driver failed the transfer.
	ErrIOFailure = errors.New("bus I/O failure")
	// ErrBusy indicates a previous transfer is still on the wire.
	ErrBusy = errors.New("bus busy")
	// ErrClosed indicates the bus has been released.
	ErrClosed = errors.New("bus closed")
)

// TransportError wraps a bus level failure.
type TransportError struct {
	Op    string
	Err   error
	Cause error
}

// Error implements error.
func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Err, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the sentinel and the cause.
func (e *TransportError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

// Timeout implements the net.Error convention.
func (e *TransportError) Timeout() bool {
	return errors.Is(e.Err, ErrTimeout)
}
