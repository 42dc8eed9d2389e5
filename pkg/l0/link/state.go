// Package link implements the host side of the MCU link: bring-up,
// command/poll multiplexing and the shutdown handshake.
package link

import (
	"errors"
	"time"

	"github.com/mattbot/mcucomms/pkg/l0/comm"
)

// State is the link state.
type State int32

// States
const (
	Uninitialized State = iota
	Handshaking
	Ready
	ShuttingDown
	Closed
)

var stateNames = [...]string{
	Uninitialized: "uninitialized",
	Handshaking:   "handshaking",
	Ready:         "ready",
	ShuttingDown:  "shutting_down",
	Closed:        "closed",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Errors
var (
	// ErrClosed is returned by any operation after shutdown.
	ErrClosed = errors.New("link closed")
	// ErrNotReady is returned for commands sent before the link is up.
	ErrNotReady = errors.New("link not ready")
	// ErrRunning is returned when Run is called twice.
	ErrRunning = errors.New("session already running")
	// ErrBringUpExhausted is returned when a probe cap is configured and reached.
	ErrBringUpExhausted = errors.New("MCU did not answer bring-up probes")
)

// Observer receives link events. Calls happen on the goroutine owning
// the bus and must return quickly.
type Observer interface {
	StateChanged(from, to State)
	Probed(count int, status comm.HandshakeStatus, err error)
	Transferred(op comm.Opcode, elapsed time.Duration, err error)
	CommandDropped(err error)
}

// NopObserver implements Observer doing nothing, embed it to
// implement part of the interface.
type NopObserver struct{}

// StateChanged implements Observer.
func (NopObserver) StateChanged(from, to State) {}

// Probed implements Observer.
func (NopObserver) Probed(int, comm.HandshakeStatus, error) {}

// Transferred implements Observer.
func (NopObserver) Transferred(comm.Opcode, time.Duration, error) {}

// CommandDropped implements Observer.
func (NopObserver) CommandDropped(error) {}

// Observers fans out to multiple observers.
type Observers []Observer

// StateChanged implements Observer.
func (o Observers) StateChanged(from, to State) {
	for _, ob := range o {
		ob.StateChanged(from, to)
	}
}

// Probed implements Observer.
func (o Observers) Probed(count int, status comm.HandshakeStatus, err error) {
	for _, ob := range o {
		ob.Probed(count, status, err)
	}
}

// Transferred implements Observer.
func (o Observers) Transferred(op comm.Opcode, elapsed time.Duration, err error) {
	for _, ob := range o {
		ob.Transferred(op, elapsed, err)
	}
}

// CommandDropped implements Observer.
func (o Observers) CommandDropped(err error) {
	for _, ob := range o {
		ob.CommandDropped(err)
	}
}

// StateFunc adapts a func into an Observer of state changes only.
type StateFunc func(from, to State)

// StateChanged implements Observer.
func (f StateFunc) StateChanged(from, to State) { f(from, to) }

// Probed implements Observer.
func (f StateFunc) Probed(int, comm.HandshakeStatus, error) {}

// Transferred implements Observer.
func (f StateFunc) Transferred(comm.Opcode, time.Duration, error) {}

// CommandDropped implements Observer.
func (f StateFunc) CommandDropped(error) {}
