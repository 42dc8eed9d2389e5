// Package device reads Linux joystick devices (/dev/input/jsN).
package device

import (
	"errors"
	"fmt"
	"io"
)

// Kind tells axis events from button events.
type Kind uint8

// Event kinds
const (
	KindButton Kind = 0x01
	KindAxis   Kind = 0x02
)

// AxisMax is the magnitude of a fully deflected axis.
const AxisMax = 32767

// ErrUnsupported is returned where joysticks can't be opened.
var ErrUnsupported = errors.New("joystick not supported on this platform")

// Event is a change on an axis or a button.
type Event struct {
	Kind  Kind
	Index int
	// Value is the axis position, or non-zero for a pressed button.
	Value int16
	// Init marks the synthetic events reporting the state at open.
	Init bool
}

// Pressed tells whether a button event is a press.
func (e Event) Pressed() bool {
	return e.Kind == KindButton && e.Value != 0
}

// Device represents an opened joystick.
type Device interface {
	io.Closer
	// Index returns the index of the device on the system.
	Index() int
	// Name returns the name of the device.
	Name() string
	// ReadEvent blocks for one event.
	ReadEvent() (Event, error)
}

// Path is the device node of a joystick index.
func Path(index int) string {
	return fmt.Sprintf("/dev/input/js%d", index)
}
