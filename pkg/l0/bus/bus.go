// Package bus provides the physical transports for L0 frames.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/mattbot/mcucomms/pkg/framework"
	"github.com/mattbot/mcucomms/pkg/l0/comm"
)

// Transport exchanges exactly one frame for one frame.
// Implementations are not safe for concurrent use: the owner
// must serialize calls.
type Transport interface {
	// Transfer clocks tx out and returns what was clocked in.
	Transfer(ctx context.Context, tx comm.Frame) ([]byte, error)
	// Close releases the bus.
	Close() error
}

// Config defines bus parameters.
type Config struct {
	// Device is the spidev name, e.g. "/dev/spidev0.0" or "SPI0.0".
	// Empty selects the first port.
	Device string `yaml:"device"`
	// ClockHz is the clock rate.
	ClockHz int64 `yaml:"clock_hz"`
	// Mode is the SPI mode, CPOL<<1|CPHA.
	Mode int `yaml:"mode"`
	// Timeout bounds a single transfer.
	Timeout time.Duration `yaml:"timeout"`
}

// Defaults
const (
	DefaultClockHz = 1000000
	// DefaultMode is CPOL=1, CPHA=1: clock idles high, sampled on rising edge.
	DefaultMode    = 3
	DefaultTimeout = 50 * time.Millisecond
)

// DefaultConfig returns the bus parameters the firmware expects.
func DefaultConfig() Config {
	return Config{
		Device:  "/dev/spidev0.0",
		ClockHz: DefaultClockHz,
		Mode:    DefaultMode,
		Timeout: DefaultTimeout,
	}
}

// Validate checks the parameters.
func (c Config) Validate() error {
	if c.ClockHz <= 0 {
		return fmt.Errorf("invalid clock rate %d", c.ClockHz)
	}
	if c.Mode < 0 || c.Mode > 3 {
		return fmt.Errorf("invalid SPI mode %d", c.Mode)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid transfer timeout %v", c.Timeout)
	}
	return nil
}

// guard enforces one transfer in flight and the per-transfer timeout.
// A transfer which outlives the timeout keeps the token until it
// completes, so the next transfer fails fast instead of interleaving.
type guard struct {
	Timeout time.Duration

	idle   chan struct{}
	closed chan struct{}
}

func newGuard(timeout time.Duration) *guard {
	g := &guard{
		Timeout: timeout,
		idle:    make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
	g.idle <- struct{}{}
	return g
}

func (g *guard) transfer(ctx context.Context, tx comm.Frame, fn func(tx, rx []byte) error) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case <-g.closed:
		return nil, &TransportError{Op: "transfer", Err: ErrClosed}
	default:
	}
	select {
	case <-g.idle:
	default:
		return nil, &TransportError{Op: "transfer", Err: ErrBusy}
	}
	rx := make([]byte, comm.FrameSize)
	timedOut, err := framework.RunWithTimeout(g.Timeout, func() error {
		defer func() { g.idle <- struct{}{} }()
		return fn(tx[:], rx)
	})
	if timedOut {
		return nil, &TransportError{Op: "transfer", Err: ErrTimeout}
	}
	if err != nil {
		return nil, &TransportError{Op: "transfer", Err: ErrIOFailure, Cause: err}
	}
	return rx, nil
}

// close waits for an in-flight transfer to finish, bounded by the timeout,
// and reports whether the bus went idle.
func (g *guard) close() bool {
	select {
	case <-g.closed:
		return true
	default:
	}
	close(g.closed)
	timer := time.NewTimer(g.Timeout + time.Millisecond)
	defer timer.Stop()
	select {
	case <-g.idle:
		return true
	case <-timer.C:
		return false
	}
}
