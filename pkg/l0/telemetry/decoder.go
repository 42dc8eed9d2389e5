package telemetry

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/mattbot/mcucomms/pkg/l0/comm"
)

// StandardGravity converts g to m/s².
const StandardGravity = 9.81

// AccelUnit is the unit the MCU reports acceleration in.
type AccelUnit string

// Acceleration units
const (
	AccelG    AccelUnit = "g"
	AccelMPS2 AccelUnit = "mps2"
)

// Scale returns the factor converting the unit to m/s².
func (u AccelUnit) Scale() (float32, error) {
	switch u {
	case AccelG, "":
		return StandardGravity, nil
	case AccelMPS2:
		return 1, nil
	}
	return 0, fmt.Errorf("unknown acceleration unit %q", string(u))
}

var (
	// ErrOutOfOrder indicates a reply doesn't match the expected cycle step.
	ErrOutOfOrder = errors.New("reply out of cycle order")
	// ErrIncomplete indicates a cycle ended before all replies arrived.
	ErrIncomplete = errors.New("incomplete poll cycle")
	// ErrAborted indicates a cycle was preempted.
	ErrAborted = errors.New("poll cycle aborted")
)

// CycleError reports a discarded poll cycle.
type CycleError struct {
	Sequence uint64
	Op       comm.Opcode
	Err      error
}

// Error implements error.
func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle %d at %s: %v", e.Sequence, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *CycleError) Unwrap() error {
	return e.Err
}

// Decoder accumulates one Record per poll cycle and owns the sequence counter.
// Feed, Fail and End belong to the single bus-owning goroutine;
// Sequence may be read from anywhere.
type Decoder struct {
	// Now stamps completed records.
	Now func() time.Time

	accelScale float32
	seq        atomic.Uint64
	step       int
	rec        Record
	err        error
	failedOp   comm.Opcode
}

// NewDecoder creates a Decoder for the given acceleration unit.
func NewDecoder(unit AccelUnit) (*Decoder, error) {
	scale, err := unit.Scale()
	if err != nil {
		return nil, err
	}
	return &Decoder{Now: time.Now, accelScale: scale}, nil
}

// Sequence returns the number of cycles ended so far.
func (d *Decoder) Sequence() uint64 {
	return d.seq.Load()
}

// Begin starts a new cycle, discarding any partial one.
func (d *Decoder) Begin() {
	d.step, d.rec, d.err, d.failedOp = 0, Record{}, nil, 0
}

// Expected returns the opcode of the next exchange in the cycle.
func (d *Decoder) Expected() (comm.Opcode, bool) {
	if d.step >= len(comm.PollSequence) {
		return 0, false
	}
	return comm.PollSequence[d.step], true
}

// Feed decodes the reply for op. After the first failure the cycle
// is spoiled and the remaining replies are ignored.
func (d *Decoder) Feed(op comm.Opcode, reply []byte) error {
	if d.err != nil {
		return d.err
	}
	expected, ok := d.Expected()
	if !ok || op != expected {
		return d.fail(op, fmt.Errorf("%w: got %s", ErrOutOfOrder, op))
	}
	if err := comm.CheckWidth(reply); err != nil {
		return d.fail(op, err)
	}
	switch op {
	case comm.OpSensorSetup:
		// reply carries whatever the MCU held before the cycle
	case comm.OpSensorAccel:
		x, y, z, err := comm.DecodeFloatTriplet(reply)
		if err != nil {
			return d.fail(op, err)
		}
		d.rec.Acceleration = Vector3{X: x * d.accelScale, Y: y * d.accelScale, Z: z * d.accelScale}
	case comm.OpSensorGyro:
		x, y, z, err := comm.DecodeFloatTriplet(reply)
		if err != nil {
			return d.fail(op, err)
		}
		d.rec.AngularRate = Vector3{X: degToRad(x), Y: degToRad(y), Z: degToRad(z)}
	case comm.OpSensorPosition:
		x, y, theta, err := comm.DecodeFloatTriplet(reply)
		if err != nil {
			return d.fail(op, err)
		}
		heading := AngleFromDegrees(float64(theta))
		d.rec.Pose = Pose2D{X: x, Y: y, Heading: float32(heading)}
		d.rec.Orientation = heading.Yaw()
	case comm.OpSensorDeadReckoning:
		v, w, err := comm.DecodeFloatPair(reply)
		if err != nil {
			return d.fail(op, err)
		}
		d.rec.DeadReckoning = Twist2D{Linear: v, Angular: w}
	}
	d.step++
	return nil
}

// Fail spoils the cycle because the exchange for op didn't happen.
func (d *Decoder) Fail(op comm.Opcode, err error) {
	if d.err == nil {
		d.fail(op, err)
	}
}

// End closes the cycle and advances the sequence whatever the outcome.
// A spoiled or short cycle returns a *CycleError and no record.
func (d *Decoder) End() (Record, error) {
	seq := d.seq.Add(1)
	defer d.Begin()
	if d.err != nil {
		return Record{}, &CycleError{Sequence: seq, Op: d.failedOp, Err: d.err}
	}
	if next, ok := d.Expected(); ok {
		return Record{}, &CycleError{Sequence: seq, Op: next, Err: ErrIncomplete}
	}
	rec := d.rec
	rec.Sequence = seq
	rec.Time = d.Now()
	return rec, nil
}

func (d *Decoder) fail(op comm.Opcode, err error) error {
	d.err, d.failedOp = err, op
	return err
}

func degToRad(v float32) float32 {
	return float32(float64(v) * math.Pi / 180)
}
