package telemetry

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattbot/mcucomms/pkg/l0/comm"
)

func triplet(a, b, c float32) []byte {
	var f comm.Frame
	comm.PutFloat32(f[1:], a)
	comm.PutFloat32(f[5:], b)
	comm.PutFloat32(f[9:], c)
	return f[:]
}

func pair(a, b float32) []byte {
	var f comm.Frame
	comm.PutFloat32(f[1:], a)
	comm.PutFloat32(f[5:], b)
	return f[:]
}

func cycleReplies() map[comm.Opcode][]byte {
	return map[comm.Opcode][]byte{
		comm.OpSensorSetup:         make([]byte, comm.FrameSize),
		comm.OpSensorAccel:         triplet(0, 0.5, 1),
		comm.OpSensorGyro:          triplet(180, 0, -90),
		comm.OpSensorPosition:      triplet(1.25, -2, 90),
		comm.OpSensorDeadReckoning: pair(0.4, -0.1),
	}
}

func runCycle(t *testing.T, d *Decoder, replies map[comm.Opcode][]byte) (Record, error) {
	d.Begin()
	for _, op := range comm.PollSequence {
		if err := d.Feed(op, replies[op]); err != nil {
			break
		}
	}
	return d.End()
}

func newTestDecoder(t *testing.T, unit AccelUnit) *Decoder {
	d, err := NewDecoder(unit)
	require.NoError(t, err)
	stamp := time.Unix(1700000000, 0)
	d.Now = func() time.Time { return stamp }
	return d
}

func TestDecoderCycle(t *testing.T) {
	d := newTestDecoder(t, AccelG)
	rec, err := runCycle(t, d, cycleReplies())
	require.NoError(t, err)

	assert.Equal(t, uint64(1), rec.Sequence)
	assert.Equal(t, time.Unix(1700000000, 0), rec.Time)
	assert.InDelta(t, 0, rec.Acceleration.X, 1e-6)
	assert.InDelta(t, 4.905, rec.Acceleration.Y, 1e-5)
	assert.InDelta(t, 9.81, rec.Acceleration.Z, 1e-5)
	assert.InDelta(t, math.Pi, rec.AngularRate.X, 1e-6)
	assert.InDelta(t, -math.Pi/2, rec.AngularRate.Z, 1e-6)
	assert.Equal(t, float32(1.25), rec.Pose.X)
	assert.Equal(t, float32(-2), rec.Pose.Y)
	assert.InDelta(t, math.Pi/2, rec.Pose.Heading, 1e-6)
	assert.InDelta(t, math.Sqrt2/2, rec.Orientation.Z, 1e-6)
	assert.InDelta(t, math.Sqrt2/2, rec.Orientation.W, 1e-6)
	assert.Equal(t, Twist2D{Linear: 0.4, Angular: -0.1}, rec.DeadReckoning)
}

func TestDecoderAccelPassThrough(t *testing.T) {
	d := newTestDecoder(t, AccelMPS2)
	rec, err := runCycle(t, d, cycleReplies())
	require.NoError(t, err)
	assert.Equal(t, Vector3{X: 0, Y: 0.5, Z: 1}, rec.Acceleration)
}

func TestDecoderUnknownUnit(t *testing.T) {
	_, err := NewDecoder("furlongs")
	assert.Error(t, err)
}

func TestDecoderTruncatedReply(t *testing.T) {
	d := newTestDecoder(t, AccelG)
	replies := cycleReplies()
	replies[comm.OpSensorGyro] = replies[comm.OpSensorGyro][:7]
	rec, err := runCycle(t, d, replies)
	require.Error(t, err)
	assert.ErrorIs(t, err, comm.ErrTruncated)
	var ce *CycleError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, uint64(1), ce.Sequence)
	assert.Equal(t, comm.OpSensorGyro, ce.Op)
	assert.Equal(t, Record{}, rec)

	// the next good cycle reveals the gap
	rec, err = runCycle(t, d, cycleReplies())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rec.Sequence)
}

func TestDecoderOutOfOrder(t *testing.T) {
	d := newTestDecoder(t, AccelG)
	d.Begin()
	require.NoError(t, d.Feed(comm.OpSensorSetup, make([]byte, comm.FrameSize)))
	err := d.Feed(comm.OpSensorGyro, triplet(0, 0, 0))
	assert.ErrorIs(t, err, ErrOutOfOrder)
	// spoiled: further replies are refused with the first error
	assert.ErrorIs(t, d.Feed(comm.OpSensorAccel, triplet(0, 0, 0)), ErrOutOfOrder)
	_, err = d.End()
	assert.ErrorIs(t, err, ErrOutOfOrder)
}

func TestDecoderIncomplete(t *testing.T) {
	d := newTestDecoder(t, AccelG)
	d.Begin()
	require.NoError(t, d.Feed(comm.OpSensorSetup, make([]byte, comm.FrameSize)))
	_, err := d.End()
	assert.ErrorIs(t, err, ErrIncomplete)
	var ce *CycleError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, comm.OpSensorAccel, ce.Op)
}

func TestDecoderFail(t *testing.T) {
	d := newTestDecoder(t, AccelG)
	d.Begin()
	cause := errors.New("bus timeout")
	d.Fail(comm.OpSensorSetup, cause)
	d.Fail(comm.OpSensorAccel, ErrAborted)
	_, err := d.End()
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrAborted)
}

func TestDecoderSequenceMonotonic(t *testing.T) {
	d := newTestDecoder(t, AccelG)
	bad := cycleReplies()
	bad[comm.OpSensorDeadReckoning] = bad[comm.OpSensorDeadReckoning][:4]
	const cycles = 25
	var last uint64
	for i := 0; i < cycles; i++ {
		replies := cycleReplies()
		if i%3 == 0 {
			replies = bad
		}
		rec, err := runCycle(t, d, replies)
		if err == nil {
			assert.Greater(t, rec.Sequence, last)
			last = rec.Sequence
		}
	}
	assert.Equal(t, uint64(cycles), d.Sequence())
}

func TestAngle(t *testing.T) {
	assert.InDelta(t, math.Pi, AngleFromDegrees(180).Radians(), 1e-12)
	assert.InDelta(t, 90, Angle(math.Pi/2).Degrees(), 1e-12)
	assert.InDelta(t, -math.Pi/2, AngleFromDegrees(270).Normalize().Radians(), 1e-12)
	assert.InDelta(t, math.Pi, AngleFromDegrees(-180).Normalize().Radians(), 1e-12)

	for _, deg := range []float64{0, 45, -45, 135, 179} {
		q := AngleFromDegrees(deg).Yaw()
		norm := math.Sqrt(float64(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W))
		assert.InDelta(t, 1, norm, 1e-6)
		assert.InDelta(t, deg, YawOf(q).Degrees(), 1e-4)
	}
}

func FuzzDecoderFeed(f *testing.F) {
	f.Add(byte(2), make([]byte, comm.FrameSize))
	f.Add(byte(4), []byte{1, 2, 3})
	f.Fuzz(func(t *testing.T, step byte, reply []byte) {
		d, err := NewDecoder(AccelG)
		if err != nil {
			t.Fatal(err)
		}
		d.Begin()
		for i, op := range comm.PollSequence {
			r := make([]byte, comm.FrameSize)
			if i == int(step)%len(comm.PollSequence) {
				r = reply
			}
			if d.Feed(op, r) != nil {
				break
			}
		}
		d.End()
		if d.Sequence() != 1 {
			t.Fatalf("sequence %d after one cycle", d.Sequence())
		}
	})
}
