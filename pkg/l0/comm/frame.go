package comm

import (
	"fmt"
	"math"
)

// FrameSize is the width of every frame on the bus.
// Earlier firmware used 5 and 8 byte frames which are not wire compatible.
const FrameSize = 16

// Frame is one fixed-width transfer unit.
type Frame [FrameSize]byte

// Opcode is the first byte of a host frame.
type Opcode byte

// Opcodes
const (
	OpVelocity            Opcode = 0
	OpSensorSetup         Opcode = 1
	OpSensorAccel         Opcode = 2
	OpSensorGyro          Opcode = 3
	OpSensorPosition      Opcode = 4
	OpSensorDeadReckoning Opcode = 5
	// OpLink carries bring-up and shutdown frames, byte 1 is a LinkCode.
	OpLink Opcode = 99
)

// LinkCode is the sentinel in byte 1 of an OpLink frame.
type LinkCode byte

// Link codes
const (
	LinkPing     LinkCode = 0xff
	LinkAck      LinkCode = 0xaa
	LinkShutdown LinkCode = 0xf0
)

// PollSequence is the order of exchanges in one telemetry poll cycle.
var PollSequence = [...]Opcode{
	OpSensorSetup,
	OpSensorAccel,
	OpSensorGyro,
	OpSensorPosition,
	OpSensorDeadReckoning,
}

var opcodeNames = map[Opcode]string{
	OpVelocity:            "VELOCITY",
	OpSensorSetup:         "SENSOR_SETUP",
	OpSensorAccel:         "SENSOR_ACCEL",
	OpSensorGyro:          "SENSOR_GYRO",
	OpSensorPosition:      "SENSOR_POSITION",
	OpSensorDeadReckoning: "SENSOR_DEAD_RECKONING",
	OpLink:                "LINK",
}

// String implements fmt.Stringer.
func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("OPCODE(%d)", byte(o))
}

// IsPoll indicates the opcode elicits a sensor reply.
func (o Opcode) IsPoll() bool {
	return o >= OpSensorSetup && o <= OpSensorDeadReckoning
}

// String implements fmt.Stringer.
func (c LinkCode) String() string {
	switch c {
	case LinkPing:
		return "PING"
	case LinkAck:
		return "ACK"
	case LinkShutdown:
		return "SHUTDOWN"
	}
	return fmt.Sprintf("LINK(0x%02x)", byte(c))
}

// Opcode gets the opcode of the frame.
func (f Frame) Opcode() Opcode {
	return Opcode(f[0])
}

// Bytes returns the frame as a slice sharing the same storage.
func (f *Frame) Bytes() []byte {
	return f[:]
}

// String implements fmt.Stringer.
func (f Frame) String() string {
	return fmt.Sprintf("%s % x", f.Opcode(), f[1:])
}

// VelocityCommand is a drive setpoint in m/s and rad/s.
type VelocityCommand struct {
	Linear  float32 `json:"linear_velocity" yaml:"linear_velocity"`
	Angular float32 `json:"angular_velocity" yaml:"angular_velocity"`
}

// EncodeVelocity builds a VELOCITY frame.
// Non-finite values are rejected rather than sent to the motors.
func EncodeVelocity(cmd VelocityCommand) (f Frame, err error) {
	if !finite(cmd.Linear) {
		return f, &EncodeError{Field: "linear_velocity", Value: cmd.Linear}
	}
	if !finite(cmd.Angular) {
		return f, &EncodeError{Field: "angular_velocity", Value: cmd.Angular}
	}
	f[0] = byte(OpVelocity)
	PutFloat32(f[1:], cmd.Linear)
	PutFloat32(f[5:], cmd.Angular)
	return f, nil
}

// EncodePoll builds a payload-less frame for a sensor poll.
func EncodePoll(op Opcode) (f Frame) {
	f[0] = byte(op)
	return
}

// EncodeLink builds a bring-up or shutdown frame.
func EncodeLink(code LinkCode) (f Frame) {
	f[0], f[1] = byte(OpLink), byte(code)
	return
}

func finite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}
