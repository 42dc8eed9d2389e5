package comm

import (
	"encoding/binary"
	"math"
)

// Payload offsets and minimum lengths.
const (
	payloadOffset = 1
	fieldSize     = 4

	// TripletLen is the minimum reply length carrying three float fields.
	TripletLen = payloadOffset + 3*fieldSize
	// PairLen is the minimum reply length carrying two float fields.
	PairLen = payloadOffset + 2*fieldSize
	// HandshakeLen is the minimum reply length for a bring-up probe.
	HandshakeLen = 3
)

// PutFloat32 writes v big-endian into b[0:4].
func PutFloat32(b []byte, v float32) {
	binary.BigEndian.PutUint32(b, math.Float32bits(v))
}

// Float32 reads a big-endian float from b[0:4].
func Float32(b []byte) float32 {
	return math.Float32frombits(binary.BigEndian.Uint32(b))
}

// DecodeFloatTriplet reads three fields starting at byte 1.
// Used for SENSOR_ACCEL, SENSOR_GYRO and SENSOR_POSITION replies.
func DecodeFloatTriplet(b []byte) (x, y, z float32, err error) {
	if len(b) < TripletLen {
		err = truncated(TripletLen, len(b))
		return
	}
	x = Float32(b[payloadOffset:])
	y = Float32(b[payloadOffset+fieldSize:])
	z = Float32(b[payloadOffset+2*fieldSize:])
	return
}

// DecodeFloatPair reads two fields starting at byte 1.
// Used for SENSOR_DEAD_RECKONING replies.
func DecodeFloatPair(b []byte) (v, w float32, err error) {
	if len(b) < PairLen {
		err = truncated(PairLen, len(b))
		return
	}
	v = Float32(b[payloadOffset:])
	w = Float32(b[payloadOffset+fieldSize:])
	return
}

// HandshakeStatus is the interpretation of a reply to PING.
type HandshakeStatus int

// Handshake status
const (
	// HandshakePending means the MCU is not booted or not answering yet.
	HandshakePending HandshakeStatus = iota
	// HandshakeConfirmed means the MCU echoed the confirmation pattern.
	HandshakeConfirmed
)

// String implements fmt.Stringer.
func (s HandshakeStatus) String() string {
	if s == HandshakeConfirmed {
		return "confirmed"
	}
	return "pending"
}

// confirmPattern is what a booted MCU shifts out in reply to PING.
var confirmPattern = [HandshakeLen]byte{0, 0xff, 0}

// DecodeHandshakeReply checks bytes 0..2 against the confirmation pattern.
func DecodeHandshakeReply(b []byte) (HandshakeStatus, error) {
	if len(b) < HandshakeLen {
		return HandshakePending, truncated(HandshakeLen, len(b))
	}
	if b[0] == confirmPattern[0] && b[1] == confirmPattern[1] && b[2] == confirmPattern[2] {
		return HandshakeConfirmed, nil
	}
	return HandshakePending, nil
}

// CheckWidth validates a received frame has exactly FrameSize bytes.
func CheckWidth(b []byte) error {
	switch {
	case len(b) < FrameSize:
		return truncated(FrameSize, len(b))
	case len(b) > FrameSize:
		return &DecodeError{Err: ErrFrameWidth, Need: FrameSize, Got: len(b)}
	}
	return nil
}

func truncated(need, got int) error {
	return &DecodeError{Err: ErrTruncated, Need: need, Got: got}
}
