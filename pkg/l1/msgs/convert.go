package msgs

import (
	"time"

	"github.com/mattbot/mcucomms/pkg/l0/comm"
	"github.com/mattbot/mcucomms/pkg/l0/link"
	"github.com/mattbot/mcucomms/pkg/l0/telemetry"
)

func header(rec telemetry.Record, frameID string) *Header {
	return &Header{Seq: rec.Sequence, Stamp: rec.Time.UnixNano(), FrameID: frameID}
}

func quaternion(q telemetry.Quaternion) *Quaternion {
	return &Quaternion{X: q.X, Y: q.Y, Z: q.Z, W: q.W}
}

func vector3(v telemetry.Vector3) *Vector3 {
	return &Vector3{X: v.X, Y: v.Y, Z: v.Z}
}

// OdometryFrom builds the odometry message of a record.
func OdometryFrom(rec telemetry.Record) *Odometry {
	return &Odometry{
		Header:       header(rec, telemetry.FrameOdom),
		ChildFrameID: telemetry.FrameBaseFootprint,
		Position:     &Vector3{X: rec.Pose.X, Y: rec.Pose.Y},
		Orientation:  quaternion(rec.Orientation),
		Linear:       rec.DeadReckoning.Linear,
		Angular:      rec.DeadReckoning.Angular,
	}
}

// ImuFrom builds the IMU message of a record.
func ImuFrom(rec telemetry.Record) *Imu {
	return &Imu{
		Header:             header(rec, telemetry.FrameGyro),
		Orientation:        quaternion(rec.Orientation),
		AngularVelocity:    vector3(rec.AngularRate),
		LinearAcceleration: vector3(rec.Acceleration),
	}
}

// TransformFrom builds the odom to base transform of a record.
func TransformFrom(rec telemetry.Record) *Transform {
	return &Transform{
		Header:       header(rec, telemetry.FrameOdom),
		ChildFrameID: telemetry.FrameBaseFootprint,
		Translation:  &Vector3{X: rec.Pose.X, Y: rec.Pose.Y},
		Rotation:     quaternion(rec.Orientation),
	}
}

// CycleErrorFrom builds the message for a discarded cycle.
func CycleErrorFrom(seq uint64, reason error, at time.Time) *CycleError {
	msg := &CycleError{Seq: seq, Stamp: at.UnixNano()}
	if reason != nil {
		msg.Reason = reason.Error()
	}
	return msg
}

// LinkStatusFrom builds the status message for a state.
func LinkStatusFrom(state link.State, at time.Time) *LinkStatus {
	return &LinkStatus{
		State:  state.String(),
		Stamp:  at.UnixNano(),
		Online: state != link.Closed,
	}
}

// Command converts to the link command.
func (m *VelocityCmd) Command() comm.VelocityCommand {
	return comm.VelocityCommand{Linear: m.Linear, Angular: m.Angular}
}
