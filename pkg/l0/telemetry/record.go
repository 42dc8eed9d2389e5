// Package telemetry turns polled sensor replies into typed records.
package telemetry

import (
	"fmt"
	"time"
)

// Frame IDs attached to published records.
const (
	FrameOdom          = "odom"
	FrameBaseFootprint = "base_footprint"
	FrameGyro          = "gyro_link"
)

// Vector3 is a 3-axis quantity.
type Vector3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Pose2D is a planar pose in metres, heading in radians.
type Pose2D struct {
	X       float32 `json:"x"`
	Y       float32 `json:"y"`
	Heading float32 `json:"heading"`
}

// Quaternion is a unit orientation.
type Quaternion struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
	W float32 `json:"w"`
}

// Twist2D is a planar velocity in m/s and rad/s.
type Twist2D struct {
	Linear  float32 `json:"linear"`
	Angular float32 `json:"angular"`
}

// Record is the result of one complete poll cycle.
type Record struct {
	Sequence uint64    `json:"seq"`
	Time     time.Time `json:"time"`
	// Acceleration in m/s².
	Acceleration Vector3 `json:"acceleration"`
	// AngularRate in rad/s.
	AngularRate   Vector3    `json:"angular_rate"`
	Pose          Pose2D     `json:"pose"`
	Orientation   Quaternion `json:"orientation"`
	DeadReckoning Twist2D    `json:"dead_reckoning"`
}

// String implements fmt.Stringer.
func (r Record) String() string {
	return fmt.Sprintf("#%d accel=(%.3f,%.3f,%.3f) gyro=(%.3f,%.3f,%.3f) pose=(%.3f,%.3f,%.3f) vel=(%.3f,%.3f)",
		r.Sequence,
		r.Acceleration.X, r.Acceleration.Y, r.Acceleration.Z,
		r.AngularRate.X, r.AngularRate.Y, r.AngularRate.Z,
		r.Pose.X, r.Pose.Y, r.Pose.Heading,
		r.DeadReckoning.Linear, r.DeadReckoning.Angular)
}
