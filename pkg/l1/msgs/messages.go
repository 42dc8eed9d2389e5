package msgs

import (
	"github.com/golang/protobuf/proto"
)

// Header stamps a message.
type Header struct {
	Seq     uint64 `protobuf:"varint,1,opt,name=seq,proto3" json:"seq,omitempty"`
	Stamp   int64  `protobuf:"varint,2,opt,name=stamp,proto3" json:"stamp,omitempty"`
	FrameID string `protobuf:"bytes,3,opt,name=frame_id,proto3" json:"frame_id,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Header) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Header) Reset() { *m = Header{} }

// String implements proto.Message.
func (m *Header) String() string { return proto.CompactTextString(m) }

// Vector3 is a 3-axis quantity.
type Vector3 struct {
	X float32 `protobuf:"fixed32,1,opt,name=x,proto3" json:"x,omitempty"`
	Y float32 `protobuf:"fixed32,2,opt,name=y,proto3" json:"y,omitempty"`
	Z float32 `protobuf:"fixed32,3,opt,name=z,proto3" json:"z,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Vector3) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Vector3) Reset() { *m = Vector3{} }

// String implements proto.Message.
func (m *Vector3) String() string { return proto.CompactTextString(m) }

// Quaternion is an orientation.
type Quaternion struct {
	X float32 `protobuf:"fixed32,1,opt,name=x,proto3" json:"x,omitempty"`
	Y float32 `protobuf:"fixed32,2,opt,name=y,proto3" json:"y,omitempty"`
	Z float32 `protobuf:"fixed32,3,opt,name=z,proto3" json:"z,omitempty"`
	W float32 `protobuf:"fixed32,4,opt,name=w,proto3" json:"w,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Quaternion) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Quaternion) Reset() { *m = Quaternion{} }

// String implements proto.Message.
func (m *Quaternion) String() string { return proto.CompactTextString(m) }

// Odometry is the pose and velocity estimate of the base.
type Odometry struct {
	Header       *Header     `protobuf:"bytes,1,opt,name=header,proto3" json:"header,omitempty"`
	ChildFrameID string      `protobuf:"bytes,2,opt,name=child_frame_id,proto3" json:"child_frame_id,omitempty"`
	Position     *Vector3    `protobuf:"bytes,3,opt,name=position,proto3" json:"position,omitempty"`
	Orientation  *Quaternion `protobuf:"bytes,4,opt,name=orientation,proto3" json:"orientation,omitempty"`
	Linear       float32     `protobuf:"fixed32,5,opt,name=linear,proto3" json:"linear,omitempty"`
	Angular      float32     `protobuf:"fixed32,6,opt,name=angular,proto3" json:"angular,omitempty"`
}

// TypeID implements SerializableMessage.
func (m *Odometry) TypeID() uint32 { return OdometryTypeID }

// NewMessage implements SerializableMessage.
func (m *Odometry) NewMessage() SerializableMessage { return &Odometry{} }

// ProtoMessage implements proto.Message.
func (m *Odometry) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Odometry) Reset() { *m = Odometry{} }

// String implements proto.Message.
func (m *Odometry) String() string { return proto.CompactTextString(m) }

// Imu is the inertial measurement.
type Imu struct {
	Header             *Header     `protobuf:"bytes,1,opt,name=header,proto3" json:"header,omitempty"`
	Orientation        *Quaternion `protobuf:"bytes,2,opt,name=orientation,proto3" json:"orientation,omitempty"`
	AngularVelocity    *Vector3    `protobuf:"bytes,3,opt,name=angular_velocity,proto3" json:"angular_velocity,omitempty"`
	LinearAcceleration *Vector3    `protobuf:"bytes,4,opt,name=linear_acceleration,proto3" json:"linear_acceleration,omitempty"`
}

// TypeID implements SerializableMessage.
func (m *Imu) TypeID() uint32 { return ImuTypeID }

// NewMessage implements SerializableMessage.
func (m *Imu) NewMessage() SerializableMessage { return &Imu{} }

// ProtoMessage implements proto.Message.
func (m *Imu) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Imu) Reset() { *m = Imu{} }

// String implements proto.Message.
func (m *Imu) String() string { return proto.CompactTextString(m) }

// Transform relates the base to the odometry frame.
type Transform struct {
	Header       *Header     `protobuf:"bytes,1,opt,name=header,proto3" json:"header,omitempty"`
	ChildFrameID string      `protobuf:"bytes,2,opt,name=child_frame_id,proto3" json:"child_frame_id,omitempty"`
	Translation  *Vector3    `protobuf:"bytes,3,opt,name=translation,proto3" json:"translation,omitempty"`
	Rotation     *Quaternion `protobuf:"bytes,4,opt,name=rotation,proto3" json:"rotation,omitempty"`
}

// TypeID implements SerializableMessage.
func (m *Transform) TypeID() uint32 { return TransformTypeID }

// NewMessage implements SerializableMessage.
func (m *Transform) NewMessage() SerializableMessage { return &Transform{} }

// ProtoMessage implements proto.Message.
func (m *Transform) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Transform) Reset() { *m = Transform{} }

// String implements proto.Message.
func (m *Transform) String() string { return proto.CompactTextString(m) }

// CycleError reports a discarded poll cycle.
type CycleError struct {
	Seq    uint64 `protobuf:"varint,1,opt,name=seq,proto3" json:"seq,omitempty"`
	Reason string `protobuf:"bytes,2,opt,name=reason,proto3" json:"reason,omitempty"`
	Stamp  int64  `protobuf:"varint,3,opt,name=stamp,proto3" json:"stamp,omitempty"`
}

// TypeID implements SerializableMessage.
func (m *CycleError) TypeID() uint32 { return CycleErrorTypeID }

// NewMessage implements SerializableMessage.
func (m *CycleError) NewMessage() SerializableMessage { return &CycleError{} }

// ProtoMessage implements proto.Message.
func (m *CycleError) ProtoMessage() {}

// Reset implements proto.Message.
func (m *CycleError) Reset() { *m = CycleError{} }

// String implements proto.Message.
func (m *CycleError) String() string { return proto.CompactTextString(m) }

// VelocityCmd is a drive setpoint.
type VelocityCmd struct {
	Linear  float32 `protobuf:"fixed32,1,opt,name=linear,proto3" json:"linear,omitempty"`
	Angular float32 `protobuf:"fixed32,2,opt,name=angular,proto3" json:"angular,omitempty"`
}

// TypeID implements SerializableMessage.
func (m *VelocityCmd) TypeID() uint32 { return VelocityCmdTypeID }

// NewMessage implements SerializableMessage.
func (m *VelocityCmd) NewMessage() SerializableMessage { return &VelocityCmd{} }

// ProtoMessage implements proto.Message.
func (m *VelocityCmd) ProtoMessage() {}

// Reset implements proto.Message.
func (m *VelocityCmd) Reset() { *m = VelocityCmd{} }

// String implements proto.Message.
func (m *VelocityCmd) String() string { return proto.CompactTextString(m) }

// LinkStatus is the link state, published retained.
type LinkStatus struct {
	State  string `protobuf:"bytes,1,opt,name=state,proto3" json:"state,omitempty"`
	Stamp  int64  `protobuf:"varint,2,opt,name=stamp,proto3" json:"stamp,omitempty"`
	Online bool   `protobuf:"varint,3,opt,name=online,proto3" json:"online,omitempty"`
}

// TypeID implements SerializableMessage.
func (m *LinkStatus) TypeID() uint32 { return LinkStatusTypeID }

// NewMessage implements SerializableMessage.
func (m *LinkStatus) NewMessage() SerializableMessage { return &LinkStatus{} }

// ProtoMessage implements proto.Message.
func (m *LinkStatus) ProtoMessage() {}

// Reset implements proto.Message.
func (m *LinkStatus) Reset() { *m = LinkStatus{} }

// String implements proto.Message.
func (m *LinkStatus) String() string { return proto.CompactTextString(m) }

// TypeID Groups
const (
	GroupTelemetry uint32 = 0x00010000
	GroupCommand   uint32 = 0x00020000
	GroupStatus    uint32 = 0x00030000
)

// TypeIDs
const (
	OdometryTypeID    uint32 = TypeIDKindEvent | GroupTelemetry | 0x0000
	ImuTypeID         uint32 = TypeIDKindEvent | GroupTelemetry | 0x0001
	TransformTypeID   uint32 = TypeIDKindEvent | GroupTelemetry | 0x0002
	CycleErrorTypeID  uint32 = TypeIDKindEvent | GroupTelemetry | 0x0003
	VelocityCmdTypeID uint32 = TypeIDKindCommand | GroupCommand | 0x0000
	LinkStatusTypeID  uint32 = TypeIDKindEvent | GroupStatus | 0x0000
)
