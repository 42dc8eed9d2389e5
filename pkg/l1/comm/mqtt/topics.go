package mqtt

// Topic names under a robot.
const (
	TopicOdom   = "odom"
	TopicImu    = "imu"
	TopicTF     = "tf"
	TopicErrors = "errors"
	TopicStatus = "status"
	TopicCmdVel = "cmd_vel"
)

// Topics builds the topics of one robot, relative to the queue prefix.
type Topics struct {
	Robot string
}

// Topic returns the robot scoped topic.
func (t Topics) Topic(name string) string {
	return t.Robot + "/" + name
}

// Odom is where odometry is published.
func (t Topics) Odom() string { return t.Topic(TopicOdom) }

// Imu is where IMU readings are published.
func (t Topics) Imu() string { return t.Topic(TopicImu) }

// TF is where the odom to base transform is published.
func (t Topics) TF() string { return t.Topic(TopicTF) }

// Errors is where discarded cycles are reported.
func (t Topics) Errors() string { return t.Topic(TopicErrors) }

// Status is the retained link status.
func (t Topics) Status() string { return t.Topic(TopicStatus) }

// CmdVel receives velocity commands.
func (t Topics) CmdVel() string { return t.Topic(TopicCmdVel) }
