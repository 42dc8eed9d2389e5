package joystick

import (
	"fmt"
	"math"
)

// Config maps joystick axes to a velocity command.
type Config struct {
	// Enabled runs the teleop in the daemon.
	Enabled bool `yaml:"enabled"`
	// DeviceIndex selects /dev/input/jsN, -1 for auto detection.
	DeviceIndex int `yaml:"device"`
	// LinearAxis drives forward, pushing the stick up is negative.
	LinearAxis int `yaml:"linear_axis"`
	// AngularAxis turns, pushing the stick left is negative.
	AngularAxis int `yaml:"angular_axis"`
	// StopButton zeroes the command while pressed, -1 for none.
	StopButton int `yaml:"stop_button"`
	// MaxLinear in m/s at full deflection.
	MaxLinear float32 `yaml:"max_linear"`
	// MaxAngular in rad/s at full deflection.
	MaxAngular float32 `yaml:"max_angular"`
	// Deadzone is the fraction of travel around center read as zero.
	Deadzone float32 `yaml:"deadzone"`
	// Verbose logs every event.
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns the mapping of a common gamepad left stick.
func DefaultConfig() Config {
	return Config{
		DeviceIndex: -1,
		LinearAxis:  1,
		AngularAxis: 0,
		StopButton:  0,
		MaxLinear:   0.5,
		MaxAngular:  math.Pi / 2,
		Deadzone:    0.05,
	}
}

// Validate checks the mapping.
func (c Config) Validate() error {
	if c.LinearAxis < 0 || c.AngularAxis < 0 || c.LinearAxis == c.AngularAxis {
		return fmt.Errorf("invalid axes %d/%d", c.LinearAxis, c.AngularAxis)
	}
	if c.MaxLinear < 0 || c.MaxAngular < 0 {
		return fmt.Errorf("negative max velocity")
	}
	if c.Deadzone < 0 || c.Deadzone >= 1 {
		return fmt.Errorf("deadzone %v out of [0, 1)", c.Deadzone)
	}
	return nil
}
