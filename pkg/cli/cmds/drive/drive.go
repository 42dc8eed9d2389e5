// Package drive adds velocity commands to the shell.
package drive

import (
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/mattbot/mcucomms/pkg/cli/sh"
	"github.com/mattbot/mcucomms/pkg/l0/comm"
	"github.com/mattbot/mcucomms/pkg/l0/telemetry"
)

func parseFloat(name, arg string) (float32, error) {
	val, err := strconv.ParseFloat(arg, 32)
	if err != nil {
		return 0, fmt.Errorf("Invalid %s: %v", name, err)
	}
	return float32(val), nil
}

func send(c *ishell.Context, cmd comm.VelocityCommand) {
	if err := sh.ShellFrom(c).Env.Session.SendVelocity(cmd); err != nil {
		c.Err(err)
		return
	}
	c.Println("OK")
}

var (
	// VelocityCmd sends a velocity command.
	VelocityCmd = ishell.Cmd{
		Name:    "vel",
		Aliases: []string{"v"},
		Help:    "LINEAR(m/s) [ANGULAR(rad/s)]",
		Func: sh.MustBeStarted(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("LINEAR required"))
				return
			}
			var cmd comm.VelocityCommand
			var err error
			if cmd.Linear, err = parseFloat("LINEAR", c.Args[0]); err != nil {
				c.Err(err)
				return
			}
			if len(c.Args) > 1 {
				if cmd.Angular, err = parseFloat("ANGULAR", c.Args[1]); err != nil {
					c.Err(err)
					return
				}
			}
			send(c, cmd)
		}),
	}

	// TurnCmd turns in place.
	TurnCmd = ishell.Cmd{
		Name:    "turn",
		Aliases: []string{"t"},
		Help:    "SPEED(degrees/s)",
		Func: sh.MustBeStarted(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("SPEED required"))
				return
			}
			speed, err := parseFloat("SPEED", c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			send(c, comm.VelocityCommand{
				Angular: float32(telemetry.AngleFromDegrees(float64(speed)).Radians()),
			})
		}),
	}

	// StopCmd stops the robot.
	StopCmd = ishell.Cmd{
		Name:    "stop",
		Aliases: []string{"s"},
		Help:    "",
		Func: sh.MustBeStarted(func(c *ishell.Context) {
			send(c, comm.VelocityCommand{})
		}),
	}

	// PoseCmd prints the last pose reported by the MCU.
	PoseCmd = ishell.Cmd{
		Name:    "pose",
		Aliases: []string{"p"},
		Help:    "",
		Func: sh.MustBeStarted(func(c *ishell.Context) {
			stats := sh.ShellFrom(c).Env.Recorder.Stats()
			if stats.Completed == 0 {
				c.Err(fmt.Errorf("no telemetry yet"))
				return
			}
			rec := stats.Last
			sh.Print(c, poseReport{
				Sequence: rec.Sequence,
				X:        float64(rec.Pose.X),
				Y:        float64(rec.Pose.Y),
				Heading:  telemetry.Angle(rec.Pose.Heading).Degrees(),
			})
		}),
	}
)

type poseReport struct {
	Sequence uint64  `json:"seq"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Heading  float64 `json:"heading_deg"`
}

func (p poseReport) String() string {
	return fmt.Sprintf("#%d x=%.3f y=%.3f heading=%.1f°", p.Sequence, p.X, p.Y, p.Heading)
}

func init() {
	sh.AddCmds(
		&VelocityCmd,
		&TurnCmd,
		&StopCmd,
		&PoseCmd,
	)
}
