// Package joystick drives the robot from a gamepad.
package joystick

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/mattbot/mcucomms/pkg/joystick/device"
	"github.com/mattbot/mcucomms/pkg/l0/comm"
)

// Commander accepts velocity commands.
type Commander interface {
	SendVelocity(comm.VelocityCommand) error
}

// Teleop turns joystick events into velocity commands.
type Teleop struct {
	Config    Config
	Commander Commander
	// Open opens the device, defaults to the system joystick.
	Open func(index int) (device.Device, error)
	// RetryInterval between attempts to find a device.
	RetryInterval time.Duration

	axes    map[int]int16
	stopped bool
	last    comm.VelocityCommand
}

// NewTeleop creates a Teleop.
func NewTeleop(conf Config, cmdr Commander) *Teleop {
	return &Teleop{
		Config:        conf,
		Commander:     cmdr,
		Open:          openDevice,
		RetryInterval: time.Second,
	}
}

func openDevice(index int) (device.Device, error) {
	if index >= 0 {
		return device.Open(index)
	}
	return device.DetectAndOpen(0)
}

// Run implements framework.Runnable. A lost device stops the robot
// and is searched for again.
func (t *Teleop) Run(ctx context.Context) error {
	retry := time.NewTimer(0)
	defer retry.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-retry.C:
		}
		dev, err := t.Open(t.Config.DeviceIndex)
		if err != nil {
			glog.V(1).Infof("JOYSTICK open: %v", err)
		}
		if dev == nil {
			retry.Reset(t.RetryInterval)
			continue
		}
		glog.Infof("JOYSTICK %d %q opened", dev.Index(), dev.Name())
		t.serve(ctx, dev)
		t.reset()
		retry.Reset(t.RetryInterval)
	}
}

func (t *Teleop) serve(ctx context.Context, dev device.Device) {
	evCh := make(chan device.Event)
	errCh := make(chan error, 1)
	go func() {
		for {
			ev, err := dev.ReadEvent()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case evCh <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	// closing unblocks ReadEvent
	defer dev.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			glog.Warningf("JOYSTICK %d lost: %v", dev.Index(), err)
			return
		case ev := <-evCh:
			t.HandleEvent(ev)
		}
	}
}

// HandleEvent updates the stick state and sends the resulting command
// when it changed.
func (t *Teleop) HandleEvent(ev device.Event) {
	if t.Config.Verbose {
		glog.Infof("JOYSTICK %+v", ev)
	}
	switch ev.Kind {
	case device.KindAxis:
		if t.axes == nil {
			t.axes = make(map[int]int16)
		}
		t.axes[ev.Index] = ev.Value
	case device.KindButton:
		if ev.Index != t.Config.StopButton {
			return
		}
		t.stopped = ev.Pressed()
	default:
		return
	}
	cmd := t.Command()
	if cmd == t.last && !ev.Init {
		return
	}
	t.send(cmd)
}

// Command computes the velocity from the current stick state.
func (t *Teleop) Command() comm.VelocityCommand {
	if t.stopped {
		return comm.VelocityCommand{}
	}
	return comm.VelocityCommand{
		Linear:  -t.Config.MaxLinear * t.axis(t.Config.LinearAxis),
		Angular: -t.Config.MaxAngular * t.axis(t.Config.AngularAxis),
	}
}

func (t *Teleop) axis(index int) float32 {
	val := float32(t.axes[index]) / device.AxisMax
	if val > 1 {
		val = 1
	} else if val < -1 {
		val = -1
	}
	dz := t.Config.Deadzone
	switch {
	case val > dz:
		return (val - dz) / (1 - dz)
	case val < -dz:
		return (val + dz) / (1 - dz)
	}
	return 0
}

func (t *Teleop) reset() {
	t.axes, t.stopped = nil, false
	t.send(comm.VelocityCommand{})
}

func (t *Teleop) send(cmd comm.VelocityCommand) {
	t.last = cmd
	if err := t.Commander.SendVelocity(cmd); err != nil {
		glog.V(1).Infof("JOYSTICK command refused: %v", err)
	}
}
