package mqtt

import (
	"context"

	"github.com/golang/glog"

	"github.com/mattbot/mcucomms/pkg/l0/comm"
	"github.com/mattbot/mcucomms/pkg/l1/msgs"
)

// Commander accepts velocity commands, link.Session is one.
type Commander interface {
	SendVelocity(comm.VelocityCommand) error
}

// CommandSubscriber feeds velocity commands from cmd_vel into a Commander.
type CommandSubscriber struct {
	Queue     *Queue
	Topics    Topics
	Commander Commander
}

// Run implements framework.Runnable.
func (s *CommandSubscriber) Run(ctx context.Context) error {
	sub := s.Queue.Sub(s.Topics.CmdVel(), Handler(s.HandleMessage))
	defer sub.Close()
	<-ctx.Done()
	return ctx.Err()
}

// HandleMessage decodes a VelocityCmd and forwards it.
// Bad payloads and refused commands are logged and dropped.
func (s *CommandSubscriber) HandleMessage(topic string, payload []byte) {
	var cmd msgs.VelocityCmd
	if err := msgs.UnmarshalInto(payload, &cmd); err != nil {
		glog.Warningf("MQTT %s: invalid command: %v", topic, err)
		return
	}
	if err := s.Commander.SendVelocity(cmd.Command()); err != nil {
		glog.V(1).Infof("MQTT %s: command refused: %v", topic, err)
	}
}

// CommandPublisher sends velocity commands to a remote robot's cmd_vel.
type CommandPublisher struct {
	Publisher Publisher
	Topics    Topics
}

// SendVelocity implements Commander. It doesn't wait for the broker.
func (p *CommandPublisher) SendVelocity(cmd comm.VelocityCommand) error {
	payload, err := msgs.Marshal(&msgs.VelocityCmd{Linear: cmd.Linear, Angular: cmd.Angular})
	if err != nil {
		return err
	}
	p.Publisher.PubWith(p.Topics.CmdVel(), payload, QoSTelemetry, false)
	return nil
}
