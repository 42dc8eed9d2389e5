package link

import (
	"github.com/mattbot/mcucomms/pkg/l0/comm"
)

// CommandSource is read by the bus owner for the newest pending command.
type CommandSource interface {
	// LatestVelocity returns the pending command and clears it.
	LatestVelocity() (comm.VelocityCommand, bool)
}

// CommandSlot is a depth-1 latest-value channel. Producers never block:
// a newer command replaces an undelivered one.
type CommandSlot struct {
	ch chan comm.VelocityCommand
}

// NewCommandSlot creates an empty slot.
func NewCommandSlot() *CommandSlot {
	return &CommandSlot{ch: make(chan comm.VelocityCommand, 1)}
}

// Offer validates and stores cmd, replacing any pending one.
// An invalid command is rejected and the pending one is kept.
func (s *CommandSlot) Offer(cmd comm.VelocityCommand) error {
	if _, err := comm.EncodeVelocity(cmd); err != nil {
		return err
	}
	for {
		select {
		case s.ch <- cmd:
			return nil
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// LatestVelocity implements CommandSource.
func (s *CommandSlot) LatestVelocity() (comm.VelocityCommand, bool) {
	select {
	case cmd := <-s.ch:
		return cmd, true
	default:
		return comm.VelocityCommand{}, false
	}
}

// C exposes the slot for select.
func (s *CommandSlot) C() <-chan comm.VelocityCommand {
	return s.ch
}

// Clear drops any pending command.
func (s *CommandSlot) Clear() {
	s.LatestVelocity()
}
