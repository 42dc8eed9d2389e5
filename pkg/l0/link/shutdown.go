package link

import (
	"context"
	"errors"

	"github.com/golang/glog"

	"github.com/mattbot/mcucomms/pkg/framework"
	"github.com/mattbot/mcucomms/pkg/l0/comm"
)

// shutdownRepeat is how many SHUTDOWN frames are sent. The MCU doesn't
// acknowledge, the second covers a lost first.
const shutdownRepeat = 2

// Shutdown stops Run, sends SHUTDOWN and releases the bus.
// It waits for an in-progress frame but preempts a poll cycle between
// frames. Calls after the first return ErrClosed.
func (s *Session) Shutdown() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.owner
	defer func() { s.owner <- struct{}{} }()

	switch s.State() {
	case ShuttingDown, Closed:
		return ErrClosed
	}
	s.setState(ShuttingDown)
	s.slot.Clear()

	var errs framework.AggregatedError
	frame := comm.EncodeLink(comm.LinkShutdown)
	for i := 0; i < shutdownRepeat; i++ {
		// the run context is gone by now
		if _, err := s.transfer(context.Background(), frame); err != nil {
			errs.Add(err)
		}
	}
	errs.Add(s.transport.Close())
	s.setState(Closed)
	if err := errs.Aggregate(); err != nil {
		glog.Warningf("LINK shutdown: %v", err)
		return err
	}
	glog.Info("LINK closed")
	return nil
}

// Close implements io.Closer. Unlike Shutdown it's quiet when already closed,
// so it can be deferred on every exit path.
func (s *Session) Close() error {
	if err := s.Shutdown(); !errors.Is(err, ErrClosed) {
		return err
	}
	return nil
}
