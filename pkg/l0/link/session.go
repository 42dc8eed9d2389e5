package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"golang.org/x/time/rate"

	"github.com/mattbot/mcucomms/pkg/l0/bus"
	"github.com/mattbot/mcucomms/pkg/l0/comm"
	"github.com/mattbot/mcucomms/pkg/l0/telemetry"
)

// Session owns the bus transport and is the only caller of it.
// All frames go through the goroutine executing Run, or through
// Shutdown once Run has returned.
type Session struct {
	Config   Config
	Observer Observer

	transport bus.Transport
	decoder   *telemetry.Decoder
	sink      telemetry.Sink
	slot      *CommandSlot
	limiter   *rate.Limiter

	state    atomic.Int32
	probes   int
	failures int

	// owner holds the right to use the transport.
	owner    chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
	readyCh  chan struct{}
}

// errStopped ends bring-up when Shutdown is requested.
var errStopped = errors.New("stopped")

// NewSession creates a session owning transport. The decoder and sink
// receive every poll cycle.
func NewSession(transport bus.Transport, decoder *telemetry.Decoder, sink telemetry.Sink, conf Config) (*Session, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		Config:    conf,
		Observer:  NopObserver{},
		transport: transport,
		decoder:   decoder,
		sink:      sink,
		slot:      NewCommandSlot(),
		limiter:   conf.limiter(),
		owner:     make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		readyCh:   make(chan struct{}),
	}
	s.owner <- struct{}{}
	return s, nil
}

// State returns the current state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Sequence returns the number of poll cycles ended so far.
// It's safe to call while Run is polling.
func (s *Session) Sequence() uint64 {
	return s.decoder.Sequence()
}

// Ready is closed once the link is up.
func (s *Session) Ready() <-chan struct{} {
	return s.readyCh
}

// SendVelocity queues cmd for the bus, replacing any command not yet sent.
// It never blocks. A non-finite command is rejected and the pending one kept.
// Commands are refused until the link is up.
func (s *Session) SendVelocity(cmd comm.VelocityCommand) error {
	switch s.State() {
	case ShuttingDown, Closed:
		return ErrClosed
	case Uninitialized, Handshaking:
		return ErrNotReady
	}
	if err := s.slot.Offer(cmd); err != nil {
		s.Observer.CommandDropped(err)
		return err
	}
	return nil
}

// Run brings the link up and serves commands and polls until ctx is
// done or Shutdown is called. It doesn't shut the link down itself.
func (s *Session) Run(ctx context.Context) error {
	select {
	case <-s.owner:
	case <-s.stopCh:
		return ErrClosed
	}
	defer func() { s.owner <- struct{}{} }()
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	if s.State() != Uninitialized {
		return ErrClosed
	}
	s.setState(Handshaking)
	if err := s.handshake(ctx); err != nil {
		if err == errStopped {
			return nil
		}
		return err
	}
	s.setState(Ready)
	return s.serve(ctx)
}

func (s *Session) handshake(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return errStopped
		case <-timer.C:
		}
		confirmed, err := s.probe(ctx)
		if err != nil {
			return err
		}
		if confirmed {
			// the firmware falls back to inactive if ACK is lost,
			// so a failed ACK means probing again.
			_, err := s.transfer(ctx, comm.EncodeLink(comm.LinkAck))
			if err == nil {
				glog.Infof("LINK ready after %d probes", s.probes)
				return nil
			}
			glog.Warningf("LINK ACK failed: %v", err)
		}
		if s.Config.MaxProbes > 0 && s.probes >= s.Config.MaxProbes {
			return fmt.Errorf("%w after %d probes", ErrBringUpExhausted, s.probes)
		}
		timer.Reset(s.Config.ProbeInterval)
	}
}

func (s *Session) probe(ctx context.Context) (bool, error) {
	s.probes++
	reply, err := s.transfer(ctx, comm.EncodeLink(comm.LinkPing))
	status := comm.HandshakePending
	if err == nil {
		status, err = comm.DecodeHandshakeReply(reply)
	}
	s.Observer.Probed(s.probes, status, err)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	if status == comm.HandshakeConfirmed {
		return true, nil
	}
	if n := s.Config.ProbeLogEvery; n > 0 && s.probes%n == 0 {
		if err != nil {
			glog.Warningf("LINK no answer after %d probes: %v", s.probes, err)
		} else {
			glog.Warningf("LINK no answer after %d probes, last reply % x", s.probes, reply[:comm.HandshakeLen])
		}
	}
	return false, nil
}

func (s *Session) serve(ctx context.Context) error {
	ticker := time.NewTicker(s.Config.PollInterval)
	defer ticker.Stop()

	var (
		held   comm.VelocityCommand
		paceC  <-chan time.Time
		paceTm *time.Timer
	)
	defer func() {
		if paceTm != nil {
			paceTm.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case cmd := <-s.slot.C():
			if s.limiter != nil {
				held = cmd
				if paceC != nil {
					// newest command wins while waiting for the limiter
					continue
				}
				if d := s.limiter.Reserve().Delay(); d > 0 {
					paceTm = time.NewTimer(d)
					paceC = paceTm.C
					continue
				}
			}
			if err := s.sendVelocity(ctx, cmd); err != nil {
				return err
			}
		case <-paceC:
			paceC = nil
			if err := s.sendVelocity(ctx, held); err != nil {
				return err
			}
		case <-ticker.C:
			if err := s.pollCycle(ctx); err != nil {
				return err
			}
		}
	}
}

// sendVelocity is fire-and-forget: the reply is discarded.
func (s *Session) sendVelocity(ctx context.Context, cmd comm.VelocityCommand) error {
	frame, err := comm.EncodeVelocity(cmd)
	if err != nil {
		s.Observer.CommandDropped(err)
		return nil
	}
	_, err = s.transfer(ctx, frame)
	if err != nil {
		s.Observer.CommandDropped(err)
	}
	return s.checkFailures(err)
}

// pollCycle runs one full poll cycle, preemptible between frames.
func (s *Session) pollCycle(ctx context.Context) error {
	if s.stopping(ctx) {
		return nil
	}
	var xferErr error
	s.decoder.Begin()
	for _, op := range comm.PollSequence {
		if s.stopping(ctx) {
			s.decoder.Fail(op, telemetry.ErrAborted)
			break
		}
		reply, err := s.transfer(ctx, comm.EncodePoll(op))
		if err != nil {
			xferErr = err
			s.decoder.Fail(op, err)
			break
		}
		if err := s.decoder.Feed(op, reply); err != nil {
			break
		}
	}
	rec, err := s.decoder.End()
	if err != nil {
		var ce *telemetry.CycleError
		seq := s.decoder.Sequence()
		if errors.As(err, &ce) {
			seq = ce.Sequence
		}
		s.sink.PublishError(seq, err)
	} else {
		s.sink.Publish(rec)
	}
	return s.checkFailures(xferErr)
}

func (s *Session) checkFailures(err error) error {
	if err == nil {
		s.failures = 0
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	s.failures++
	if max := s.Config.MaxTransportFailures; max > 0 && s.failures >= max {
		return fmt.Errorf("%d consecutive transfer failures: %w", s.failures, err)
	}
	return nil
}

func (s *Session) stopping(ctx context.Context) bool {
	select {
	case <-s.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (s *Session) transfer(ctx context.Context, tx comm.Frame) ([]byte, error) {
	start := time.Now()
	reply, err := s.transport.Transfer(ctx, tx)
	if err == nil {
		err = comm.CheckWidth(reply)
	}
	s.Observer.Transferred(tx.Opcode(), time.Since(start), err)
	if err != nil {
		glog.V(2).Infof("LINK %s failed: %v", tx, err)
		return nil, err
	}
	glog.V(3).Infof("LINK %s -> % x", tx, reply)
	return reply, nil
}

func (s *Session) setState(to State) {
	from := State(s.state.Swap(int32(to)))
	if from == to {
		return
	}
	glog.V(1).Infof("LINK %s -> %s", from, to)
	if to == Ready {
		close(s.readyCh)
	}
	s.Observer.StateChanged(from, to)
}
