package link

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattbot/mcucomms/pkg/l0/bus"
	"github.com/mattbot/mcucomms/pkg/l0/comm"
	"github.com/mattbot/mcucomms/pkg/l0/telemetry"
)

type replyFunc func(n int, f comm.Frame) ([]byte, error)

type spyTransport struct {
	reply replyFunc

	lock     sync.Mutex
	frames   []comm.Frame
	closed   int
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (s *spyTransport) Transfer(ctx context.Context, f comm.Frame) ([]byte, error) {
	if s.inFlight.Add(1) != 1 {
		s.overlap.Store(true)
	}
	defer s.inFlight.Add(-1)
	s.lock.Lock()
	n := len(s.frames)
	s.frames = append(s.frames, f)
	s.lock.Unlock()
	// widen the window for an overlapping caller
	time.Sleep(50 * time.Microsecond)
	if s.reply == nil {
		return make([]byte, comm.FrameSize), nil
	}
	return s.reply(n, f)
}

func (s *spyTransport) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closed++
	return nil
}

func (s *spyTransport) Frames() []comm.Frame {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]comm.Frame(nil), s.frames...)
}

func (s *spyTransport) Count(match func(comm.Frame) bool) int {
	var n int
	for _, f := range s.Frames() {
		if match(f) {
			n++
		}
	}
	return n
}

func isLink(code comm.LinkCode) func(comm.Frame) bool {
	return func(f comm.Frame) bool {
		return f.Opcode() == comm.OpLink && comm.LinkCode(f[1]) == code
	}
}

func isVelocity(f comm.Frame) bool {
	return f.Opcode() == comm.OpVelocity
}

func garbage() []byte {
	b := make([]byte, comm.FrameSize)
	b[0], b[1], b[2] = 1, 2, 3
	return b
}

func confirm() []byte {
	b := make([]byte, comm.FrameSize)
	b[1] = 0xff
	return b
}

// confirmAfter answers the k-th PING with the confirmation pattern and
// delegates everything else.
func confirmAfter(k int, next replyFunc) replyFunc {
	var pings int
	return func(n int, f comm.Frame) ([]byte, error) {
		if isLink(comm.LinkPing)(f) {
			pings++
			if pings >= k {
				return confirm(), nil
			}
			return garbage(), nil
		}
		if f.Opcode() == comm.OpLink {
			return make([]byte, comm.FrameSize), nil
		}
		if next != nil {
			return next(n, f)
		}
		return make([]byte, comm.FrameSize), nil
	}
}

type stateRecorder struct {
	NopObserver
	lock   sync.Mutex
	states []State
}

func (r *stateRecorder) StateChanged(from, to State) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.states = append(r.states, to)
}

func (r *stateRecorder) States() []State {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]State(nil), r.states...)
}

func testConfig() Config {
	conf := DefaultConfig()
	conf.ProbeInterval = time.Millisecond
	conf.PollInterval = time.Hour
	return conf
}

type harness struct {
	t         *testing.T
	session   *Session
	transport *spyTransport
	recorder  *telemetry.Recorder
	states    *stateRecorder
	cancel    context.CancelFunc
	errCh     chan error
}

func newHarness(t *testing.T, conf Config, reply replyFunc) *harness {
	decoder, err := telemetry.NewDecoder(telemetry.AccelG)
	require.NoError(t, err)
	h := &harness{
		t:         t,
		transport: &spyTransport{reply: reply},
		recorder:  &telemetry.Recorder{},
		states:    &stateRecorder{},
		errCh:     make(chan error, 1),
	}
	h.session, err = NewSession(h.transport, decoder, h.recorder, conf)
	require.NoError(t, err)
	h.session.Observer = h.states
	return h
}

func (h *harness) start() {
	var ctx context.Context
	ctx, h.cancel = context.WithCancel(context.Background())
	go func() {
		h.errCh <- h.session.Run(ctx)
	}()
	h.t.Cleanup(func() {
		h.cancel()
		h.session.Close()
	})
}

func (h *harness) waitReady() {
	select {
	case <-h.session.Ready():
	case err := <-h.errCh:
		h.t.Fatalf("Run returned before ready: %v", err)
	case <-time.After(5 * time.Second):
		h.t.Fatal("link never became ready")
	}
}

func (h *harness) waitRun() error {
	select {
	case err := <-h.errCh:
		return err
	case <-time.After(5 * time.Second):
		h.t.Fatal("Run didn't return")
	}
	return nil
}

func TestHandshakeConfirmsOnKthProbe(t *testing.T) {
	for _, k := range []int{1, 2, 5, 12} {
		h := newHarness(t, testConfig(), confirmAfter(k, nil))
		h.start()
		h.waitReady()

		frames := h.transport.Frames()
		require.Len(t, frames, k+1, "k=%d", k)
		for i := 0; i < k; i++ {
			assert.Equal(t, comm.EncodeLink(comm.LinkPing), frames[i])
		}
		assert.Equal(t, comm.EncodeLink(comm.LinkAck), frames[k])
		assert.Equal(t, Ready, h.session.State())
	}
}

func TestHandshakeExampleScenario(t *testing.T) {
	replies := [][]byte{garbage(), garbage(), confirm()}
	h := newHarness(t, testConfig(), func(n int, f comm.Frame) ([]byte, error) {
		if n < len(replies) {
			return replies[n], nil
		}
		return make([]byte, comm.FrameSize), nil
	})
	h.start()
	h.waitReady()

	frames := h.transport.Frames()
	require.Len(t, frames, 4)
	assert.Equal(t, 3, h.transport.Count(isLink(comm.LinkPing)))
	assert.Equal(t, comm.EncodeLink(comm.LinkAck), frames[3])
	assert.Equal(t, []State{Handshaking, Ready}, h.states.States())
}

func TestHandshakeRetriesTransportErrors(t *testing.T) {
	var pings int
	h := newHarness(t, testConfig(), func(n int, f comm.Frame) ([]byte, error) {
		if isLink(comm.LinkPing)(f) {
			pings++
			if pings < 4 {
				return nil, &bus.TransportError{Op: "transfer", Err: bus.ErrTimeout}
			}
			return confirm(), nil
		}
		return make([]byte, comm.FrameSize), nil
	})
	h.start()
	h.waitReady()
	assert.Equal(t, 4, h.transport.Count(isLink(comm.LinkPing)))
}

func TestHandshakeProbeCap(t *testing.T) {
	conf := testConfig()
	conf.MaxProbes = 3
	h := newHarness(t, conf, nil)
	h.start()
	err := h.waitRun()
	assert.ErrorIs(t, err, ErrBringUpExhausted)
	assert.Equal(t, 3, h.transport.Count(isLink(comm.LinkPing)))
}

func TestShutdownDuringBringUp(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.start()
	assert.Eventually(t, func() bool {
		return h.transport.Count(isLink(comm.LinkPing)) > 3
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, h.session.Shutdown())
	assert.NoError(t, h.waitRun())
	assert.Equal(t, Closed, h.session.State())
	assert.Equal(t, 2, h.transport.Count(isLink(comm.LinkShutdown)))
}

func TestSendVelocity(t *testing.T) {
	h := newHarness(t, testConfig(), confirmAfter(1, nil))
	assert.ErrorIs(t, h.session.SendVelocity(comm.VelocityCommand{Linear: 1}), ErrNotReady)
	h.start()
	h.waitReady()

	cmd := comm.VelocityCommand{Linear: 1.5, Angular: -0.25}
	require.NoError(t, h.session.SendVelocity(cmd))
	assert.Eventually(t, func() bool {
		return h.transport.Count(isVelocity) == 1
	}, 5*time.Second, time.Millisecond)

	expected, err := comm.EncodeVelocity(cmd)
	require.NoError(t, err)
	frames := h.transport.Frames()
	assert.Equal(t, expected, frames[len(frames)-1])
}

func TestNonFiniteVelocityNeverReachesBus(t *testing.T) {
	h := newHarness(t, testConfig(), confirmAfter(1, nil))
	h.start()
	h.waitReady()
	before := len(h.transport.Frames())

	for _, cmd := range []comm.VelocityCommand{
		{Linear: float32(math.NaN())},
		{Angular: float32(math.Inf(1))},
		{Linear: float32(math.Inf(-1)), Angular: 1},
	} {
		err := h.session.SendVelocity(cmd)
		assert.ErrorIs(t, err, comm.ErrOutOfRange)
	}
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, h.transport.Frames(), before)
}

func TestNonFiniteKeepsPendingCommand(t *testing.T) {
	slot := NewCommandSlot()
	require.NoError(t, slot.Offer(comm.VelocityCommand{Linear: 0.5}))
	assert.ErrorIs(t, slot.Offer(comm.VelocityCommand{Linear: float32(math.NaN())}), comm.ErrOutOfRange)
	cmd, ok := slot.LatestVelocity()
	require.True(t, ok)
	assert.Equal(t, comm.VelocityCommand{Linear: 0.5}, cmd)
	_, ok = slot.LatestVelocity()
	assert.False(t, ok)
}

func TestCommandSlotLatestWins(t *testing.T) {
	slot := NewCommandSlot()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.NoError(t, slot.Offer(comm.VelocityCommand{Linear: float32(i)}))
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, slot.Offer(comm.VelocityCommand{Linear: 42}))
	cmd, ok := slot.LatestVelocity()
	require.True(t, ok)
	assert.Equal(t, float32(42), cmd.Linear)
	slot.Clear()
	_, ok = slot.LatestVelocity()
	assert.False(t, ok)
}

func TestPollCycle(t *testing.T) {
	conf := testConfig()
	conf.PollInterval = 2 * time.Millisecond
	sim := bus.NewSim(bus.SimConfig{BootProbes: 1, Timeout: time.Second, Accel: [3]float32{0, 0, 1}, Gyro: [3]float32{0, 0, 45}})
	decoder, err := telemetry.NewDecoder(telemetry.AccelG)
	require.NoError(t, err)
	recorder := &telemetry.Recorder{}
	session, err := NewSession(sim, decoder, recorder, conf)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- session.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return recorder.Stats().Completed >= 3
	}, 5*time.Second, time.Millisecond)
	st := recorder.Stats()
	assert.InDelta(t, 9.81, st.Last.Acceleration.Z, 1e-5)
	assert.InDelta(t, math.Pi/4, st.Last.AngularRate.Z, 1e-6)
	assert.Zero(t, st.Discarded)

	require.NoError(t, session.Shutdown())
	assert.NoError(t, <-errCh)
	assert.Equal(t, bus.SimInactive, sim.State())
}

func TestVelocityNeverInterleavesPollCycle(t *testing.T) {
	conf := testConfig()
	conf.PollInterval = time.Millisecond
	h := newHarness(t, conf, confirmAfter(1, nil))
	h.start()
	h.waitReady()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			h.session.SendVelocity(comm.VelocityCommand{Linear: float32(i) / 100})
			time.Sleep(100 * time.Microsecond)
		}
	}()
	<-done
	assert.Eventually(t, func() bool {
		return h.recorder.Stats().Completed >= 5
	}, 5*time.Second, time.Millisecond)
	require.NoError(t, h.session.Shutdown())

	assert.False(t, h.transport.overlap.Load(), "transfers overlapped")
	assert.Greater(t, h.transport.Count(isVelocity), 0)
	// every poll cycle is contiguous on the bus, the last one may
	// have been cut short by the shutdown
	frames := h.transport.Frames()
	for i, f := range frames {
		if isLink(comm.LinkShutdown)(f) {
			frames = frames[:i]
			break
		}
	}
	for i, f := range frames {
		if f.Opcode() != comm.OpSensorSetup || i+len(comm.PollSequence) > len(frames) {
			continue
		}
		for j, op := range comm.PollSequence {
			assert.Equal(t, op, frames[i+j].Opcode(), "frame %d", i+j)
		}
	}
}

func TestSequenceCountsFailedCycles(t *testing.T) {
	conf := testConfig()
	conf.PollInterval = time.Millisecond
	conf.MaxTransportFailures = 0
	var cycles atomic.Int32
	h := newHarness(t, conf, confirmAfter(1, func(n int, f comm.Frame) ([]byte, error) {
		if f.Opcode() != comm.OpSensorGyro {
			return make([]byte, comm.FrameSize), nil
		}
		switch cycles.Add(1) % 3 {
		case 0:
			return nil, &bus.TransportError{Op: "transfer", Err: bus.ErrIOFailure}
		case 1:
			return make([]byte, 4), nil
		}
		return make([]byte, comm.FrameSize), nil
	}))
	h.start()
	h.waitReady()
	assert.Eventually(t, func() bool {
		return h.recorder.Stats().Discarded >= 6
	}, 5*time.Second, time.Millisecond)
	require.NoError(t, h.session.Shutdown())

	st := h.recorder.Stats()
	assert.Equal(t, h.session.Sequence(), st.Completed+st.Discarded)
	assert.Greater(t, st.Completed, uint64(0))
	assert.Equal(t, Ready, h.states.States()[1])
}

func TestSequenceReadWhilePolling(t *testing.T) {
	conf := testConfig()
	conf.PollInterval = time.Millisecond
	h := newHarness(t, conf, confirmAfter(1, nil))
	h.start()
	h.waitReady()

	var last uint64
	deadline := time.Now().Add(5 * time.Second)
	for last < 5 && time.Now().Before(deadline) {
		seq := h.session.Sequence()
		require.GreaterOrEqual(t, seq, last, "sequence went backwards")
		last = seq
		time.Sleep(300 * time.Microsecond)
	}
	require.NoError(t, h.session.Shutdown())
	assert.GreaterOrEqual(t, last, uint64(5))
	st := h.recorder.Stats()
	assert.Equal(t, h.session.Sequence(), st.Completed+st.Discarded)
}

func TestShutdownPreemptsPollCycle(t *testing.T) {
	conf := testConfig()
	conf.PollInterval = time.Millisecond
	inGyro, release := make(chan struct{}), make(chan struct{})
	var gyros atomic.Int32
	h := newHarness(t, conf, confirmAfter(1, func(n int, f comm.Frame) ([]byte, error) {
		if f.Opcode() == comm.OpSensorGyro && gyros.Add(1) == 1 {
			close(inGyro)
			<-release
		}
		return make([]byte, comm.FrameSize), nil
	}))
	h.start()
	h.waitReady()

	select {
	case <-inGyro:
	case <-time.After(5 * time.Second):
		t.Fatal("poll cycle never reached GYRO")
	}
	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- h.session.Shutdown() }()
	// the stop request is visible before GYRO finishes
	select {
	case <-h.session.stopCh:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown not requested")
	}
	assert.Equal(t, Ready, h.session.State(), "frame in flight must not be cut")
	close(release)
	require.NoError(t, <-shutdownErr)
	assert.NoError(t, h.waitRun())

	frames := h.transport.Frames()
	start := -1
	for i, f := range frames {
		if f.Opcode() == comm.OpSensorSetup {
			start = i
			break
		}
	}
	require.GreaterOrEqual(t, start, 0)
	var ops []string
	for _, f := range frames[start:] {
		ops = append(ops, f.String())
	}
	shutdown := comm.EncodeLink(comm.LinkShutdown).String()
	assert.Equal(t, []string{
		comm.EncodePoll(comm.OpSensorSetup).String(),
		comm.EncodePoll(comm.OpSensorAccel).String(),
		comm.EncodePoll(comm.OpSensorGyro).String(),
		shutdown,
		shutdown,
	}, ops)
	assert.Zero(t, h.transport.Count(func(f comm.Frame) bool {
		return f.Opcode() == comm.OpSensorPosition || f.Opcode() == comm.OpSensorDeadReckoning
	}))

	st := h.recorder.Stats()
	assert.Zero(t, st.Completed)
	assert.Equal(t, uint64(1), st.Discarded)
	assert.Equal(t, uint64(1), st.ErrorSeq)
	assert.ErrorIs(t, st.Err, telemetry.ErrAborted)
	var ce *telemetry.CycleError
	require.ErrorAs(t, st.Err, &ce)
	assert.Equal(t, comm.OpSensorPosition, ce.Op)
	assert.Equal(t, uint64(1), h.session.Sequence())
	assert.Equal(t, []State{Handshaking, Ready, ShuttingDown, Closed}, h.states.States())
}

func TestConsecutiveTransportFailuresStopRun(t *testing.T) {
	conf := testConfig()
	conf.PollInterval = time.Millisecond
	conf.MaxTransportFailures = 3
	h := newHarness(t, conf, confirmAfter(1, func(n int, f comm.Frame) ([]byte, error) {
		return nil, &bus.TransportError{Op: "transfer", Err: bus.ErrIOFailure}
	}))
	h.start()
	err := h.waitRun()
	assert.ErrorIs(t, err, bus.ErrIOFailure)
	assert.Equal(t, uint64(3), h.recorder.Stats().Discarded)
}

func TestShutdownTwice(t *testing.T) {
	h := newHarness(t, testConfig(), confirmAfter(1, nil))
	h.start()
	h.waitReady()

	require.NoError(t, h.session.Shutdown())
	assert.NoError(t, h.waitRun())
	assert.ErrorIs(t, h.session.Shutdown(), ErrClosed)
	assert.NoError(t, h.session.Close())

	assert.Equal(t, 2, h.transport.Count(isLink(comm.LinkShutdown)))
	assert.Equal(t, 1, h.transport.closed)
	assert.Equal(t, Closed, h.session.State())
	assert.Equal(t, []State{Handshaking, Ready, ShuttingDown, Closed}, h.states.States())

	assert.ErrorIs(t, h.session.SendVelocity(comm.VelocityCommand{}), ErrClosed)
	assert.ErrorIs(t, h.session.Run(context.Background()), ErrClosed)
}

func TestShutdownWithoutRun(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	require.NoError(t, h.session.Close())
	assert.Equal(t, 2, h.transport.Count(isLink(comm.LinkShutdown)))
	assert.Equal(t, 1, h.transport.closed)
}

func TestShutdownReportsTransportErrors(t *testing.T) {
	h := newHarness(t, testConfig(), func(n int, f comm.Frame) ([]byte, error) {
		return nil, &bus.TransportError{Op: "transfer", Err: bus.ErrTimeout}
	})
	err := h.session.Shutdown()
	require.Error(t, err)
	assert.ErrorIs(t, err, bus.ErrTimeout)
	// the bus is released anyway
	assert.Equal(t, 1, h.transport.closed)
	assert.Equal(t, Closed, h.session.State())
}

func TestCommandPacing(t *testing.T) {
	conf := testConfig()
	conf.CommandRate = 20
	conf.CommandBurst = 1
	h := newHarness(t, conf, confirmAfter(1, nil))
	h.start()
	h.waitReady()

	first := comm.VelocityCommand{Linear: 0.1}
	require.NoError(t, h.session.SendVelocity(first))
	assert.Eventually(t, func() bool {
		return h.transport.Count(isVelocity) == 1
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, h.session.SendVelocity(comm.VelocityCommand{Linear: 0.2}))
	last := comm.VelocityCommand{Linear: 0.3}
	require.NoError(t, h.session.SendVelocity(last))
	assert.Eventually(t, func() bool {
		return h.transport.Count(isVelocity) == 2
	}, 5*time.Second, time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, h.transport.Count(isVelocity))

	var sent []comm.VelocityCommand
	for _, f := range h.transport.Frames() {
		if isVelocity(f) {
			v, w, err := comm.DecodeFloatPair(f[:])
			require.NoError(t, err)
			sent = append(sent, comm.VelocityCommand{Linear: v, Angular: w})
		}
	}
	assert.Equal(t, []comm.VelocityCommand{first, last}, sent)
}

func TestRunTwice(t *testing.T) {
	h := newHarness(t, testConfig(), confirmAfter(1, nil))
	h.start()
	h.waitReady()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- h.session.Run(ctx) }()
	h.cancel()
	assert.ErrorIs(t, h.waitRun(), context.Canceled)
	assert.ErrorIs(t, <-errCh, ErrRunning)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	for name, mutate := range map[string]func(*Config){
		"probe interval": func(c *Config) { c.ProbeInterval = 0 },
		"poll interval":  func(c *Config) { c.PollInterval = -time.Second },
		"max probes":     func(c *Config) { c.MaxProbes = -1 },
		"rate":           func(c *Config) { c.CommandRate = -1 },
		"burst":          func(c *Config) { c.CommandRate = 10; c.CommandBurst = 0 },
	} {
		conf := DefaultConfig()
		mutate(&conf)
		assert.Error(t, conf.Validate(), name)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "shutting_down", ShuttingDown.String())
	assert.Equal(t, "unknown", State(9).String())
	assert.True(t, errors.Is(ErrClosed, ErrClosed))
}
