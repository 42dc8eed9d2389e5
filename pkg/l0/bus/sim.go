package bus

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/mattbot/mcucomms/pkg/l0/comm"
)

// SimState is the bring-up state of the simulated MCU.
type SimState int

// Simulated MCU states
const (
	SimInactive SimState = iota
	SimPending
	SimActive
)

// String implements fmt.Stringer.
func (s SimState) String() string {
	switch s {
	case SimInactive:
		return "inactive"
	case SimPending:
		return "pending"
	case SimActive:
		return "active"
	}
	return "unknown"
}

// Reply type tags carried in byte 0 of sensor replies.
const (
	SimTagIMU           = 9
	SimTagPosition      = 8
	SimTagDeadReckoning = 7
)

// SimConfig configures the simulated MCU.
type SimConfig struct {
	// BootProbes is the number of PINGs ignored before the MCU answers.
	BootProbes int `yaml:"boot_probes"`
	// Latency is added to every transfer.
	Latency time.Duration `yaml:"latency"`
	// Watchdog drops an active link when no frame arrives in time.
	Watchdog time.Duration `yaml:"watchdog"`
	// Timeout bounds a single transfer.
	Timeout time.Duration `yaml:"timeout"`
	// Accel is the reported acceleration in g.
	Accel [3]float32 `yaml:"accel"`
	// Gyro is the reported angular rate in deg/s.
	Gyro [3]float32 `yaml:"gyro"`
}

// DefaultSimConfig returns a simulated MCU resting level on the ground.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		BootProbes: 2,
		Watchdog:   10 * time.Second,
		Timeout:    DefaultTimeout,
		Accel:      [3]float32{0, 0, 1},
	}
}

// Sim is a Transport backed by an in-process model of the MCU firmware.
// Like the real device it replies one frame late: the data requested by
// a frame is shifted out during the following transfer.
type Sim struct {
	Config SimConfig
	// Now is the clock used for dead reckoning.
	Now func() time.Time

	guard *guard

	lock     sync.Mutex
	state    SimState
	probes   int
	next     comm.Frame
	lastSeen time.Time
	lastStep time.Time
	// pose in metres and degrees, matching the firmware
	x, y, theta float32
	v, w        float32
	frames      int
}

// NewSim creates a simulated MCU.
func NewSim(conf SimConfig) *Sim {
	return &Sim{
		Config: conf,
		Now:    time.Now,
		guard:  newGuard(conf.Timeout),
	}
}

// State returns the bring-up state.
func (s *Sim) State() SimState {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

// Velocity returns the last accepted drive setpoint.
func (s *Sim) Velocity() comm.VelocityCommand {
	s.lock.Lock()
	defer s.lock.Unlock()
	return comm.VelocityCommand{Linear: s.v, Angular: s.w}
}

// Pose returns the integrated pose, heading in degrees.
func (s *Sim) Pose() (x, y, theta float32) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.x, s.y, s.theta
}

// Frames returns the number of frames received.
func (s *Sim) Frames() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.frames
}

// Transfer implements Transport.
func (s *Sim) Transfer(ctx context.Context, tx comm.Frame) ([]byte, error) {
	return s.guard.transfer(ctx, tx, func(out, in []byte) error {
		if s.Config.Latency > 0 {
			time.Sleep(s.Config.Latency)
		}
		var f comm.Frame
		copy(f[:], out)
		reply := s.exchange(f)
		copy(in, reply[:])
		return nil
	})
}

// Close implements Transport.
func (s *Sim) Close() error {
	s.guard.close()
	return nil
}

func (s *Sim) exchange(f comm.Frame) (reply comm.Frame) {
	s.lock.Lock()
	defer s.lock.Unlock()
	now := s.Now()
	s.frames++
	s.watchdog(now)
	s.integrate(now)
	s.lastSeen = now

	reply, s.next = s.next, comm.Frame{}
	switch op := f.Opcode(); op {
	case comm.OpVelocity:
		if s.state != SimActive {
			break
		}
		s.v, s.w = comm.Float32(f[1:]), comm.Float32(f[5:])
	case comm.OpSensorSetup:
		s.next[0] = SimTagIMU
		s.putTriplet(s.Config.Accel[0], s.Config.Accel[1], s.Config.Accel[2])
	case comm.OpSensorAccel:
		s.next[0] = SimTagIMU
		s.putTriplet(s.Config.Gyro[0], s.Config.Gyro[1], s.Config.Gyro[2])
	case comm.OpSensorGyro:
		s.next[0] = SimTagPosition
		s.putTriplet(s.x, s.y, s.theta)
	case comm.OpSensorPosition:
		s.next[0] = SimTagDeadReckoning
		comm.PutFloat32(s.next[1:], s.v)
		comm.PutFloat32(s.next[5:], s.w)
	case comm.OpLink:
		s.link(comm.LinkCode(f[1]))
	}
	return
}

func (s *Sim) putTriplet(a, b, c float32) {
	comm.PutFloat32(s.next[1:], a)
	comm.PutFloat32(s.next[5:], b)
	comm.PutFloat32(s.next[9:], c)
}

func (s *Sim) link(code comm.LinkCode) {
	switch s.state {
	case SimInactive:
		if code != comm.LinkPing {
			return
		}
		if s.probes < s.Config.BootProbes {
			s.probes++
			return
		}
		s.next[1] = 0xff
		s.state = SimPending
	case SimPending:
		switch code {
		case comm.LinkAck:
			s.state = SimActive
			glog.V(1).Info("SIM link active")
		case comm.LinkPing:
			s.next[1] = 0xff
		}
	case SimActive:
		if code == comm.LinkShutdown {
			s.stop()
			glog.V(1).Info("SIM link shut down")
		}
	}
}

func (s *Sim) watchdog(now time.Time) {
	if s.state != SimActive || s.Config.Watchdog <= 0 || s.lastSeen.IsZero() {
		return
	}
	if now.Sub(s.lastSeen) > s.Config.Watchdog {
		glog.Warning("SIM watchdog expired")
		s.stop()
	}
}

func (s *Sim) stop() {
	s.v, s.w = 0, 0
	s.probes = 0
	s.state = SimInactive
}

// integrate advances the unicycle pose by the time since the last frame.
func (s *Sim) integrate(now time.Time) {
	if !s.lastStep.IsZero() {
		dt := float32(now.Sub(s.lastStep).Seconds())
		rad := float64(s.theta) * math.Pi / 180
		s.x += s.v * float32(math.Cos(rad)) * dt
		s.y += s.v * float32(math.Sin(rad)) * dt
		s.theta += s.w * 180 / math.Pi * dt
	}
	s.lastStep = now
}
