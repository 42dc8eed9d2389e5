package link

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Config defines session timing.
type Config struct {
	// ProbeInterval is the delay between bring-up probes.
	ProbeInterval time.Duration `yaml:"probe_interval"`
	// ProbeLogEvery logs a warning every N unanswered probes, 0 disables.
	ProbeLogEvery int `yaml:"probe_log_every"`
	// MaxProbes caps bring-up, 0 probes forever.
	MaxProbes int `yaml:"max_probes"`
	// PollInterval is the telemetry poll period.
	PollInterval time.Duration `yaml:"poll_interval"`
	// CommandRate limits VELOCITY frames per second, 0 is unlimited.
	CommandRate float64 `yaml:"command_rate"`
	// CommandBurst is the limiter burst.
	CommandBurst int `yaml:"command_burst"`
	// MaxTransportFailures stops Run after this many consecutive
	// failed transfers while ready, 0 never stops.
	MaxTransportFailures int `yaml:"max_transport_failures"`
}

// DefaultConfig returns the defaults: 100ms probes, 10Hz polling.
func DefaultConfig() Config {
	return Config{
		ProbeInterval:        100 * time.Millisecond,
		ProbeLogEvery:        10,
		PollInterval:         100 * time.Millisecond,
		CommandBurst:         1,
		MaxTransportFailures: 5,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("invalid probe interval %v", c.ProbeInterval)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval %v", c.PollInterval)
	}
	if c.MaxProbes < 0 || c.ProbeLogEvery < 0 || c.MaxTransportFailures < 0 {
		return fmt.Errorf("negative count in link config")
	}
	if c.CommandRate < 0 {
		return fmt.Errorf("invalid command rate %v", c.CommandRate)
	}
	if c.CommandRate > 0 && c.CommandBurst < 1 {
		return fmt.Errorf("command burst must be at least 1")
	}
	return nil
}

func (c Config) limiter() *rate.Limiter {
	if c.CommandRate <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.CommandRate), c.CommandBurst)
}
