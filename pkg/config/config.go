// Package config provides the options of the link daemon and tools.
package config

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mattbot/mcucomms/pkg/joystick"
	"github.com/mattbot/mcucomms/pkg/l0/bus"
	"github.com/mattbot/mcucomms/pkg/l0/link"
	"github.com/mattbot/mcucomms/pkg/l0/telemetry"
	"github.com/mattbot/mcucomms/pkg/l1/env"
)

// Bus kinds
const (
	BusSPI = "spi"
	BusSim = "sim"
)

// Config provides common options to set up the link.
// Precedence is defaults, environment, config file, flags.
type Config struct {
	// File is a YAML config file applied before explicit flags.
	File string `yaml:"-"`

	RobotID   string              `yaml:"robot_id"`
	Bus       string              `yaml:"bus"`
	SPI       bus.Config          `yaml:"spi"`
	Sim       bus.SimConfig       `yaml:"sim"`
	Link      link.Config         `yaml:"link"`
	AccelUnit telemetry.AccelUnit `yaml:"accel_unit"`
	Joystick  joystick.Config     `yaml:"joystick"`

	// MQTTBrokerURL specifies the MQTT broker to use, empty disables MQTT.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string `yaml:"mqtt"`
	// SinkQueueSize buffers telemetry messages for MQTT.
	SinkQueueSize int `yaml:"sink_queue_size"`
	// HTTPAddr serves metrics, readiness and the websocket stream,
	// empty disables it.
	HTTPAddr string `yaml:"http_addr"`
	// MDNS advertises the HTTP endpoint.
	MDNS bool `yaml:"mdns"`
	// MDNSName is the advertised instance name.
	MDNSName string `yaml:"mdns_name"`
}

var defaultConfig = Config{
	Bus:           BusSPI,
	SPI:           bus.DefaultConfig(),
	Sim:           bus.DefaultSimConfig(),
	Link:          link.DefaultConfig(),
	AccelUnit:     telemetry.AccelG,
	Joystick:      joystick.DefaultConfig(),
	MQTTBrokerURL: "mqtt://localhost:1883/mcu/",
	HTTPAddr:      ":9100",
}

func init() {
	defaultConfig.RobotID = env.RobotID()
	defaultConfig.applyEnv(os.Getenv)
}

func (c *Config) applyEnv(getenv func(string) string) {
	if val := getenv("MCU_ROBOT_ID"); val != "" {
		c.RobotID = val
	}
	if val := getenv("MCU_BUS"); val != "" {
		c.Bus = val
	}
	if val := getenv("MCU_SPI_DEVICE"); val != "" {
		c.SPI.Device = val
	}
	if val := getenv("MCU_MQTT_URL"); val != "" {
		c.MQTTBrokerURL = val
	}
	if val := getenv("MCU_METRICS_ADDR"); val != "" {
		c.HTTPAddr = val
	}
}

// SetupFlags sets command line flags on the default config.
func SetupFlags() {
	defaultConfig.SetupFlagSet(flag.CommandLine)
}

// SetupFlagSet registers the options on fs.
func (c *Config) SetupFlagSet(fs *flag.FlagSet) {
	fs.StringVar(&c.File, "config", c.File, "YAML config file")
	fs.StringVar(&c.RobotID, "id", c.RobotID, "Robot ID, used in topics")
	fs.StringVar(&c.Bus, "bus", c.Bus, "Bus: spi or sim")
	fs.StringVar(&c.SPI.Device, "spi-dev", c.SPI.Device, "SPI device")
	fs.Int64Var(&c.SPI.ClockHz, "spi-hz", c.SPI.ClockHz, "SPI clock rate in Hz")
	fs.IntVar(&c.SPI.Mode, "spi-mode", c.SPI.Mode, "SPI mode (CPOL<<1|CPHA)")
	fs.DurationVar(&c.SPI.Timeout, "xfer-timeout", c.SPI.Timeout, "Timeout of a single transfer")
	fs.IntVar(&c.Sim.BootProbes, "sim-boot-probes", c.Sim.BootProbes, "Probes the simulated MCU ignores")
	fs.DurationVar(&c.Link.ProbeInterval, "probe-interval", c.Link.ProbeInterval, "Delay between bring-up probes")
	fs.IntVar(&c.Link.ProbeLogEvery, "probe-log-every", c.Link.ProbeLogEvery, "Warn every N unanswered probes")
	fs.IntVar(&c.Link.MaxProbes, "max-probes", c.Link.MaxProbes, "Give up bring-up after N probes, 0 never")
	fs.DurationVar(&c.Link.PollInterval, "poll-interval", c.Link.PollInterval, "Telemetry poll period")
	fs.Float64Var(&c.Link.CommandRate, "cmd-rate", c.Link.CommandRate, "Max velocity frames per second, 0 unlimited")
	fs.IntVar(&c.Link.MaxTransportFailures, "max-xfer-failures", c.Link.MaxTransportFailures, "Stop after N consecutive transfer failures, 0 never")
	fs.StringVar((*string)(&c.AccelUnit), "accel-unit", string(c.AccelUnit), "Acceleration unit reported by the MCU: g or mps2")
	fs.BoolVar(&c.Joystick.Enabled, "joystick", c.Joystick.Enabled, "Drive from a local joystick")
	fs.IntVar(&c.Joystick.DeviceIndex, "joystick-dev", c.Joystick.DeviceIndex, "Joystick index, -1 for auto detection")
	fs.StringVar(&c.MQTTBrokerURL, "mqtt", c.MQTTBrokerURL, "MQTT broker URL, empty disables")
	fs.StringVar(&c.HTTPAddr, "http", c.HTTPAddr, "HTTP listen address, empty disables")
	fs.BoolVar(&c.MDNS, "mdns", c.MDNS, "Advertise the HTTP endpoint via mDNS")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Load applies the config file once fs is parsed. Flags given on the
// command line are applied again so they win over the file.
func (c *Config) Load(fs *flag.FlagSet) error {
	if c.File != "" {
		explicit := make(map[string]string)
		fs.Visit(func(f *flag.Flag) {
			explicit[f.Name] = f.Value.String()
		})
		if err := c.LoadFile(c.File); err != nil {
			return err
		}
		for name, val := range explicit {
			if err := fs.Set(name, val); err != nil {
				return err
			}
		}
	}
	return c.Validate()
}

// LoadFile overlays a YAML file on the config.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks the options.
func (c *Config) Validate() error {
	if c.RobotID == "" {
		return fmt.Errorf("robot id must be specified")
	}
	switch c.Bus {
	case BusSPI:
		if err := c.SPI.Validate(); err != nil {
			return fmt.Errorf("spi: %w", err)
		}
	case BusSim:
		if c.Sim.Timeout <= 0 {
			return fmt.Errorf("sim: invalid transfer timeout %v", c.Sim.Timeout)
		}
	default:
		return fmt.Errorf("unknown bus %q", c.Bus)
	}
	if err := c.Link.Validate(); err != nil {
		return fmt.Errorf("link: %w", err)
	}
	if _, err := c.AccelUnit.Scale(); err != nil {
		return err
	}
	if c.Joystick.Enabled {
		if err := c.Joystick.Validate(); err != nil {
			return fmt.Errorf("joystick: %w", err)
		}
	}
	if c.MDNS && c.HTTPAddr == "" {
		return fmt.Errorf("mdns requires an HTTP address")
	}
	return nil
}

// Dump renders the config as YAML.
func (c *Config) Dump() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err.Error()
	}
	return string(data)
}
