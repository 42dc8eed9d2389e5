// Package controller assembles the link daemon from a config.
package controller

import (
	"fmt"
	"net/http"

	"github.com/golang/glog"

	"github.com/mattbot/mcucomms/pkg/config"
	fx "github.com/mattbot/mcucomms/pkg/framework"
	"github.com/mattbot/mcucomms/pkg/joystick"
	"github.com/mattbot/mcucomms/pkg/l0/bus"
	"github.com/mattbot/mcucomms/pkg/l0/link"
	"github.com/mattbot/mcucomms/pkg/l0/telemetry"
	"github.com/mattbot/mcucomms/pkg/l1/comm/mqtt"
	"github.com/mattbot/mcucomms/pkg/l1/comm/websocket"
	"github.com/mattbot/mcucomms/pkg/l1/env"
	"github.com/mattbot/mcucomms/pkg/metrics"
)

// Env is everything a running link needs.
type Env struct {
	Config    *config.Config
	Transport bus.Transport
	// Sim is set when the bus is simulated.
	Sim      *bus.Sim
	Session  *link.Session
	Recorder *telemetry.Recorder
	Metrics  *metrics.Metrics
	Hub      *websocket.Hub

	// MQTT parts, nil when MQTT is disabled.
	Registrar *mqtt.Registrar
	Sink      *mqtt.TelemetrySink
	Commands  *mqtt.CommandSubscriber
}

// OpenTransport opens the bus selected by conf.
func OpenTransport(conf *config.Config) (bus.Transport, *bus.Sim, error) {
	switch conf.Bus {
	case config.BusSim:
		sim := bus.NewSim(conf.Sim)
		return sim, sim, nil
	case config.BusSPI:
		spi, err := bus.OpenSPI(conf.SPI)
		if err != nil {
			return nil, nil, err
		}
		return spi, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown bus %q", conf.Bus)
}

// NewEnv creates Env from config. The bus is opened but the link
// isn't brought up until the Session runs.
func NewEnv(conf *config.Config) (*Env, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	decoder, err := telemetry.NewDecoder(conf.AccelUnit)
	if err != nil {
		return nil, err
	}
	e := &Env{
		Config:   conf,
		Recorder: &telemetry.Recorder{},
		Metrics:  metrics.New(),
		Hub:      websocket.NewHub(),
	}
	sinks := telemetry.Sinks{telemetry.LogSink{}, e.Recorder, e.Metrics, e.Hub}
	observers := link.Observers{e.Metrics}

	if conf.MQTTBrokerURL != "" {
		if e.Registrar, err = mqtt.NewRegistrar(conf.MQTTBrokerURL, conf.RobotID); err != nil {
			return nil, fmt.Errorf("create MQTT registrar error: %w", err)
		}
		e.Sink = mqtt.NewTelemetrySink(e.Registrar.Queue, e.Registrar.Topics, conf.SinkQueueSize)
		sinks = append(sinks, e.Sink)
		observers = append(observers, e.Registrar)
	}

	if e.Transport, e.Sim, err = OpenTransport(conf); err != nil {
		return nil, err
	}
	if e.Session, err = link.NewSession(e.Transport, decoder, sinks, conf.Link); err != nil {
		e.Transport.Close()
		return nil, err
	}
	e.Session.Observer = observers
	if e.Registrar != nil {
		e.Commands = &mqtt.CommandSubscriber{
			Queue:     e.Registrar.Queue,
			Topics:    e.Registrar.Topics,
			Commander: e.Session,
		}
	}
	return e, nil
}

// MustNewEnv creates Env and fails on error.
func MustNewEnv(conf *config.Config) *Env {
	e, err := NewEnv(conf)
	if err != nil {
		glog.Fatalln(err)
	}
	return e
}

// Runnables lists what must run for the Env to be live.
func (e *Env) Runnables() []fx.Runnable {
	runners := []fx.Runnable{fx.NamedRun("link", e.Session)}
	if e.Registrar != nil {
		runners = append(runners,
			fx.NamedRun("mqtt-registrar", e.Registrar),
			fx.NamedRun("mqtt-telemetry", e.Sink),
			fx.NamedRun("mqtt-commands", e.Commands))
	}
	if e.Config.Joystick.Enabled {
		runners = append(runners, fx.NamedRun("joystick", joystick.NewTeleop(e.Config.Joystick, e.Session)))
	}
	if addr := e.Config.HTTPAddr; addr != "" {
		runners = append(runners, fx.NamedRun("http", &metrics.Server{
			Addr:     addr,
			Metrics:  e.Metrics,
			Handlers: map[string]http.Handler{"/ws": e.Hub.Handler()},
		}))
		if e.Config.MDNS {
			runners = append(runners, fx.NamedRun("mdns", &env.Advertiser{
				Instance: e.Config.MDNSName,
				Addr:     addr,
				Meta:     []string{"robot=" + e.Config.RobotID, "bus=" + e.Config.Bus},
			}))
		}
	}
	return runners
}

// AddToRunner starts the Runnables on r.
func (e *Env) AddToRunner(r *fx.Runner) {
	r.Go(e.Runnables()...)
}

// Close shuts the link down, then disconnects MQTT so the final
// status still goes out.
func (e *Env) Close() error {
	var errs fx.AggregatedError
	errs.Add(e.Session.Close())
	if e.Registrar != nil {
		errs.Add(e.Registrar.Close())
	}
	return errs.Aggregate()
}
