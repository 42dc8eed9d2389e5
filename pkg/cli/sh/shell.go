// Package sh is an interactive shell driving a local link.
package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/mattbot/mcucomms/pkg/config"
	fx "github.com/mattbot/mcucomms/pkg/framework"
	"github.com/mattbot/mcucomms/pkg/l1/comm/mqtt"
	"github.com/mattbot/mcucomms/pkg/l1/env/controller"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoStart   bool

	Shell  *ishell.Shell
	Config *config.Config
	Env    *controller.Env

	runner *fx.Runner
}

const (
	shellKey        = "$shell"
	stoppedPrompt   = "[down] > "
	readyWaitPeriod = 5 * time.Second
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&StartCmd,
		&StopLinkCmd,
		&StateCmd,
		&StatsCmd,
		&WaitCmd,
		&DiscoverCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *config.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(stoppedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeStarted wraps command func requires a running link.
func MustBeStarted(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Env == nil {
			c.Err(fmt.Errorf("link not started"))
			return
		}
		fn(c)
	}
}

// Print writes v as JSON or with its String form.
func Print(c *ishell.Context, v interface{}) {
	if ShellFrom(c).OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	if str, ok := v.(fmt.Stringer); ok {
		c.Println(str.String())
		return
	}
	c.Printf("%+v\n", v)
}

// WithAutoStart sets AutoStart.
func (s *Shell) WithAutoStart(en bool) *Shell {
	s.AutoStart = en
	return s
}

// Start opens the bus and runs the link in the background.
func (s *Shell) Start() error {
	if s.Env != nil {
		return fmt.Errorf("link already started")
	}
	e, err := controller.NewEnv(s.Config)
	if err != nil {
		return err
	}
	s.Env, s.runner = e, fx.NewRunner()
	e.AddToRunner(s.runner)
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", s.Config.RobotID))
	return nil
}

// Stop shuts the link down.
func (s *Shell) Stop() error {
	if s.Env == nil {
		return nil
	}
	s.runner.Stop()
	s.runner.Wait()
	err := s.Env.Close()
	s.Env, s.runner = nil, nil
	s.Shell.SetPrompt(stoppedPrompt)
	return err
}

// WaitReady waits until the link is up.
func (s *Shell) WaitReady(timeout time.Duration) error {
	if s.Env == nil {
		return fmt.Errorf("link not started")
	}
	select {
	case <-s.Env.Session.Ready():
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("link not ready after %v, state %s", timeout, s.Env.Session.State())
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoStart {
		if s.Interactive {
			s.Shell.Printf("Starting link on %s bus ...\n", s.Config.Bus)
		}
		if err := s.Start(); err != nil {
			glog.Fatalf("start link failed: %v", err)
		}
		defer s.Stop()
	}

	if len(args) > 0 {
		if s.Env != nil {
			if err := s.WaitReady(readyWaitPeriod); err != nil {
				glog.Errorln(err)
				return
			}
		}
		if err := s.Shell.Process(args...); err != nil {
			glog.Errorln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	glog.Errorln("command expected")
}

type linkState struct {
	State    string `json:"state"`
	Sequence uint64 `json:"seq"`
	Sim      string `json:"sim,omitempty"`
}

func (s linkState) String() string {
	str := fmt.Sprintf("%s seq=%d", s.State, s.Sequence)
	if s.Sim != "" {
		str += " sim=" + s.Sim
	}
	return str
}

var (
	// StartCmd brings the link up.
	StartCmd = ishell.Cmd{
		Name:    "start",
		Aliases: []string{"up"},
		Help:    "open the bus and bring the link up",
		Func: func(c *ishell.Context) {
			if err := ShellFrom(c).Start(); err != nil {
				c.Err(err)
			}
		},
	}

	// StopLinkCmd shuts the link down.
	StopLinkCmd = ishell.Cmd{
		Name:    "shutdown",
		Aliases: []string{"down"},
		Help:    "send SHUTDOWN and release the bus",
		Func: MustBeStarted(func(c *ishell.Context) {
			if err := ShellFrom(c).Stop(); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// StateCmd prints the link state.
	StateCmd = ishell.Cmd{
		Name:    "state",
		Aliases: []string{"st"},
		Help:    "",
		Func: MustBeStarted(func(c *ishell.Context) {
			e := ShellFrom(c).Env
			st := linkState{
				State:    e.Session.State().String(),
				Sequence: e.Session.Sequence(),
			}
			if e.Sim != nil {
				st.Sim = e.Sim.State().String()
			}
			Print(c, st)
		}),
	}

	// StatsCmd prints telemetry and transfer counters.
	StatsCmd = ishell.Cmd{
		Name:    "stats",
		Aliases: []string{"poll"},
		Help:    "",
		Func: MustBeStarted(func(c *ishell.Context) {
			e := ShellFrom(c).Env
			stats := e.Recorder.Stats()
			if ShellFrom(c).OutputJSON {
				Print(c, struct {
					Telemetry interface{} `json:"telemetry"`
					Link      interface{} `json:"link"`
				}{stats, e.Metrics.Snap()})
				return
			}
			c.Printf("cycles: %d completed, %d discarded\n", stats.Completed, stats.Discarded)
			if stats.LastError != "" {
				c.Printf("last error: #%d %s\n", stats.ErrorSeq, stats.LastError)
			}
			if stats.Completed > 0 {
				c.Println(stats.Last.String())
			}
			snap := e.Metrics.Snap()
			c.Printf("transfers: %d (%d failed), probes: %d, dropped commands: %d\n",
				snap.Transfers, snap.Errors, snap.Probes, snap.Dropped)
		}),
	}

	// WaitCmd waits until the link is ready.
	WaitCmd = ishell.Cmd{
		Name: "wait",
		Help: "[TIMEOUT]",
		Func: MustBeStarted(func(c *ishell.Context) {
			timeout := readyWaitPeriod
			if len(c.Args) > 0 {
				d, err := time.ParseDuration(c.Args[0])
				if err != nil {
					c.Err(fmt.Errorf("Invalid TIMEOUT: %v", err))
					return
				}
				timeout = d
			}
			if err := ShellFrom(c).WaitReady(timeout); err != nil {
				c.Err(err)
				return
			}
			c.Println("ready")
		}),
	}

	// DiscoverCmd lists robots publishing status on the MQTT broker.
	DiscoverCmd = ishell.Cmd{
		Name:    "discover",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if s.Config.MQTTBrokerURL == "" {
				c.Err(fmt.Errorf("MQTT disabled"))
				return
			}
			robots, err := discover(s.Config.MQTTBrokerURL)
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				Print(c, robots)
				return
			}
			if len(robots) == 0 {
				c.Println("No robots found")
				return
			}
			for _, r := range robots {
				c.Printf("%s: %s\n", r.ID, r.Status.State)
			}
		},
	}
)

func discover(brokerURL string) ([]mqtt.RobotInfo, error) {
	q, err := mqtt.NewQueueFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	defer q.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := q.ConnectContext(ctx); err != nil {
		return nil, fmt.Errorf("connect %s: %w", brokerURL, err)
	}
	return mqtt.Discover(ctx, q, mqtt.DefaultDiscoverTimeout)
}

// Main is a helper to provide a single call in main.
func Main() {
	config.SetupFlags()
	flag.Parse()
	conf := config.Default()
	if err := conf.Load(flag.CommandLine); err != nil {
		glog.Exitln(err)
	}
	New(conf).WithAutoStart(true).Run(flag.Args()...)
}
