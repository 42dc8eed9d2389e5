package main

import (
	"flag"

	"github.com/golang/glog"

	"github.com/mattbot/mcucomms/pkg/config"
	fx "github.com/mattbot/mcucomms/pkg/framework"
	"github.com/mattbot/mcucomms/pkg/l1/env/controller"
)

var dumpConfig bool

func init() {
	config.SetupFlags()
	flag.BoolVar(&dumpConfig, "dump-config", dumpConfig, "Print the effective config and exit.")
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := config.Default()
	if err := conf.Load(flag.CommandLine); err != nil {
		glog.Exitln(err)
	}
	if dumpConfig {
		glog.Info("\n" + conf.Dump())
		return
	}

	env := controller.MustNewEnv(conf)
	// the link is shut down on every way out, including a failing runner.
	defer func() {
		if err := env.Close(); err != nil {
			glog.Errorf("close: %v", err)
		}
	}()

	runner := fx.NewRunner().HandleSignals()
	env.AddToRunner(runner)
	if err := runner.Wait(); err != nil {
		glog.Errorf("stopped: %v", err)
	}
}
