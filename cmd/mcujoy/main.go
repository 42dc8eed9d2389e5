package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/golang/glog"

	fx "github.com/mattbot/mcucomms/pkg/framework"
	"github.com/mattbot/mcucomms/pkg/joystick"
	"github.com/mattbot/mcucomms/pkg/l1/comm/mqtt"
)

//go-build: CGO_ENABLED=0

var (
	mqttURL = "mqtt://localhost:1883/mcu/"
	robotID string
	conf    = joystick.DefaultConfig()
)

const connectTimeout = 10 * time.Second

func init() {
	if val := os.Getenv("MCU_MQTT_URL"); val != "" {
		mqttURL = val
	}
	robotID = os.Getenv("MCU_ROBOT_ID")
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&robotID, "id", robotID, "Robot ID to drive.")
	flag.IntVar(&conf.DeviceIndex, "device", conf.DeviceIndex, "Device index, -1 for auto detection.")
	flag.BoolVar(&conf.Verbose, "verbose", conf.Verbose, "Print Joystick events.")
}

func main() {
	flag.Parse()
	defer glog.Flush()
	if robotID == "" {
		glog.Exitln("robot id must be specified")
	}
	if err := conf.Validate(); err != nil {
		glog.Exitln(err)
	}

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		glog.Exitln(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	err = q.ConnectContext(ctx)
	cancel()
	if err != nil {
		glog.Exitln(err)
	}
	defer q.Close()

	teleop := joystick.NewTeleop(conf, &mqtt.CommandPublisher{
		Publisher: q,
		Topics:    mqtt.Topics{Robot: robotID},
	})
	if err := fx.NewRunner().HandleSignals().Go(teleop).Wait(); err != nil {
		glog.Errorln(err)
	}
}
