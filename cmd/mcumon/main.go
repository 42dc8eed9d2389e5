package main

import (
	"context"
	"flag"
	"log"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mattbot/mcucomms/pkg/l1/comm/mqtt"
	"github.com/mattbot/mcucomms/pkg/l1/msgs"
)

var (
	mqttURL  = "mqtt://localhost:1883/mcu/"
	robot    = "+"
	discover bool
)

const connectTimeout = 10 * time.Second

func init() {
	if val := os.Getenv("MCU_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&robot, "id", robot, "Robot ID to monitor, + for all.")
	flag.BoolVar(&discover, "discover", discover, "List robots and exit.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	err = q.ConnectContext(ctx)
	cancel()
	if err != nil {
		log.Fatalln(err)
	}
	defer q.Close()

	if discover {
		robots, err := mqtt.Discover(context.Background(), q, time.Second)
		if err != nil {
			log.Fatalln(err)
		}
		for _, r := range robots {
			log.Printf("%s: %s", r.ID, r.Status.State)
		}
		return
	}

	q.Sub(robot+"/#", mqtt.Handler(func(topic string, payload []byte) {
		typed, err := msgs.DecodeTyped(payload)
		if err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		msg, err := typed.Decode()
		if err != nil {
			log.Printf("%s: decode error: (type_id=%x) %v", topic, typed.TypeID, err)
			return
		}
		if strings.HasSuffix(topic, "/"+mqtt.TopicErrors) {
			log.Printf("%s: DISCARDED %s", topic, msg.String())
			return
		}
		log.Printf("%s: [%s] %s", topic,
			reflect.Indirect(reflect.ValueOf(msg)).Type().Name(), msg.String())
	}))
	<-(chan struct{})(nil)
}
