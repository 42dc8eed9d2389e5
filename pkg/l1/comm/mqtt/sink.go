package mqtt

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/mattbot/mcucomms/pkg/l0/telemetry"
	"github.com/mattbot/mcucomms/pkg/l1/msgs"
)

// DefaultSinkQueueSize is the number of messages buffered for publishing.
const DefaultSinkQueueSize = 64

// publishTimeout bounds the wait for one publish to be handed to the broker.
const publishTimeout = time.Second

type outgoing struct {
	topic string
	msg   msgs.SerializableMessage
}

// TelemetrySink implements telemetry.Sink. Publish only enqueues,
// Run does the publishing so the bus owner never waits on the broker.
type TelemetrySink struct {
	Publisher Publisher
	Topics    Topics
	Now       func() time.Time

	outCh   chan outgoing
	dropped atomic.Uint64
}

// NewTelemetrySink creates a TelemetrySink.
func NewTelemetrySink(pub Publisher, topics Topics, queueSize int) *TelemetrySink {
	if queueSize <= 0 {
		queueSize = DefaultSinkQueueSize
	}
	return &TelemetrySink{
		Publisher: pub,
		Topics:    topics,
		Now:       time.Now,
		outCh:     make(chan outgoing, queueSize),
	}
}

// Publish implements telemetry.Sink.
func (s *TelemetrySink) Publish(rec telemetry.Record) {
	s.enqueue(s.Topics.Odom(), msgs.OdometryFrom(rec))
	s.enqueue(s.Topics.Imu(), msgs.ImuFrom(rec))
	s.enqueue(s.Topics.TF(), msgs.TransformFrom(rec))
}

// PublishError implements telemetry.Sink.
func (s *TelemetrySink) PublishError(seq uint64, reason error) {
	s.enqueue(s.Topics.Errors(), msgs.CycleErrorFrom(seq, reason, s.Now()))
}

// Dropped returns the number of messages dropped on a full queue.
func (s *TelemetrySink) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *TelemetrySink) enqueue(topic string, msg msgs.SerializableMessage) {
	select {
	case s.outCh <- outgoing{topic: topic, msg: msg}:
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			glog.Warningf("MQTT sink queue full, %d messages dropped", n)
		}
	}
}

// Run implements framework.Runnable.
func (s *TelemetrySink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out := <-s.outCh:
			s.publish(out)
		}
	}
}

func (s *TelemetrySink) publish(out outgoing) {
	payload, err := msgs.Marshal(out.msg)
	if err != nil {
		glog.Errorf("MQTT encode %s: %v", out.topic, err)
		return
	}
	token := s.Publisher.PubWith(out.topic, payload, QoSTelemetry, false)
	if !token.WaitTimeout(publishTimeout) {
		glog.V(2).Infof("MQTT publish %s pending", out.topic)
		return
	}
	if err := token.Error(); err != nil {
		glog.V(2).Infof("MQTT publish %s: %v", out.topic, err)
	}
}
