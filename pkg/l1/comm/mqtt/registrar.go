package mqtt

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/mattbot/mcucomms/pkg/l0/link"
	"github.com/mattbot/mcucomms/pkg/l1/msgs"
)

// Registrar keeps the retained link status of a robot. The broker
// clears it through the last will if the daemon dies.
type Registrar struct {
	link.NopObserver

	Queue  *Queue
	Topics Topics
	Now    func() time.Time

	lock   sync.Mutex
	status []byte
}

// NewRegistrar creates a Registrar with its own Queue.
func NewRegistrar(brokerURL, robotID string) (*Registrar, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	topics := Topics{Robot: robotID}
	will, err := msgs.Marshal(&msgs.LinkStatus{State: "offline"})
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+topics.Status(), will, QoSStatus, true)
	if opts.ClientID == "" {
		opts.SetClientID("mcucomms:" + robotID)
	}
	r := &Registrar{
		Queue:  NewQueue(opts, topicPrefix),
		Topics: topics,
		Now:    time.Now,
	}
	r.Queue.OnConnect = func(*Queue) { r.onConnected() }
	return r, nil
}

// StateChanged implements link.Observer.
func (r *Registrar) StateChanged(from, to link.State) {
	payload, err := msgs.Marshal(msgs.LinkStatusFrom(to, r.Now()))
	if err != nil {
		glog.Errorf("MQTT encode status: %v", err)
		return
	}
	r.lock.Lock()
	r.status = payload
	r.lock.Unlock()
	if r.Queue.Connected() {
		r.Queue.PubWith(r.Topics.Status(), payload, QoSStatus, true)
	}
}

// Run implements framework.Runnable. It connects and stays connected
// after ctx is done, so the final status can go out; Close disconnects.
func (r *Registrar) Run(ctx context.Context) error {
	if err := r.Queue.ConnectContext(ctx); err != nil && ctx.Err() == nil {
		glog.Errorf("MQTT connect: %v", err)
	}
	<-ctx.Done()
	return ctx.Err()
}

// Close implements io.Closer.
func (r *Registrar) Close() error {
	return r.Queue.Close()
}

func (r *Registrar) onConnected() {
	r.lock.Lock()
	payload := r.status
	r.lock.Unlock()
	if payload != nil {
		r.Queue.PubWith(r.Topics.Status(), payload, QoSStatus, true)
	}
}
