package telemetry

import (
	"sync"

	"github.com/golang/glog"
)

// Sink receives decoded telemetry. Implementations must not block:
// they are called from the goroutine which owns the bus.
type Sink interface {
	Publish(Record)
	PublishError(seq uint64, reason error)
}

// Sinks fans out to multiple sinks in order.
type Sinks []Sink

// Publish implements Sink.
func (s Sinks) Publish(rec Record) {
	for _, sink := range s {
		sink.Publish(rec)
	}
}

// PublishError implements Sink.
func (s Sinks) PublishError(seq uint64, reason error) {
	for _, sink := range s {
		sink.PublishError(seq, reason)
	}
}

// LogSink logs records and discarded cycles.
type LogSink struct{}

// Publish implements Sink.
func (LogSink) Publish(rec Record) {
	glog.V(3).Infof("TELEMETRY %s", rec)
}

// PublishError implements Sink.
func (LogSink) PublishError(seq uint64, reason error) {
	glog.Warningf("TELEMETRY cycle %d discarded: %v", seq, reason)
}

// Recorder keeps the latest record and cycle counts.
type Recorder struct {
	lock   sync.RWMutex
	last   Record
	errSeq uint64
	errMsg string
	err    error
	ok     uint64
	failed uint64
}

// Stats is a snapshot of a Recorder.
type Stats struct {
	Last      Record
	Completed uint64
	Discarded uint64
	LastError string
	ErrorSeq  uint64
	// Err is the last cycle error itself, for errors.Is.
	Err       error `json:"-"`
}

// Publish implements Sink.
func (r *Recorder) Publish(rec Record) {
	r.lock.Lock()
	r.last = rec
	r.ok++
	r.lock.Unlock()
}

// PublishError implements Sink.
func (r *Recorder) PublishError(seq uint64, reason error) {
	r.lock.Lock()
	r.failed++
	r.errSeq = seq
	if reason != nil {
		r.errMsg, r.err = reason.Error(), reason
	}
	r.lock.Unlock()
}

// Stats returns a snapshot.
func (r *Recorder) Stats() Stats {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return Stats{
		Last:      r.last,
		Completed: r.ok,
		Discarded: r.failed,
		LastError: r.errMsg,
		ErrorSeq:  r.errSeq,
		Err:       r.err,
	}
}
