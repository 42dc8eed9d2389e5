// Package websocket streams telemetry to browser clients.
package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/mattbot/mcucomms/pkg/l0/telemetry"
)

// DefaultClientQueueSize is the per client buffer.
const DefaultClientQueueSize = 16

// Event is what clients receive, one JSON object per message.
type Event struct {
	Type   string            `json:"type"`
	Record *telemetry.Record `json:"record,omitempty"`
	Seq    uint64            `json:"seq,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// Event types
const (
	EventRecord = "record"
	EventError  = "error"
)

type client struct {
	out       chan Event
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Hub implements telemetry.Sink broadcasting to connected clients.
// A slow client loses events rather than delaying the others.
type Hub struct {
	QueueSize    int
	WriteTimeout time.Duration

	lock    sync.RWMutex
	clients map[*client]struct{}
	dropped atomic.Uint64
}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{
		QueueSize:    DefaultClientQueueSize,
		WriteTimeout: time.Second,
		clients:      make(map[*client]struct{}),
	}
}

// Publish implements telemetry.Sink.
func (h *Hub) Publish(rec telemetry.Record) {
	h.broadcast(Event{Type: EventRecord, Record: &rec, Seq: rec.Sequence})
}

// PublishError implements telemetry.Sink.
func (h *Hub) PublishError(seq uint64, reason error) {
	ev := Event{Type: EventError, Seq: seq}
	if reason != nil {
		ev.Error = reason.Error()
	}
	h.broadcast(ev)
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients)
}

// Dropped returns the number of events not delivered to slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Handler serves the websocket endpoint.
func (h *Hub) Handler() websocket.Handler {
	return websocket.Handler(h.serve)
}

func (h *Hub) broadcast(ev Event) {
	h.lock.RLock()
	defer h.lock.RUnlock()
	for c := range h.clients {
		select {
		case c.out <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) add() *client {
	size := h.QueueSize
	if size <= 0 {
		size = DefaultClientQueueSize
	}
	c := &client{out: make(chan Event, size), closed: make(chan struct{})}
	h.lock.Lock()
	h.clients[c] = struct{}{}
	h.lock.Unlock()
	return c
}

func (h *Hub) remove(c *client) {
	h.lock.Lock()
	delete(h.clients, c)
	h.lock.Unlock()
	c.close()
}

func (h *Hub) serve(conn *websocket.Conn) {
	c := h.add()
	defer h.remove(c)
	glog.V(1).Infof("WS client %s connected", conn.Request().RemoteAddr)

	// the reader only detects the peer going away
	go func() {
		var discard []byte
		for {
			if err := websocket.Message.Receive(conn, &discard); err != nil {
				c.close()
				return
			}
		}
	}()

	for {
		select {
		case <-c.closed:
			glog.V(1).Infof("WS client %s disconnected", conn.Request().RemoteAddr)
			return
		case ev := <-c.out:
			if h.WriteTimeout > 0 {
				conn.SetWriteDeadline(time.Now().Add(h.WriteTimeout))
			}
			if err := websocket.JSON.Send(conn, ev); err != nil {
				glog.V(1).Infof("WS client %s: %v", conn.Request().RemoteAddr, err)
				return
			}
		}
	}
}
