// Package metrics exports link and telemetry counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mattbot/mcucomms/pkg/l0/bus"
	"github.com/mattbot/mcucomms/pkg/l0/comm"
	"github.com/mattbot/mcucomms/pkg/l0/link"
	"github.com/mattbot/mcucomms/pkg/l0/telemetry"
)

// Error labels, kept stable to bound cardinality.
const (
	ErrTimeout   = "timeout"
	ErrIOFailure = "io"
	ErrBusy      = "busy"
	ErrDecode    = "decode"
	ErrOther     = "other"
)

// Metrics is a link.Observer and telemetry.Sink feeding Prometheus
// collectors. Local mirrors allow cheap snapshots without scraping.
type Metrics struct {
	Registry *prometheus.Registry

	transfers      *prometheus.CounterVec
	transferErrors *prometheus.CounterVec
	transferTime   prometheus.Histogram
	probes         prometheus.Counter
	cycles         *prometheus.CounterVec
	commandsDrop   prometheus.Counter
	state          prometheus.Gauge
	sequence       prometheus.Gauge

	localTransfers atomic.Uint64
	localErrors    atomic.Uint64
	localProbes    atomic.Uint64
	localCycles    atomic.Uint64
	localDiscarded atomic.Uint64
	localDropped   atomic.Uint64
	localState     atomic.Int32
}

// Snapshot is a copy of the local counters.
type Snapshot struct {
	Transfers uint64
	Errors    uint64
	Probes    uint64
	Cycles    uint64
	Discarded uint64
	Dropped   uint64
	State     link.State
}

// New creates Metrics registered on a fresh registry which also
// carries the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	auto := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		transfers: auto.NewCounterVec(prometheus.CounterOpts{
			Name: "mcu_transfers_total",
			Help: "Total frames exchanged with the MCU by opcode.",
		}, []string{"opcode"}),
		transferErrors: auto.NewCounterVec(prometheus.CounterOpts{
			Name: "mcu_transfer_errors_total",
			Help: "Failed frame exchanges by cause.",
		}, []string{"cause"}),
		transferTime: auto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mcu_transfer_seconds",
			Help:    "Duration of a single frame exchange.",
			Buckets: prometheus.ExponentialBuckets(50e-6, 2, 12),
		}),
		probes: auto.NewCounter(prometheus.CounterOpts{
			Name: "mcu_bringup_probes_total",
			Help: "Bring-up probes sent.",
		}),
		cycles: auto.NewCounterVec(prometheus.CounterOpts{
			Name: "mcu_poll_cycles_total",
			Help: "Telemetry poll cycles by result.",
		}, []string{"result"}),
		commandsDrop: auto.NewCounter(prometheus.CounterOpts{
			Name: "mcu_commands_dropped_total",
			Help: "Velocity commands rejected or lost on the bus.",
		}),
		state: auto.NewGauge(prometheus.GaugeOpts{
			Name: "mcu_link_state",
			Help: "Link state: 0 uninitialized, 1 handshaking, 2 ready, 3 shutting down, 4 closed.",
		}),
		sequence: auto.NewGauge(prometheus.GaugeOpts{
			Name: "mcu_telemetry_sequence",
			Help: "Sequence of the last poll cycle.",
		}),
	}
}

// StateChanged implements link.Observer.
func (m *Metrics) StateChanged(from, to link.State) {
	m.state.Set(float64(to))
	m.localState.Store(int32(to))
}

// Probed implements link.Observer.
func (m *Metrics) Probed(count int, status comm.HandshakeStatus, err error) {
	m.probes.Inc()
	m.localProbes.Add(1)
}

// Transferred implements link.Observer.
func (m *Metrics) Transferred(op comm.Opcode, elapsed time.Duration, err error) {
	m.transfers.WithLabelValues(op.String()).Inc()
	m.transferTime.Observe(elapsed.Seconds())
	m.localTransfers.Add(1)
	if err != nil {
		m.transferErrors.WithLabelValues(Cause(err)).Inc()
		m.localErrors.Add(1)
	}
}

// CommandDropped implements link.Observer.
func (m *Metrics) CommandDropped(err error) {
	m.commandsDrop.Inc()
	m.localDropped.Add(1)
}

// Publish implements telemetry.Sink.
func (m *Metrics) Publish(rec telemetry.Record) {
	m.cycles.WithLabelValues("ok").Inc()
	m.sequence.Set(float64(rec.Sequence))
	m.localCycles.Add(1)
}

// PublishError implements telemetry.Sink.
func (m *Metrics) PublishError(seq uint64, reason error) {
	m.cycles.WithLabelValues("discarded").Inc()
	m.sequence.Set(float64(seq))
	m.localCycles.Add(1)
	m.localDiscarded.Add(1)
}

// Snap returns the local counters.
func (m *Metrics) Snap() Snapshot {
	return Snapshot{
		Transfers: m.localTransfers.Load(),
		Errors:    m.localErrors.Load(),
		Probes:    m.localProbes.Load(),
		Cycles:    m.localCycles.Load(),
		Discarded: m.localDiscarded.Load(),
		Dropped:   m.localDropped.Load(),
		State:     link.State(m.localState.Load()),
	}
}

// Ready reports whether the link is up.
func (m *Metrics) Ready() bool {
	return link.State(m.localState.Load()) == link.Ready
}

// Handler serves /metrics and /ready.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if m.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(m.Snap().State.String() + "\n"))
	})
	return mux
}

// Server serves the metrics handler, plus extra handlers, until the
// context is canceled.
type Server struct {
	Addr     string
	Metrics  *Metrics
	Handlers map[string]http.Handler
}

// Run implements framework.Runnable.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/", s.Metrics.Handler())
	for path, h := range s.Handlers {
		mux.Handle(path, h)
	}
	srv := &http.Server{Addr: s.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		glog.Infof("HTTP listening on %s", s.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

// Cause maps an error to a stable label.
func Cause(err error) string {
	var de *comm.DecodeError
	switch {
	case errors.Is(err, bus.ErrTimeout):
		return ErrTimeout
	case errors.Is(err, bus.ErrBusy):
		return ErrBusy
	case errors.Is(err, bus.ErrIOFailure):
		return ErrIOFailure
	case errors.As(err, &de):
		return ErrDecode
	}
	return ErrOther
}
