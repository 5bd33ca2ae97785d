package sinks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/spa-harvester/internal/progress"
)

// PrometheusSink exports harvest progress via Prometheus. It owns all
// collectors for runs started/completed/running and per-phase file counters.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	files         *prometheus.CounterVec
	lastResources prometheus.Gauge

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_runs_started_total",
			Help: "Total harvest runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_runs_completed_total",
			Help: "Total harvest runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvester_runs_running",
			Help: "Current number of running harvests.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvester_run_duration_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_files_total",
			Help: "Resources that reached a terminal phase, partitioned by phase.",
		}, []string{"phase"}),
		lastResources: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvester_last_run_resources",
			Help: "Resources discovered by the most recently completed run.",
		}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.files,
		s.lastResources,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	if s.tracker.start(evt.RunID, evt.TS) {
		s.runsStarted.Inc()
		s.runsRunning.Inc()
	}
	switch evt.Kind {
	case progress.KindFileStatus:
		if evt.Phase.Terminal() {
			s.files.WithLabelValues(string(evt.Phase)).Inc()
		}
	case progress.KindCompletion:
		s.lastResources.Set(float64(evt.Total))
		s.finish(evt, "success")
	case progress.KindError:
		s.finish(evt, "error")
	}
}

func (s *PrometheusSink) finish(evt progress.Event, label string) {
	s.runsCompleted.WithLabelValues(label).Inc()
	started, ok := s.tracker.complete(evt.RunID)
	if !ok {
		return
	}
	s.runsRunning.Dec()
	if d := evt.TS.Sub(started); d > 0 {
		s.runDuration.WithLabelValues(label).Observe(d.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// runTracker remembers when each in-flight run was first seen.
type runTracker struct {
	mu       sync.Mutex
	running  map[[16]byte]time.Time
	finished map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{
		running:  make(map[[16]byte]time.Time),
		finished: make(map[[16]byte]struct{}),
	}
}

// start returns true the first time a run is seen.
func (t *runTracker) start(id [16]byte, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	if _, ok := t.finished[id]; ok {
		return false
	}
	t.running[id] = at
	return true
}

func (t *runTracker) complete(id [16]byte) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.running[id]
	if !ok {
		return time.Time{}, false
	}
	delete(t.running, id)
	t.finished[id] = struct{}{}
	return at, true
}

var _ progress.Sink = (*PrometheusSink)(nil)
