package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config controls buffering and batching for the Hub. Zero values fall back
// to the package defaults.
type Config struct {
	// BufferSize is the capacity of the event channel.
	BufferSize int
	// MaxBatchEvents flushes a batch once it holds this many events.
	MaxBatchEvents int
	// MaxBatchWait bounds how long the first event of a batch waits for company.
	MaxBatchWait time.Duration
	// SinkTimeout bounds each Consume call.
	SinkTimeout time.Duration
	// BaseContext is the parent of every sink call. It must outlive the runs
	// that emit into the hub.
	BaseContext context.Context
	Logger      *zap.Logger
}

const (
	defaultBufferSize     = 1024
	defaultMaxBatchEvents = 64
	defaultMaxBatchWait   = 200 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	dropLogInterval       = 5 * time.Second
)

// Hub batches run events and fans them out to sinks on one goroutine, so
// sinks see events in emission order. Emit never blocks. Progress and file
// events are dropped when the buffer is full; completion and error events
// are parked in an overflow list instead and never lost.
//
// A terminal event also flushes the pending batch straight away.
type Hub struct {
	cfg    Config
	sinks  []Sink
	events chan Event
	kick   chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
	logger *zap.Logger

	overflowMu sync.Mutex
	overflow   []Event

	dropLog    rate.Sometimes
	dropped    atomic.Int64
	droppedAll atomic.Int64
	sinkErrs   atomic.Int64
	closed     atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts the batching goroutine over sinks.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:     cfg,
		sinks:   append([]Sink(nil), sinks...),
		events:  make(chan Event, cfg.BufferSize),
		kick:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  logger,
		dropLog: rate.Sometimes{Interval: dropLogInterval},
	}
	go h.run()
	return h
}

// Emit enqueues evt. Invalid events and events emitted after Close are
// discarded.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid run event", zap.String("kind", string(evt.Kind)), zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
		return
	default:
	}
	if evt.Terminal() {
		h.overflowMu.Lock()
		h.overflow = append(h.overflow, evt)
		h.overflowMu.Unlock()
		select {
		case h.kick <- struct{}{}:
		default:
		}
		return
	}
	h.dropped.Add(1)
	h.droppedAll.Add(1)
	h.dropLog.Do(func() {
		h.logger.Warn("run events dropped due to backpressure", zap.Int64("dropped", h.dropped.Swap(0)))
	})
}

// Dropped reports how many events were discarded due to backpressure.
func (h *Hub) Dropped() int64 {
	if h == nil {
		return 0
	}
	return h.droppedAll.Load()
}

// SinkErrors reports how many Consume calls have failed.
func (h *Hub) SinkErrors() int64 {
	if h == nil {
		return 0
	}
	return h.sinkErrs.Load()
}

// Close stops intake, drains buffered and parked events into the sinks,
// closes the sinks, and waits for the batching goroutine until ctx expires.
// Repeated calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	b := batcher{hub: h, events: make([]Event, 0, h.cfg.MaxBatchEvents)}
	for {
		select {
		case evt := <-h.events:
			b.add(evt)
		case <-h.kick:
			b.addAll(h.takeOverflow())
		case <-b.deadline:
			b.flush()
		case <-h.stopCh:
			h.drain(&b)
			return
		}
	}
}

func (h *Hub) drain(b *batcher) {
	for {
		select {
		case evt := <-h.events:
			b.add(evt)
		default:
			b.addAll(h.takeOverflow())
			b.flush()
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) takeOverflow() []Event {
	h.overflowMu.Lock()
	defer h.overflowMu.Unlock()
	out := h.overflow
	h.overflow = nil
	return out
}

// batcher owns the pending batch. Only the run goroutine touches it.
type batcher struct {
	hub      *Hub
	events   []Event
	deadline <-chan time.Time
}

func (b *batcher) add(evt Event) {
	if len(b.events) == 0 {
		b.deadline = time.After(b.hub.cfg.MaxBatchWait)
	}
	b.events = append(b.events, evt)
	if len(b.events) >= b.hub.cfg.MaxBatchEvents || evt.Terminal() {
		b.flush()
	}
}

func (b *batcher) addAll(evts []Event) {
	for _, evt := range evts {
		b.add(evt)
	}
}

func (b *batcher) flush() {
	b.deadline = nil
	if len(b.events) == 0 {
		return
	}
	batch := append([]Event(nil), b.events...)
	b.events = b.events[:0]
	b.hub.deliver(batch)
}

func (h *Hub) deliver(batch []Event) {
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			h.sinkErrs.Add(1)
			h.logger.Warn("progress sink consume failed",
				zap.String("sink", fmt.Sprintf("%T", sink)),
				zap.Int("batch", len(batch)),
				zap.Error(err),
			)
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}
