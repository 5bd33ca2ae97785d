package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
)

// TestHubBatchBySize verifies the hub flushes immediately once the batch size limit is reached.
func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	evt := sampleEvent(KindProgress)
	hub.Emit(evt)
	hub.Emit(evt)
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1 && len(sink.Batches()[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubBatchByTimer verifies the timer-based flush kicks in when the batch is small.
func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(KindProgress))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

// TestHubEmitNonBlockingWithoutConsumers asserts Emit never blocks callers, even without sinks.
func TestHubEmitNonBlockingWithoutConsumers(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		cfg:    Config{},
		events: make(chan Event),
		logger: zap.NewNop(),
	}
	start := time.Now()
	hub.Emit(sampleEvent(KindProgress))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

// TestHubFlushOnClose ensures Close drains any buffered events before returning.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	evt := sampleEvent(KindProgress)
	hub.Emit(evt)

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
}

func newStubSink() *stubSink {
	return &stubSink{batches: [][]Event{}}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyBatch := append([]Event(nil), batch...)
	s.batches = append(s.batches, copyBatch)
	return nil
}

func (s *stubSink) Close(context.Context) error {
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

func sampleEvent(kind Kind) Event {
	evt := Event{
		RunID: UUIDToBytes(uuid.New()),
		TS:    time.Now(),
		Kind:  kind,
	}
	switch kind {
	case KindFileStatus:
		evt.URL = "https://static.whatsapp.net/rsrc.php/v4/a.js"
		evt.Phase = harvest.PhaseFetching
	case KindError:
		evt.Message = "boom"
	}
	return evt
}

// TestHubDropsWhenFull counts dropped progress events and parks terminal ones.
func TestHubDropsWhenFull(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		cfg:    Config{},
		events: make(chan Event, 1),
		logger: zap.NewNop(),
	}
	hub.Emit(sampleEvent(KindProgress))
	hub.Emit(sampleEvent(KindProgress))
	hub.Emit(sampleEvent(KindError))
	require.EqualValues(t, 1, hub.Dropped())

	parked := hub.takeOverflow()
	require.Len(t, parked, 1)
	require.Equal(t, KindError, parked[0].Kind)
}

// TestHubTerminalEventFlushesBatch delivers a run's end without waiting for the timer.
func TestHubTerminalEventFlushesBatch(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(KindProgress))
	hub.Emit(sampleEvent(KindCompletion))
	require.Eventually(t, func() bool {
		batches := sink.Batches()
		return len(batches) == 1 && len(batches[0]) == 2 && batches[0][1].Kind == KindCompletion
	}, time.Second, 5*time.Millisecond)
}

// TestHubCountsSinkErrors keeps delivering to healthy sinks when one fails.
func TestHubCountsSinkErrors(t *testing.T) {
	t.Parallel()

	healthy := newStubSink()
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 1, MaxBatchWait: time.Minute}, failingSink{}, healthy)

	hub.Emit(sampleEvent(KindProgress))
	require.NoError(t, hub.Close(context.Background()))
	require.EqualValues(t, 1, hub.SinkErrors())
	require.Len(t, healthy.Batches(), 1)
}

type failingSink struct{}

func (failingSink) Consume(context.Context, []Event) error { return errors.New("sink down") }

func (failingSink) Close(context.Context) error { return nil }

// TestHubDiscardsInvalidEvents never forwards events failing validation.
func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 1, MaxBatchWait: time.Minute}, sink)

	hub.Emit(Event{Kind: KindProgress, TS: time.Now()})
	bad := sampleEvent(KindFileStatus)
	bad.URL = ""
	hub.Emit(bad)
	hub.Emit(sampleEvent(KindFileStatus))

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
}
