package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
)

// ExampleHub_Emit shows a run's end flushing the pending batch ahead of the timer.
func ExampleHub_Emit() {
	var batches []int
	sink := sinkFunc(func(_ context.Context, batch []Event) error {
		batches = append(batches, len(batch))
		return nil
	})
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 50,
		MaxBatchWait:   time.Hour,
	}, sink)

	run := UUIDToBytes(uuid.MustParse("00000000-0000-0000-0000-000000000001"))
	hub.Emit(Event{RunID: run, TS: time.Unix(0, 0), Kind: KindProgress, Message: "Scanning for JavaScript resources..."})
	hub.Emit(Event{RunID: run, TS: time.Unix(1, 0), Kind: KindProgress, Current: 1, Total: 1, Success: 1})
	hub.Emit(Event{RunID: run, TS: time.Unix(2, 0), Kind: KindCompletion, Current: 1, Total: 1, Success: 1})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Println("batches:", batches)
	// Output:
	// batches: [3]
}

// ExampleReporter shows reporter calls arriving at a custom Sink.
func ExampleReporter() {
	var done int
	capture := sinkFunc(func(_ context.Context, batch []Event) error {
		for _, evt := range batch {
			if evt.Kind == KindFileStatus && evt.Phase == harvest.PhaseDone {
				done++
			}
		}
		return nil
	})
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 1,
		MaxBatchWait:   time.Second,
	}, capture)

	reporter := NewReporter(hub, uuid.MustParse("00000000-0000-0000-0000-000000000002"), nil)
	reporter.FileStatus("https://static.whatsapp.net/rsrc.php/v4/a.js", "a.js", harvest.PhaseFetching)
	reporter.FileStatus("https://static.whatsapp.net/rsrc.php/v4/a.js", "a.js", harvest.PhaseDone)
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("files done: %d\n", done)
	// Output:
	// files done: 1
}

type sinkFunc func(context.Context, []Event) error

func (f sinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

func (sinkFunc) Close(context.Context) error {
	return nil
}
