package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
	"github.com/JakeFAU/spa-harvester/internal/progress"
	"github.com/JakeFAU/spa-harvester/internal/store"
)

// TestStoreSinkPersistsRun ensures the run start, terminal files, and completion are written in order.
func TestStoreSinkPersistsRun(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	runUUID := uuid.New()
	runID := progress.UUIDToBytes(runUUID)
	now := time.Now()

	batch := []progress.Event{
		{RunID: runID, Kind: progress.KindProgress, TS: now},
		{RunID: runID, Kind: progress.KindFileStatus, URL: "https://h/a.js", Phase: harvest.PhaseFetching, TS: now},
		{RunID: runID, Kind: progress.KindFileStatus, URL: "https://h/a.js", Phase: harvest.PhaseDone, TS: now},
		{RunID: runID, Kind: progress.KindFileStatus, URL: "https://h/b.js", Phase: harvest.PhaseFailed, TS: now},
		{RunID: runID, Kind: progress.KindCompletion, Total: 2, Success: 1, Errors: 1, TS: now.Add(time.Second)},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, []string{"start", "files:2", "complete:success"}, repo.calls)
	require.Equal(t, store.Counts{Total: 2, Success: 1, Errors: 1}, repo.counts)
	require.Equal(t, runUUID, repo.files[0].RunID)
}

// TestStoreSinkStartsOncePerRun only upserts the start the first time a run is seen.
func TestStoreSinkStartsOncePerRun(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	runID := progress.UUIDToBytes(uuid.New())
	evt := progress.Event{RunID: runID, Kind: progress.KindProgress, TS: time.Now()}

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{evt}))
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{evt, evt}))
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Kind: progress.KindError, Message: "boom", TS: time.Now()},
	}))
	require.Equal(t, []string{"start", "complete:error"}, repo.calls)
	require.NotNil(t, repo.errMsg)
	require.Equal(t, "boom", *repo.errMsg)
}

// TestStoreSinkHandlesErrors surfaces repository failures back to the caller.
func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{fail: true}
	sink := NewStoreSink(repo, nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: progress.UUIDToBytes(uuid.New()), Kind: progress.KindProgress, TS: time.Now()},
	})
	require.Error(t, err)
}

type fakeRunRepo struct {
	fail   bool
	calls  []string
	files  []store.FileRecord
	counts store.Counts
	errMsg *string
}

func (f *fakeRunRepo) UpsertRunStart(context.Context, uuid.UUID, time.Time) error {
	if f.fail {
		return assertErr("start")
	}
	f.calls = append(f.calls, "start")
	return nil
}

func (f *fakeRunRepo) RecordFiles(_ context.Context, records []store.FileRecord) error {
	if f.fail {
		return assertErr("files")
	}
	f.calls = append(f.calls, "files:"+string(rune('0'+len(records))))
	f.files = append(f.files, records...)
	return nil
}

func (f *fakeRunRepo) CompleteRun(
	_ context.Context,
	_ uuid.UUID,
	_ time.Time,
	status store.RunStatus,
	counts store.Counts,
	errMsg *string,
) error {
	if f.fail {
		return assertErr("complete")
	}
	f.calls = append(f.calls, "complete:"+string(status))
	f.counts = counts
	f.errMsg = errMsg
	return nil
}

func (f *fakeRunRepo) GetRun(context.Context, uuid.UUID) (store.Run, error) {
	return store.Run{}, assertErr("read")
}

func (f *fakeRunRepo) ListRuns(context.Context, *store.RunStatus, int, int) ([]store.Run, error) {
	return nil, assertErr("list")
}

func (f *fakeRunRepo) ListRunFiles(context.Context, uuid.UUID, int, int) ([]store.FileRecord, error) {
	return nil, assertErr("files")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
