package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
	"github.com/JakeFAU/spa-harvester/internal/progress"
)

// TestStatusSinkTracksRun folds progress, file, and completion events into one snapshot.
func TestStatusSinkTracksRun(t *testing.T) {
	t.Parallel()

	sink := NewStatusSink(0)
	id := uuid.New()
	runID := progress.UUIDToBytes(id)
	now := time.Now()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Kind: progress.KindProgress, Total: 2, Message: "Scanning for JavaScript resources..."},
		{RunID: runID, TS: now, Kind: progress.KindFileStatus, URL: "https://h/b.js", DisplayName: "b.js", Phase: harvest.PhaseFetching},
		{RunID: runID, TS: now, Kind: progress.KindFileStatus, URL: "https://h/a.js", DisplayName: "a.js", Phase: harvest.PhaseDone},
		{RunID: runID, TS: now, Kind: progress.KindFileStatus, URL: "https://h/b.js", DisplayName: "b.js", Phase: harvest.PhaseFailed},
	}))
	snap, ok := sink.Latest()
	require.True(t, ok)
	require.Equal(t, StateRunning, snap.State)
	require.Equal(t, []FileState{
		{URL: "https://h/a.js", DisplayName: "a.js", Phase: harvest.PhaseDone},
		{URL: "https://h/b.js", DisplayName: "b.js", Phase: harvest.PhaseFailed},
	}, snap.Files)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now.Add(time.Second), Kind: progress.KindCompletion, Total: 2, Success: 1, Errors: 1},
	}))
	snap, ok = sink.Snapshot(id)
	require.True(t, ok)
	require.Equal(t, StateCompleted, snap.State)
	require.Equal(t, 1, snap.Success)
	require.Equal(t, 1, snap.Errors)
	require.Equal(t, now, snap.StartedAt)
}

// TestStatusSinkEvictsOldRuns keeps only the configured number of runs.
func TestStatusSinkEvictsOldRuns(t *testing.T) {
	t.Parallel()

	sink := NewStatusSink(2)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, sink.Consume(context.Background(), []progress.Event{
			{RunID: progress.UUIDToBytes(id), TS: time.Now(), Kind: progress.KindError, Message: "x"},
		}))
	}
	_, ok := sink.Snapshot(ids[0])
	require.False(t, ok)
	latest, ok := sink.Latest()
	require.True(t, ok)
	require.Equal(t, ids[2].String(), latest.RunID)
	require.Equal(t, StateFailed, latest.State)
}
