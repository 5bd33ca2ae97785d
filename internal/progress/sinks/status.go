package sinks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
	"github.com/JakeFAU/spa-harvester/internal/progress"
)

// Run states reported by StatusSink.
const (
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// FileState is the latest phase of one resource.
type FileState struct {
	URL         string        `json:"url"`
	DisplayName string        `json:"display_name"`
	Phase       harvest.Phase `json:"phase"`
}

// RunSnapshot is the externally visible state of a run.
type RunSnapshot struct {
	RunID     string      `json:"run_id"`
	State     string      `json:"state"`
	StartedAt time.Time   `json:"started_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	Current   int         `json:"current"`
	Total     int         `json:"total"`
	Success   int         `json:"success"`
	Errors    int         `json:"errors"`
	Message   string      `json:"message,omitempty"`
	Error     string      `json:"error,omitempty"`
	Files     []FileState `json:"files"`
}

type runState struct {
	snap  RunSnapshot
	files map[string]FileState
}

// StatusSink keeps the latest state of recent runs in memory for the HTTP API.
type StatusSink struct {
	mu      sync.RWMutex
	runs    map[uuid.UUID]*runState
	order   []uuid.UUID
	keep    int
	current uuid.UUID
}

// NewStatusSink retains at most keep runs (default 16).
func NewStatusSink(keep int) *StatusSink {
	if keep <= 0 {
		keep = 16
	}
	return &StatusSink{runs: make(map[uuid.UUID]*runState), keep: keep}
}

// Consume folds events into the per-run snapshots.
func (s *StatusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		st := s.stateLocked(evt)
		st.snap.UpdatedAt = evt.TS
		switch evt.Kind {
		case progress.KindProgress:
			st.snap.Current, st.snap.Total = evt.Current, evt.Total
			st.snap.Success, st.snap.Errors = evt.Success, evt.Errors
			st.snap.Message = evt.Message
		case progress.KindFileStatus:
			st.files[evt.URL] = FileState{URL: evt.URL, DisplayName: evt.DisplayName, Phase: evt.Phase}
		case progress.KindCompletion:
			st.snap.State = StateCompleted
			st.snap.Current, st.snap.Total = evt.Total, evt.Total
			st.snap.Success, st.snap.Errors = evt.Success, evt.Errors
		case progress.KindError:
			st.snap.State = StateFailed
			st.snap.Error = evt.Message
		}
	}
	return nil
}

func (s *StatusSink) stateLocked(evt progress.Event) *runState {
	id := evt.RunUUID()
	st, ok := s.runs[id]
	if ok {
		return st
	}
	st = &runState{
		snap:  RunSnapshot{RunID: id.String(), State: StateRunning, StartedAt: evt.TS},
		files: make(map[string]FileState),
	}
	s.runs[id] = st
	s.order = append(s.order, id)
	s.current = id
	for len(s.order) > s.keep {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
	return st
}

// Snapshot returns the state of runID.
func (s *StatusSink) Snapshot(runID uuid.UUID) (RunSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.runs[runID]
	if !ok {
		return RunSnapshot{}, false
	}
	return st.export(), true
}

// Latest returns the most recently started run.
func (s *StatusSink) Latest() (RunSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.runs[s.current]
	if !ok {
		return RunSnapshot{}, false
	}
	return st.export(), true
}

func (st *runState) export() RunSnapshot {
	snap := st.snap
	snap.Files = make([]FileState, 0, len(st.files))
	for _, f := range st.files {
		snap.Files = append(snap.Files, f)
	}
	sort.Slice(snap.Files, func(i, j int) bool { return snap.Files[i].URL < snap.Files[j].URL })
	return snap
}

// Close implements the Sink interface; it performs no action.
func (s *StatusSink) Close(context.Context) error {
	return nil
}
