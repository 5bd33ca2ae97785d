package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the harvest_runs status column.
type RunStatus string

// Run statuses persisted in harvest_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Counts are the final tallies of a run.
type Counts struct {
	Total   int
	Success int
	Errors  int
}

// Run models the harvest_runs table for API responses.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     RunStatus
	Counts     Counts
	// ErrorMessage optionally stores the terminal discovery or delivery failure.
	ErrorMessage *string
}

// FileRecord is the terminal outcome of one resource within a run.
type FileRecord struct {
	RunID       uuid.UUID
	URL         string
	DisplayName string
	Phase       string
	At          time.Time
}

// RunRepository persists run lifecycles and per-file outcomes.
type RunRepository interface {
	// UpsertRunStart inserts (or idempotently keeps) the started_at timestamp.
	UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time) error
	// RecordFiles upserts terminal per-file outcomes.
	RecordFiles(ctx context.Context, records []FileRecord) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(
		ctx context.Context,
		runID uuid.UUID,
		finishedAt time.Time,
		status RunStatus,
		counts Counts,
		errMsg *string,
	) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs filtered by optional status plus limit/offset.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListRunFiles returns the per-file outcomes of one run.
	ListRunFiles(ctx context.Context, runID uuid.UUID, limit, offset int) ([]FileRecord, error)
}
