package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/spa-harvester/internal/store"
)

func newMockStore(t *testing.T) (*RunStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewRunStoreWithPool(mock)
	require.NoError(t, err)
	return s, mock
}

// TestUpsertRunStartInsertsRow writes a running row keyed by run ID.
func TestUpsertRunStartInsertsRow(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	runID := uuid.New()
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO harvest_runs").
		WithArgs(runID, now, "running").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertRunStart(context.Background(), runID, now))
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestRecordFilesUsesTransaction commits all rows together and rolls back on failure.
func TestRecordFilesUsesTransaction(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	runID := uuid.New()
	now := time.Unix(1700000000, 0).UTC()
	recs := []store.FileRecord{
		{RunID: runID, URL: "https://h/a.js", DisplayName: "a.js", Phase: "done", At: now},
		{RunID: runID, URL: "https://h/b.js", DisplayName: "b.js", Phase: "failed", At: now},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO harvest_files").
		WithArgs(runID, "https://h/a.js", "a.js", "done", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO harvest_files").
		WithArgs(runID, "https://h/b.js", "b.js", "failed", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	require.NoError(t, s.RecordFiles(context.Background(), recs))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO harvest_files").
		WithArgs(runID, "https://h/a.js", "a.js", "done", now).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()
	require.ErrorContains(t, s.RecordFiles(context.Background(), recs[:1]), "disk full")

	require.NoError(t, s.RecordFiles(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestCompleteRunUpdatesTallies returns ErrNotFound when no row was updated.
func TestCompleteRunUpdatesTallies(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	runID := uuid.New()
	now := time.Unix(1700000000, 0).UTC()
	msg := "no resources"

	mock.ExpectExec("UPDATE harvest_runs").
		WithArgs(now, "success", 3, 2, 1, (*string)(nil), runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, s.CompleteRun(context.Background(), runID, now, store.RunSuccess,
		store.Counts{Total: 3, Success: 2, Errors: 1}, nil))

	mock.ExpectExec("UPDATE harvest_runs").
		WithArgs(now, "error", 0, 0, 0, &msg, runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err := s.CompleteRun(context.Background(), runID, now, store.RunError, store.Counts{}, &msg)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestGetRunScansRow maps columns and missing rows.
func TestGetRunScansRow(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	runID := uuid.New()
	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(time.Minute)

	cols := []string{"id", "started_at", "finished_at", "status", "total", "success", "errors", "error_message"}
	mock.ExpectQuery("SELECT (.+) FROM harvest_runs WHERE id").
		WithArgs(runID).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(runID, started, &finished, "success", 4, 4, 0, nil))

	run, err := s.GetRun(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, runID, run.ID)
	require.Equal(t, store.RunSuccess, run.Status)
	require.Equal(t, store.Counts{Total: 4, Success: 4}, run.Counts)
	require.NotNil(t, run.FinishedAt)
	require.Nil(t, run.ErrorMessage)

	mock.ExpectQuery("SELECT (.+) FROM harvest_runs WHERE id").
		WithArgs(runID).
		WillReturnError(pgx.ErrNoRows)
	_, err = s.GetRun(context.Background(), runID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestListRunsFiltersByStatus passes the optional status through as text.
func TestListRunsFiltersByStatus(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	started := time.Unix(1700000000, 0).UTC()
	status := store.RunError
	filter := "error"

	cols := []string{"id", "started_at", "finished_at", "status", "total", "success", "errors", "error_message"}
	mock.ExpectQuery("FROM harvest_runs").
		WithArgs(&filter, 10, 0).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(uuid.New(), started, nil, "error", 0, 0, 0, nil).
			AddRow(uuid.New(), started.Add(-time.Hour), nil, "error", 0, 0, 0, nil))

	runs, err := s.ListRuns(context.Background(), &status, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, store.RunError, runs[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestListRunFilesScansRows returns per-file outcomes.
func TestListRunFilesScansRows(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	runID := uuid.New()
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("FROM harvest_files").
		WithArgs(runID, 50, 0).
		WillReturnRows(pgxmock.NewRows([]string{"run_id", "url", "display_name", "phase", "recorded_at"}).
			AddRow(runID, "https://h/a.js", "a.js", "done", now))

	files, err := s.ListRunFiles(context.Background(), runID, 50, 0)
	require.NoError(t, err)
	require.Equal(t, []store.FileRecord{
		{RunID: runID, URL: "https://h/a.js", DisplayName: "a.js", Phase: "done", At: now},
	}, files)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestNewRunStoreValidation rejects missing configuration.
func TestNewRunStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRunStoreWithPool(nil)
	require.Error(t, err)
	_, err = NewRunStore(context.Background(), Config{})
	require.Error(t, err)
}
