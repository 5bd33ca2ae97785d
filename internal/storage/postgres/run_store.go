// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/spa-harvester/internal/store"
)

// Schema creates the tables used by RunStore.
const Schema = `
CREATE TABLE IF NOT EXISTS harvest_runs (
	id            UUID PRIMARY KEY,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ,
	status        TEXT NOT NULL,
	total         INTEGER NOT NULL DEFAULT 0,
	success       INTEGER NOT NULL DEFAULT 0,
	errors        INTEGER NOT NULL DEFAULT 0,
	error_message TEXT
);
CREATE TABLE IF NOT EXISTS harvest_files (
	run_id       UUID NOT NULL REFERENCES harvest_runs (id) ON DELETE CASCADE,
	url          TEXT NOT NULL,
	display_name TEXT NOT NULL,
	phase        TEXT NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, url)
);`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// RunStore implements store.RunRepository using Postgres.
type RunStore struct {
	pool pgxPool
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore connects a pool using cfg.
func NewRunStore(ctx context.Context, cfg Config) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: pool}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(pool pgxPool) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the run tables when they are missing.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertRunStart inserts the run row; a repeated call keeps the first start.
func (s *RunStore) UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	query := `
		INSERT INTO harvest_runs (id, started_at, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, runID, startedAt, string(store.RunRunning)); err != nil {
		return fmt.Errorf("upsert run start: %w", err)
	}
	return nil
}

// RecordFiles upserts all records in a single transaction.
func (s *RunStore) RecordFiles(ctx context.Context, records []store.FileRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record files: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := `
		INSERT INTO harvest_files (run_id, url, display_name, phase, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, url) DO UPDATE
		SET display_name = EXCLUDED.display_name,
			phase = EXCLUDED.phase,
			recorded_at = EXCLUDED.recorded_at;
	`
	for _, rec := range records {
		if _, err = tx.Exec(ctx, query, rec.RunID, rec.URL, rec.DisplayName, rec.Phase, rec.At); err != nil {
			return fmt.Errorf("record file %s: %w", rec.URL, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit record files: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished with its tallies and optional error message.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	counts store.Counts,
	errMsg *string,
) error {
	query := `
		UPDATE harvest_runs
		SET finished_at = $1, status = $2, total = $3, success = $4, errors = $5, error_message = $6
		WHERE id = $7;
	`
	res, err := s.pool.Exec(ctx, query,
		finishedAt, string(status), counts.Total, counts.Success, counts.Errors, errMsg, runID)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const runColumns = `id, started_at, finished_at, status, total, success, errors, error_message`

func scanRun(row pgx.Row) (store.Run, error) {
	var (
		run    store.Run
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.Counts.Total,
		&run.Counts.Success,
		&run.Counts.Errors,
		&run.ErrorMessage,
	)
	run.Status = store.RunStatus(status)
	return run, err
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := `SELECT ` + runColumns + ` FROM harvest_runs WHERE id = $1;`
	run, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional status filtering.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	query := `SELECT ` + runColumns + ` FROM harvest_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;`
	rows, err := s.pool.Query(ctx, query, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// ListRunFiles retrieves per-file outcomes of a run in URL order.
func (s *RunStore) ListRunFiles(ctx context.Context, runID uuid.UUID, limit, offset int) ([]store.FileRecord, error) {
	query := `
		SELECT run_id, url, display_name, phase, recorded_at
		FROM harvest_files
		WHERE run_id = $1
		ORDER BY url
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list run files: %w", err)
	}
	defer rows.Close()

	var files []store.FileRecord
	for rows.Next() {
		var rec store.FileRecord
		if err := rows.Scan(&rec.RunID, &rec.URL, &rec.DisplayName, &rec.Phase, &rec.At); err != nil {
			return nil, fmt.Errorf("scan file row: %w", err)
		}
		files = append(files, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list run files: %w", err)
	}
	return files, nil
}
