package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/spa-harvester/internal/progress"
	"github.com/JakeFAU/spa-harvester/internal/store"
)

// StoreSink persists run history via a store.RunRepository. Terminal file
// outcomes are buffered and written in one call per batch.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger

	mu      sync.Mutex
	started map[uuid.UUID]struct{}
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger, started: make(map[uuid.UUID]struct{})}
}

// Consume writes run starts, file outcomes, and run completions in event
// order. It respects ctx deadlines and returns repository errors verbatim.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	var files []store.FileRecord
	flushFiles := func() error {
		if len(files) == 0 {
			return nil
		}
		if err := s.repo.RecordFiles(ctx, files); err != nil {
			return fmt.Errorf("record files: %w", err)
		}
		files = nil
		return nil
	}

	for _, evt := range batch {
		runID := evt.RunUUID()
		if err := s.ensureStarted(ctx, runID, evt); err != nil {
			return err
		}
		switch evt.Kind {
		case progress.KindFileStatus:
			if evt.Phase.Terminal() {
				files = append(files, store.FileRecord{
					RunID:       runID,
					URL:         evt.URL,
					DisplayName: evt.DisplayName,
					Phase:       string(evt.Phase),
					At:          evt.TS,
				})
			}
		case progress.KindCompletion, progress.KindError:
			if err := flushFiles(); err != nil {
				return err
			}
			if err := s.complete(ctx, runID, evt); err != nil {
				return err
			}
		}
	}
	return flushFiles()
}

func (s *StoreSink) ensureStarted(ctx context.Context, runID uuid.UUID, evt progress.Event) error {
	s.mu.Lock()
	_, seen := s.started[runID]
	s.mu.Unlock()
	if seen {
		return nil
	}
	if err := s.repo.UpsertRunStart(ctx, runID, evt.TS); err != nil {
		return fmt.Errorf("upsert run start: %w", err)
	}
	s.mu.Lock()
	s.started[runID] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *StoreSink) complete(ctx context.Context, runID uuid.UUID, evt progress.Event) error {
	status := store.RunSuccess
	var msg *string
	if evt.Kind == progress.KindError {
		status = store.RunError
		text := evt.Message
		msg = &text
	}
	counts := store.Counts{Total: evt.Total, Success: evt.Success, Errors: evt.Errors}
	if err := s.repo.CompleteRun(ctx, runID, evt.TS, status, counts, msg); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	s.mu.Lock()
	delete(s.started, runID)
	s.mu.Unlock()
	s.logger.Debug("run recorded", zap.String("run_id", runID.String()), zap.String("status", string(status)))
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
