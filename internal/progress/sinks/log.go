package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
	"github.com/JakeFAU/spa-harvester/internal/progress"
)

// LogSink emits structured logs for run events. It is the default sink for
// the CLI where no durable store is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event at a level matching its kind. File transitions
// other than failures are debug-level to keep large runs readable.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("kind", string(evt.Kind)),
		}
		switch evt.Kind {
		case progress.KindProgress:
			s.logger.Info(evt.Message, append(fields,
				zap.Int("current", evt.Current),
				zap.Int("total", evt.Total),
				zap.Int("success", evt.Success),
				zap.Int("errors", evt.Errors),
			)...)
		case progress.KindFileStatus:
			fields = append(fields,
				zap.String("url", evt.URL),
				zap.String("name", evt.DisplayName),
				zap.String("phase", string(evt.Phase)),
			)
			if evt.Phase == harvest.PhaseFailed {
				s.logger.Warn("resource failed", fields...)
			} else {
				s.logger.Debug("resource status", fields...)
			}
		case progress.KindCompletion:
			s.logger.Info("harvest complete", append(fields,
				zap.Int("total", evt.Total),
				zap.Int("success", evt.Success),
				zap.Int("errors", evt.Errors),
			)...)
		case progress.KindError:
			s.logger.Error("harvest failed", append(fields, zap.String("error", evt.Message))...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
