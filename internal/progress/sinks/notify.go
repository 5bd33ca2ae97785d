package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/spa-harvester/internal/progress"
)

// Publisher delivers notification payloads to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Notification is the message published when a run finishes.
type Notification struct {
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	Total      int       `json:"total"`
	Success    int       `json:"success"`
	Errors     int       `json:"errors"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Attributes exposes run_id and status for subscription filters.
func (n Notification) Attributes() map[string]string {
	return map[string]string{"run_id": n.RunID, "status": n.Status}
}

// NotifySink publishes one Notification per finished run. Progress and file
// events are ignored.
type NotifySink struct {
	pub    Publisher
	topic  string
	logger *zap.Logger
}

// NewNotifySink builds a sink publishing to topic.
func NewNotifySink(pub Publisher, topic string, logger *zap.Logger) *NotifySink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifySink{pub: pub, topic: topic, logger: logger}
}

// Consume publishes completion and error events.
func (s *NotifySink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.pub == nil {
		return nil
	}
	for _, evt := range batch {
		var n Notification
		switch evt.Kind {
		case progress.KindCompletion:
			n = Notification{Status: "success", Total: evt.Total, Success: evt.Success, Errors: evt.Errors}
		case progress.KindError:
			n = Notification{Status: "error", Error: evt.Message}
		default:
			continue
		}
		n.RunID = evt.RunUUID().String()
		n.FinishedAt = evt.TS.UTC()
		id, err := s.pub.Publish(ctx, s.topic, n)
		if err != nil {
			return fmt.Errorf("publish run %s: %w", n.RunID, err)
		}
		s.logger.Debug("run notification published",
			zap.String("run_id", n.RunID),
			zap.String("message_id", id),
		)
	}
	return nil
}

// Close implements the Sink interface; the publisher is owned by the caller.
func (s *NotifySink) Close(context.Context) error {
	return nil
}
