package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
)

// Kind identifies which reporter call produced an Event.
type Kind string

// Supported event kinds.
const (
	KindProgress   Kind = "progress"
	KindFileStatus Kind = "file_status"
	KindCompletion Kind = "completion"
	KindError      Kind = "error"
)

// Event captures one reporter call for a run.
type Event struct {
	// RunID uniquely identifies a harvest run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS   time.Time
	Kind Kind

	// Counters are set on progress and completion events.
	Current int
	Total   int
	Success int
	Errors  int

	// Message carries the progress text or the error text.
	Message string

	// URL, DisplayName and Phase are set on file status events.
	URL         string
	DisplayName string
	Phase       harvest.Phase
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindProgress, KindCompletion:
		if e.Current < 0 || e.Total < 0 || e.Success < 0 || e.Errors < 0 {
			return errors.New("counters must be >= 0")
		}
	case KindFileStatus:
		if e.URL == "" {
			return errors.New("file status requires url")
		}
		if e.Phase == "" {
			return errors.New("file status requires phase")
		}
	case KindError:
		if e.Message == "" {
			return errors.New("error event requires message")
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	return nil
}

// Terminal reports whether the event ends a run.
func (e Event) Terminal() bool {
	return e.Kind == KindCompletion || e.Kind == KindError
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
