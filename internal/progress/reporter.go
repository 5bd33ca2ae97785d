package progress

import (
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
)

// Reporter implements harvest.Reporter on top of an Emitter for one run.
type Reporter struct {
	emitter Emitter
	runID   [16]byte
	clock   harvest.Clock
}

// NewReporter binds reporter calls to runID. A nil clock uses time.Now.
func NewReporter(emitter Emitter, runID uuid.UUID, clock harvest.Clock) *Reporter {
	return &Reporter{emitter: emitter, runID: UUIDToBytes(runID), clock: clock}
}

// RunID returns the run this reporter is bound to.
func (r *Reporter) RunID() uuid.UUID { return uuid.UUID(r.runID) }

// Progress implements harvest.Reporter.
func (r *Reporter) Progress(current, total, success, errors int, message string) {
	r.emit(Event{
		Kind:    KindProgress,
		Current: current,
		Total:   total,
		Success: success,
		Errors:  errors,
		Message: message,
	})
}

// FileStatus implements harvest.Reporter.
func (r *Reporter) FileStatus(url, displayName string, phase harvest.Phase) {
	r.emit(Event{Kind: KindFileStatus, URL: url, DisplayName: displayName, Phase: phase})
}

// Completion implements harvest.Reporter.
func (r *Reporter) Completion(total, success, errors int) {
	r.emit(Event{Kind: KindCompletion, Current: total, Total: total, Success: success, Errors: errors})
}

// Error implements harvest.Reporter.
func (r *Reporter) Error(message string) {
	r.emit(Event{Kind: KindError, Message: message})
}

func (r *Reporter) emit(evt Event) {
	if r == nil || r.emitter == nil {
		return
	}
	evt.RunID = r.runID
	if r.clock != nil {
		evt.TS = r.clock.Now().UTC()
	} else {
		evt.TS = time.Now().UTC()
	}
	r.emitter.Emit(evt)
}
