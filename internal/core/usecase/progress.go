package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/ports"
)

// progressTracker keeps the append-only progress history of one file.
// It is owned by a single goroutine.
type progressTracker struct {
	ctx       context.Context
	observers []ports.ProgressObserver
	now       func() time.Time

	runID    string
	index    int
	filename string

	entries []domain.WorkflowProgress
	last    int
}

func newProgressTracker(
	ctx context.Context,
	observers []ports.ProgressObserver,
	now func() time.Time,
	runID string,
	index int,
	filename string,
) *progressTracker {
	return &progressTracker{
		ctx:       ctx,
		observers: observers,
		now:       now,
		runID:     runID,
		index:     index,
		filename:  filename,
	}
}

// emit appends an entry; percent never drops below the previous entry.
func (t *progressTracker) emit(status domain.WorkflowStatus, step string, percent int, message string, details map[string]any) {
	if percent < t.last {
		percent = t.last
	}
	if percent > 100 {
		percent = 100
	}
	t.last = percent

	entry := domain.WorkflowProgress{
		Status:          status,
		Step:            step,
		ProgressPercent: percent,
		Message:         message,
		Timestamp:       t.now().UTC(),
		Details:         details,
	}
	t.entries = append(t.entries, entry)
	t.notify(entry)
}

// fail records the terminal FAILED entry at the last reached percent.
func (t *progressTracker) fail(step, reason string) {
	t.emit(domain.WorkflowFailed, step, t.last, reason, nil)
}

func (t *progressTracker) history() []domain.WorkflowProgress {
	out := make([]domain.WorkflowProgress, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *progressTracker) notify(entry domain.WorkflowProgress) {
	if len(t.observers) == 0 {
		return
	}
	event := domain.ProgressEvent{
		RunID:     t.runID,
		FileIndex: t.index,
		Filename:  t.filename,
		Progress:  entry,
	}
	for _, observer := range t.observers {
		notifyObserver(t.ctx, observer, event)
	}
}

func notifyObserver(ctx context.Context, observer ports.ProgressObserver, event domain.ProgressEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("progress_observer_panic", "run_id", event.RunID, "file_index", event.FileIndex, "panic", r)
		}
	}()
	observer.OnProgress(ctx, event)
}
