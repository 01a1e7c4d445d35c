package logging

import (
	"context"
	"log/slog"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
)

// ProgressLogger writes every workflow progress entry to the logger.
type ProgressLogger struct {
	logger *slog.Logger
}

func NewProgressLogger(logger *slog.Logger) *ProgressLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressLogger{logger: logger}
}

func (p *ProgressLogger) OnProgress(ctx context.Context, event domain.ProgressEvent) {
	level := slog.LevelDebug
	if event.Progress.Status == domain.WorkflowFailed {
		level = slog.LevelWarn
	}
	p.logger.Log(ctx, level, "workflow_progress",
		"run_id", event.RunID,
		"file_index", event.FileIndex,
		"filename", event.Filename,
		"status", string(event.Progress.Status),
		"step", event.Progress.Step,
		"progress_percent", event.Progress.ProgressPercent,
		"message", event.Progress.Message,
	)
}
