// Package worker runs queued batch requests against stored objects.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/adapters/input"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/ports"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/infrastructure/report"
)

type Options struct {
	DefaultMode    domain.ProcessingMode
	MaxRetries     int
	TimeoutSeconds int
	AutoSave       bool
	SupportedTypes []string
	MaxFileSize    int64
	// ReportPrefix is the storage prefix for XLSX run reports; empty disables reports.
	ReportPrefix string
}

type Handler struct {
	workflow ports.InvoiceWorkflow
	storage  ports.ObjectStorage
	opts     Options
}

func NewHandler(workflow ports.InvoiceWorkflow, storage ports.ObjectStorage, opts Options) *Handler {
	if opts.DefaultMode == "" {
		opts.DefaultMode = domain.ModeBatch
	}
	return &Handler{workflow: workflow, storage: storage, opts: opts}
}

// Handle runs one batch request. Per-file failures stay in the run result;
// only an unusable request or an invalid configuration is returned.
func (h *Handler) Handle(ctx context.Context, req ports.BatchRequest) error {
	cfg, err := h.processingConfig(req)
	if err != nil {
		return err
	}
	logger := slog.With("request_id", req.RequestID, "mode", string(cfg.Mode), "user_email", req.UserEmail)

	files, missing, err := input.StatObjects(ctx, h.storage, req.Keys)
	if err != nil {
		return err
	}

	result, err := h.workflow.Run(ctx, input.NewStorageAdapter(), ports.InputConfig{
		Files:          files,
		SupportedTypes: h.opts.SupportedTypes,
		MaxFileSize:    h.opts.MaxFileSize,
	}, cfg)
	if err != nil {
		return err
	}
	recordMissing(result, missing)
	logger.Info("batch_request_completed",
		"run_id", result.RunID,
		"total_files", result.TotalFiles,
		"successful_files", result.SuccessfulFiles,
		"failed_files", result.FailedFiles,
		"missing_objects", len(missing),
	)

	if h.opts.ReportPrefix == "" {
		return nil
	}
	key, err := h.writeReport(ctx, result)
	if err != nil {
		logger.Error("batch_report_failed", "run_id", result.RunID, "error", err)
		return nil
	}
	logger.Info("batch_report_written", "run_id", result.RunID, "key", key)
	return nil
}

// recordMissing lists keys that never reached the workflow as request-level errors.
// They are not counted in TotalFiles, which covers processed files only.
func recordMissing(result *domain.BatchProcessingResult, missing []input.MissingObject) {
	if len(missing) == 0 {
		return
	}
	for _, m := range missing {
		result.Errors = append(result.Errors, domain.BatchError{
			Index:    -1,
			Filename: m.Key,
			Reason:   fmt.Sprintf("object not found: %v", m.Err),
		})
	}
	if result.Summary == nil {
		result.Summary = map[string]any{}
	}
	result.Summary["missing_objects"] = len(missing)
}

func (h *Handler) processingConfig(req ports.BatchRequest) (domain.ProcessingConfig, error) {
	cfg := domain.DefaultProcessingConfig()
	cfg.Mode = h.opts.DefaultMode
	if req.Mode != "" {
		mode, err := domain.ParseProcessingMode(req.Mode)
		if err != nil {
			return cfg, err
		}
		cfg.Mode = mode
	}
	cfg.MaxRetries = max(h.opts.MaxRetries, 0)
	if h.opts.TimeoutSeconds > 0 {
		cfg.TimeoutSeconds = h.opts.TimeoutSeconds
	}
	cfg.AutoSave = h.opts.AutoSave
	cfg.UserEmail = req.UserEmail
	return cfg, cfg.Validate()
}

func (h *Handler) writeReport(ctx context.Context, result *domain.BatchProcessingResult) (string, error) {
	workbook, err := report.BatchWorkbook(result)
	if err != nil {
		return "", err
	}
	key := path.Join(h.opts.ReportPrefix, fmt.Sprintf("%s.xlsx", result.RunID))
	if err := h.storage.Save(ctx, key, bytes.NewReader(workbook)); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	return key, nil
}
