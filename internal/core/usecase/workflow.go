package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/ports"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/validation"
)

const defaultMaxConcurrency = 4

// Progress checkpoints per state.
const (
	percentReceived  = 10
	percentStored    = 30
	percentExtract   = 40
	percentExtracted = 70
	percentSaving    = 80
	percentSaved     = 90
	percentDone      = 100
)

type WorkflowEngineOptions struct {
	Validator *validation.Validator
	// Archive stores original bytes before extraction when set.
	Archive   ports.ObjectStorage
	Observers []ports.ProgressObserver
	Metrics   ports.WorkflowMetrics

	MaxConcurrency int
	// RequestsPerMinute overrides the extractor's declared budget; 0 keeps it.
	RequestsPerMinute int
}

// WorkflowEngine drives files through upload, extraction, validation and save.
type WorkflowEngine struct {
	extractor ports.Extractor
	output    ports.OutputAdapter
	selector  *PromptSelector
	retrier   ports.Retrier
	validator *validation.Validator
	archive   ports.ObjectStorage
	observers []ports.ProgressObserver
	metrics   ports.WorkflowMetrics

	limiter     *rate.Limiter
	concurrency int

	now   func() time.Time
	newID func() string
}

func NewWorkflowEngine(
	extractor ports.Extractor,
	output ports.OutputAdapter,
	selector *PromptSelector,
	retrier ports.Retrier,
	opts WorkflowEngineOptions,
) *WorkflowEngine {
	validator := opts.Validator
	if validator == nil {
		validator = validation.NewDefault()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	rpm := opts.RequestsPerMinute
	if rpm <= 0 {
		if limited, ok := extractor.(ports.RateLimited); ok {
			rpm = limited.RequestsPerMinute()
		}
	}
	concurrency := opts.MaxConcurrency
	if concurrency <= 0 {
		concurrency = defaultMaxConcurrency
	}
	limit := rate.Inf
	if rpm > 0 {
		concurrency = min(concurrency, rpm)
		limit = rate.Limit(float64(rpm) / 60.0)
	}

	return &WorkflowEngine{
		extractor:   extractor,
		output:      output,
		selector:    selector,
		retrier:     retrier,
		validator:   validator,
		archive:     opts.Archive,
		observers:   opts.Observers,
		metrics:     metrics,
		limiter:     rate.NewLimiter(limit, concurrency),
		concurrency: concurrency,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Run processes every file the input adapter yields. Only an invalid
// configuration returns an error; file failures are reported in the result.
func (e *WorkflowEngine) Run(
	ctx context.Context,
	input ports.InputAdapter,
	inputCfg ports.InputConfig,
	cfg domain.ProcessingConfig,
) (*domain.BatchProcessingResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if input == nil {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "run workflow", errors.New("input adapter is required"))
	}

	start := e.now()
	runID := e.newID()
	inputCfg = inputCfg.WithDefaults()
	logger := slog.With("run_id", runID, "mode", string(cfg.Mode))

	if !input.ValidateInput(inputCfg) {
		logger.Warn("workflow_input_rejected", "files", len(inputCfg.Files))
		acc := newBatchAccumulator(0)
		acc.addRunError("input", "input validation failed: no files, unsupported media type or file too large")
		return acc.finalize(runID, cfg.Mode, e.now().Sub(start), map[string]any{"input_rejected": true}), nil
	}

	files, err := input.GetFiles(ctx, inputCfg)
	if err != nil {
		logger.Warn("workflow_input_failed", "error", err)
		acc := newBatchAccumulator(0)
		acc.addRunError("input", fmt.Sprintf("input retrieval failed: %v", err))
		return acc.finalize(runID, cfg.Mode, e.now().Sub(start), map[string]any{"input_rejected": true}), nil
	}
	if len(files) == 0 {
		logger.Info("workflow_no_files")
		return newBatchAccumulator(0).finalize(runID, cfg.Mode, e.now().Sub(start), nil), nil
	}

	validator := e.validatorFor(cfg)
	acc := newBatchAccumulator(len(files))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for idx, file := range files {
		if ctx.Err() != nil {
			acc.set(idx, file.Filename, e.cancelledResult(ctx, runID, idx, file))
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				acc.set(idx, file.Filename, e.cancelledResult(ctx, runID, idx, file))
				return nil
			}
			acc.set(idx, file.Filename, e.processFile(ctx, runID, idx, file, cfg, validator))
			return nil
		})
	}
	_ = g.Wait()

	result := acc.finalize(runID, cfg.Mode, e.now().Sub(start), nil)
	logger.Info("workflow_batch_completed",
		"total_files", result.TotalFiles,
		"successful_files", result.SuccessfulFiles,
		"failed_files", result.FailedFiles,
		"duration_ms", result.ProcessingTime*1000,
	)
	return result, nil
}

// ProcessFile runs a single file through the workflow.
func (e *WorkflowEngine) ProcessFile(ctx context.Context, file domain.FileData, cfg domain.ProcessingConfig) (domain.WorkflowResult, error) {
	if err := cfg.Validate(); err != nil {
		return domain.WorkflowResult{}, err
	}
	return e.processFile(ctx, e.newID(), 0, file, cfg, e.validatorFor(cfg)), nil
}

func (e *WorkflowEngine) processFile(
	runCtx context.Context,
	runID string,
	idx int,
	file domain.FileData,
	cfg domain.ProcessingConfig,
	validator *validation.Validator,
) domain.WorkflowResult {
	start := e.now()
	// In-flight files outlive run cancellation and stop at their own deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), cfg.Timeout())
	defer cancel()

	e.metrics.StartFile()
	tracker := newProgressTracker(ctx, e.observers, e.now, runID, idx, file.Filename)
	logger := slog.With("run_id", runID, "file_index", idx, "filename", file.Filename)

	result := domain.WorkflowResult{FileInfo: file.Info()}
	fail := func(step, reason string) domain.WorkflowResult {
		tracker.fail(step, reason)
		elapsed := e.now().Sub(start)
		result.Success = false
		result.ErrorMessage = reason
		result.ProcessingTime = elapsed.Seconds()
		result.ProgressHistory = tracker.history()
		e.metrics.FinishFile(cfg.Mode, "failed", elapsed)
		logger.Warn("workflow_file_failed", "step", step, "reason", reason, "duration_ms", float64(elapsed.Microseconds())/1000.0)
		return result
	}

	tracker.emit(domain.WorkflowUploading, "received", percentReceived, "file received", nil)
	storageKey := ""
	if e.archive != nil {
		key, err := e.archiveOriginal(ctx, runID, idx, file)
		if err != nil {
			return fail("upload", fmt.Sprintf("store original: %v", err))
		}
		storageKey = key
		result.FileInfo["storage_key"] = key
	}
	tracker.emit(domain.WorkflowUploading, "stored", percentStored, "upload step finished", nil)

	promptKey := cfg.PromptKey
	if promptKey == "" {
		promptKey = e.selector.RecommendedPrompt(cfg.Mode)
	}
	result.PromptKey = promptKey
	tracker.emit(domain.WorkflowProcessing, "extracting", percentExtract, "extracting invoice data", map[string]any{"prompt_key": promptKey})

	data, attempts, err := e.extract(ctx, promptKey, file, cfg.Attempts())
	e.metrics.ObserveAttempts(attempts)
	if err != nil {
		return fail("extract", fmt.Sprintf("extraction failed after %d attempt(s): %v", attempts, err))
	}
	result.ExtractedData = data
	tracker.emit(domain.WorkflowProcessing, "extracted", percentExtracted, "extraction finished", map[string]any{"attempts": attempts})

	tracker.emit(domain.WorkflowSaving, "validating", percentSaving, "validating extracted data", nil)
	var vres *domain.ValidationResult
	if cfg.IncludeValidation {
		r := validator.Validate(data)
		vres = &r
		result.Validation = vres
		e.metrics.ObserveCompleteness(r.Score)
	}

	status, persist, reason := saveDecision(cfg, vres)
	if reason != "" {
		return fail("validate", reason)
	}
	if !persist {
		tracker.emit(domain.WorkflowCompleted, "completed", percentDone, "completed without saving", nil)
		return e.succeed(&result, tracker, logger, cfg.Mode, start)
	}

	record := buildRecord(file, cfg, promptKey, data, vres, storageKey, status, e.now().UTC(), e.now().Sub(start))
	if e.output == nil || !e.output.ValidateOutput(record) {
		return fail("save", "output adapter rejected record")
	}
	id, err := e.output.SendOutput(ctx, record)
	if err != nil {
		return fail("save", fmt.Sprintf("save record: %v", err))
	}
	result.InvoiceID = id
	tracker.emit(domain.WorkflowSaving, "saved", percentSaved, "record saved", map[string]any{"invoice_id": id, "record_status": string(status)})
	tracker.emit(domain.WorkflowCompleted, "completed", percentDone, "processing completed", nil)
	return e.succeed(&result, tracker, logger, cfg.Mode, start)
}

func (e *WorkflowEngine) succeed(result *domain.WorkflowResult, tracker *progressTracker, logger *slog.Logger, mode domain.ProcessingMode, start time.Time) domain.WorkflowResult {
	elapsed := e.now().Sub(start)
	result.Success = true
	result.ProcessingTime = elapsed.Seconds()
	result.ProgressHistory = tracker.history()
	e.metrics.FinishFile(mode, "success", elapsed)
	logger.Info("workflow_file_completed",
		"invoice_id", result.InvoiceID,
		"prompt_key", result.PromptKey,
		"duration_ms", float64(elapsed.Microseconds())/1000.0,
	)
	return *result
}

// saveDecision returns the record status and whether to persist, or a failure reason.
func saveDecision(cfg domain.ProcessingConfig, vres *domain.ValidationResult) (domain.RecordStatus, bool, string) {
	if vres == nil || vres.IsValid {
		return domain.RecordExtracted, cfg.AutoSave, ""
	}
	if cfg.AutoSave && !vres.HasCritical() {
		return domain.RecordPending, true, ""
	}
	return "", false, "validation failed: " + strings.Join(vres.Errors, "; ")
}

func (e *WorkflowEngine) extract(ctx context.Context, promptKey string, file domain.FileData, attempts int) (map[string]any, int, error) {
	var data map[string]any
	used := 0
	call := func(ctx context.Context, attempt int) error {
		used = attempt
		if err := e.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			// the deadline cannot be met; further attempts would wait the same way
			return domain.WrapError(domain.ErrCancelled, "wait for rate limit", fmt.Errorf("%w: %w", context.DeadlineExceeded, err))
		}
		out, err := e.extractor.Extract(ctx, promptKey, file)
		if err != nil {
			return err
		}
		if len(out) == 0 {
			return domain.WrapError(domain.ErrTemporary, "extract", errors.New("empty extraction result"))
		}
		data = out
		return nil
	}

	var err error
	if e.retrier != nil {
		err = e.retrier.Retry(ctx, "workflow.extract", attempts, call)
	} else {
		err = call(ctx, 1)
	}
	return data, used, err
}

func (e *WorkflowEngine) archiveOriginal(ctx context.Context, runID string, idx int, file domain.FileData) (string, error) {
	name := path.Base(strings.ReplaceAll(file.Filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	key := fmt.Sprintf("originals/%s/%03d_%s", runID, idx, name)
	if err := e.archive.Save(ctx, key, bytes.NewReader(file.Content)); err != nil {
		return "", err
	}
	return key, nil
}

func (e *WorkflowEngine) cancelledResult(ctx context.Context, runID string, idx int, file domain.FileData) domain.WorkflowResult {
	tracker := newProgressTracker(context.WithoutCancel(ctx), e.observers, e.now, runID, idx, file.Filename)
	reason := "cancelled before processing started"
	tracker.fail("cancelled", reason)
	return domain.WorkflowResult{
		Success:         false,
		FileInfo:        file.Info(),
		ErrorMessage:    reason,
		ProgressHistory: tracker.history(),
	}
}

func (e *WorkflowEngine) validatorFor(cfg domain.ProcessingConfig) *validation.Validator {
	if cfg.ValidationRules != nil {
		return validation.New(*cfg.ValidationRules)
	}
	return e.validator
}

type noopMetrics struct{}

func (noopMetrics) StartFile()                                              {}
func (noopMetrics) FinishFile(domain.ProcessingMode, string, time.Duration) {}
func (noopMetrics) ObserveAttempts(int)                                     {}
func (noopMetrics) ObserveCompleteness(float64)                             {}
