package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type ProcessingMode string

const (
	ModeSingle     ProcessingMode = "single"
	ModeBatch      ProcessingMode = "batch"
	ModeOCRTest    ProcessingMode = "ocr_test"
	ModeUpload     ProcessingMode = "upload"
	ModeValidation ProcessingMode = "validation"
	ModeTest       ProcessingMode = "test"
)

func (m ProcessingMode) Valid() bool {
	switch m {
	case ModeSingle, ModeBatch, ModeOCRTest, ModeUpload, ModeValidation, ModeTest:
		return true
	default:
		return false
	}
}

func ParseProcessingMode(raw string) (ProcessingMode, error) {
	mode := ProcessingMode(strings.ToLower(strings.TrimSpace(raw)))
	if !mode.Valid() {
		return "", WrapError(ErrInvalidConfig, "parse processing mode", fmt.Errorf("unknown mode %q", raw))
	}
	return mode, nil
}

// ProcessingConfig is supplied once per run and not changed while the run is active.
type ProcessingConfig struct {
	Mode              ProcessingMode
	IncludeValidation bool
	AutoSave          bool
	MaxRetries        int
	TimeoutSeconds    int
	// PromptKey pins the extraction prompt and bypasses mode-based selection.
	PromptKey       string
	ValidationRules *ValidationRules
	UserEmail       string
}

func DefaultProcessingConfig() ProcessingConfig {
	return ProcessingConfig{
		Mode:              ModeSingle,
		IncludeValidation: true,
		AutoSave:          true,
		MaxRetries:        3,
		TimeoutSeconds:    300,
	}
}

func (c ProcessingConfig) Validate() error {
	var errs []error
	if !c.Mode.Valid() {
		errs = append(errs, fmt.Errorf("unknown mode %q", c.Mode))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries))
	}
	if c.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("timeout_seconds must be > 0, got %d", c.TimeoutSeconds))
	}
	if c.ValidationRules != nil {
		if err := c.ValidationRules.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return WrapError(ErrInvalidConfig, "validate processing config", errors.Join(errs...))
	}
	return nil
}

func (c ProcessingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Attempts is the total number of extraction calls allowed per file.
func (c ProcessingConfig) Attempts() int {
	return 1 + c.MaxRetries
}

type WorkflowStatus string

const (
	WorkflowUploading  WorkflowStatus = "uploading"
	WorkflowProcessing WorkflowStatus = "processing"
	WorkflowSaving     WorkflowStatus = "saving"
	WorkflowCompleted  WorkflowStatus = "completed"
	WorkflowFailed     WorkflowStatus = "failed"
)

func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowCompleted, WorkflowFailed:
		return true
	case WorkflowUploading, WorkflowProcessing, WorkflowSaving:
		return false
	default:
		return false
	}
}

type WorkflowProgress struct {
	Status          WorkflowStatus `json:"status"`
	Step            string         `json:"step"`
	ProgressPercent int            `json:"progress_percent"`
	Message         string         `json:"message"`
	Timestamp       time.Time      `json:"timestamp"`
	Details         map[string]any `json:"details,omitempty"`
}

// ProgressEvent is a WorkflowProgress entry tagged with its run and file.
type ProgressEvent struct {
	RunID     string           `json:"run_id"`
	FileIndex int              `json:"file_index"`
	Filename  string           `json:"filename"`
	Progress  WorkflowProgress `json:"progress"`
}

type WorkflowResult struct {
	Success         bool               `json:"success"`
	InvoiceID       string             `json:"invoice_id,omitempty"`
	ExtractedData   map[string]any     `json:"extracted_data,omitempty"`
	FileInfo        map[string]any     `json:"file_info,omitempty"`
	ErrorMessage    string             `json:"error_message,omitempty"`
	ProcessingTime  float64            `json:"processing_time"`
	ProgressHistory []WorkflowProgress `json:"progress_history,omitempty"`
	Validation      *ValidationResult  `json:"validation,omitempty"`
	PromptKey       string             `json:"prompt_key,omitempty"`
}

type BatchError struct {
	Index    int    `json:"index"`
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

type BatchProcessingResult struct {
	RunID           string           `json:"run_id"`
	TotalFiles      int              `json:"total_files"`
	SuccessfulFiles int              `json:"successful_files"`
	FailedFiles     int              `json:"failed_files"`
	ProcessingTime  float64          `json:"processing_time"`
	Results         []WorkflowResult `json:"results"`
	Summary         map[string]any   `json:"summary"`
	Errors          []BatchError     `json:"errors"`
}
