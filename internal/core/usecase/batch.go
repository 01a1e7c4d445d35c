package usecase

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
)

// batchAccumulator collects per-file results into submission-order slots.
type batchAccumulator struct {
	mu        sync.Mutex
	results   []domain.WorkflowResult
	filled    []bool
	filenames []string
	runErrors []domain.BatchError
}

func newBatchAccumulator(n int) *batchAccumulator {
	return &batchAccumulator{
		results:   make([]domain.WorkflowResult, n),
		filled:    make([]bool, n),
		filenames: make([]string, n),
	}
}

func (a *batchAccumulator) set(idx int, filename string, result domain.WorkflowResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results[idx] = result
	a.filled[idx] = true
	a.filenames[idx] = filename
}

// addRunError records a failure that belongs to no single file.
func (a *batchAccumulator) addRunError(filename, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runErrors = append(a.runErrors, domain.BatchError{Index: -1, Filename: filename, Reason: reason})
}

func (a *batchAccumulator) finalize(runID string, mode domain.ProcessingMode, elapsed time.Duration, extra map[string]any) *domain.BatchProcessingResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := &domain.BatchProcessingResult{
		RunID:          runID,
		TotalFiles:     len(a.results),
		ProcessingTime: elapsed.Seconds(),
		Results:        make([]domain.WorkflowResult, len(a.results)),
		Errors:         append([]domain.BatchError{}, a.runErrors...),
	}

	fileErrors := make([]domain.BatchError, 0)
	for i, res := range a.results {
		if !a.filled[i] {
			res = domain.WorkflowResult{Success: false, ErrorMessage: "file was not processed"}
		}
		out.Results[i] = res
		if res.Success {
			out.SuccessfulFiles++
			continue
		}
		out.FailedFiles++
		fileErrors = append(fileErrors, domain.BatchError{Index: i, Filename: a.filenames[i], Reason: res.ErrorMessage})
	}
	sort.SliceStable(fileErrors, func(i, j int) bool { return fileErrors[i].Index < fileErrors[j].Index })
	out.Errors = append(out.Errors, fileErrors...)

	out.Summary = summarize(out.Results, mode)
	for k, v := range extra {
		out.Summary[k] = v
	}
	return out
}

// summarize derives aggregate figures from results only.
func summarize(results []domain.WorkflowResult, mode domain.ProcessingMode) map[string]any {
	var (
		successful, failed, persisted, invalid, validated int
		completeness, fileTime                            float64
	)
	for _, res := range results {
		if res.Success {
			successful++
		} else {
			failed++
		}
		if res.InvoiceID != "" {
			persisted++
		}
		if res.Validation != nil {
			validated++
			completeness += res.Validation.Score
			if !res.Validation.IsValid {
				invalid++
			}
		}
		fileTime += res.ProcessingTime
	}

	avg := 0.0
	if validated > 0 {
		avg = round1(completeness / float64(validated))
	}
	successRate := 0.0
	if len(results) > 0 {
		successRate = round1(100 * float64(successful) / float64(len(results)))
	}

	return map[string]any{
		"mode":                 string(mode),
		"successful":           successful,
		"failed":               failed,
		"persisted":            persisted,
		"invalid_records":      invalid,
		"average_completeness": avg,
		"success_rate":         successRate,
		"file_processing_time": fileTime,
		"input_rejected":       false,
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
