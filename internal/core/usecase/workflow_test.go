package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/ports"
)

type inputFake struct {
	valid bool
	files []domain.FileData
	err   error
}

func (f *inputFake) ValidateInput(ports.InputConfig) bool { return f.valid }

func (f *inputFake) GetFiles(context.Context, ports.InputConfig) ([]domain.FileData, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.files, nil
}

type extractFunc func(ctx context.Context, promptKey string, file domain.FileData) (map[string]any, error)

type extractorFake struct {
	mu       sync.Mutex
	fn       extractFunc
	calls    map[string]int
	prompts  []string
	inFlight int
	maxSeen  int
}

func newExtractorFake(fn extractFunc) *extractorFake {
	return &extractorFake{fn: fn, calls: make(map[string]int)}
}

func (f *extractorFake) Extract(ctx context.Context, promptKey string, file domain.FileData) (map[string]any, error) {
	f.mu.Lock()
	f.calls[file.Filename]++
	f.prompts = append(f.prompts, promptKey)
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()
	return f.fn(ctx, promptKey, file)
}

func (f *extractorFake) callCount(filename string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[filename]
}

type outputFake struct {
	mu      sync.Mutex
	reject  bool
	sendErr error
	records []domain.InvoiceRecord
}

func (f *outputFake) ValidateOutput(domain.InvoiceRecord) bool { return !f.reject }

func (f *outputFake) SendOutput(_ context.Context, record domain.InvoiceRecord) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return fmt.Sprintf("inv-%d", len(f.records)), nil
}

type retryFake struct{}

func (retryFake) Retry(ctx context.Context, _ string, attempts int, fn func(context.Context, int) error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn(ctx, attempt)
		if err == nil || ctx.Err() != nil || domain.IsKind(err, domain.ErrCancelled) {
			return err
		}
	}
	return err
}

type observerFake struct {
	mu     sync.Mutex
	events []domain.ProgressEvent
}

func (f *observerFake) OnProgress(_ context.Context, event domain.ProgressEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

type storageFake struct {
	mu   sync.Mutex
	keys []string
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if _, err := io.ReadAll(data); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (f *storageFake) Stat(context.Context, string) (ports.ObjectInfo, error) {
	return ports.ObjectInfo{}, errors.New("not implemented")
}

func validInvoice() map[string]any {
	return map[string]any{
		"issuer":               "Acme KK",
		"amount_inclusive_tax": 1100,
		"currency":             "JPY",
		"payer":                "Buyer KK",
		"main_invoice_number":  "INV-1",
	}
}

func pdfFiles(names ...string) []domain.FileData {
	files := make([]domain.FileData, 0, len(names))
	for _, name := range names {
		files = append(files, domain.NewFileData([]byte("%PDF-"+name), name, "local_upload", nil))
	}
	return files
}

func testConfig() domain.ProcessingConfig {
	cfg := domain.DefaultProcessingConfig()
	cfg.Mode = domain.ModeBatch
	cfg.MaxRetries = 2
	cfg.TimeoutSeconds = 5
	return cfg
}

func newTestEngine(extractor ports.Extractor, output ports.OutputAdapter, opts WorkflowEngineOptions) *WorkflowEngine {
	selector := NewPromptSelector(registryFake{PromptInvoiceExtractor: true, PromptMasterMatcher: true})
	return NewWorkflowEngine(extractor, output, selector, retryFake{}, opts)
}

func TestRunIsolatesFailingFile(t *testing.T) {
	extractor := newExtractorFake(func(_ context.Context, _ string, file domain.FileData) (map[string]any, error) {
		if file.Filename == "b.pdf" {
			return nil, errors.New("provider timeout")
		}
		return validInvoice(), nil
	})
	output := &outputFake{}
	engine := newTestEngine(extractor, output, WorkflowEngineOptions{})

	res, err := engine.Run(context.Background(), &inputFake{valid: true, files: pdfFiles("a.pdf", "b.pdf", "c.pdf")}, ports.InputConfig{}, testConfig())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.TotalFiles != 3 || res.SuccessfulFiles != 2 || res.FailedFiles != 1 {
		t.Fatalf("unexpected counts: total=%d ok=%d failed=%d", res.TotalFiles, res.SuccessfulFiles, res.FailedFiles)
	}
	if len(res.Results) != res.TotalFiles {
		t.Fatalf("results length %d != total %d", len(res.Results), res.TotalFiles)
	}
	if len(res.Errors) != 1 || res.Errors[0].Filename != "b.pdf" || res.Errors[0].Index != 1 {
		t.Fatalf("expected one error for b.pdf, got %+v", res.Errors)
	}
	if !strings.Contains(res.Errors[0].Reason, "3 attempt") {
		t.Fatalf("expected retries exhausted in reason, got %q", res.Errors[0].Reason)
	}
	if got := extractor.callCount("b.pdf"); got != 3 {
		t.Fatalf("expected 1+max_retries=3 calls for failing file, got %d", got)
	}
	if res.Results[1].Success || !res.Results[0].Success || !res.Results[2].Success {
		t.Fatalf("unexpected per-file outcomes: %+v", res.Results)
	}
	if res.Results[0].InvoiceID == "" {
		t.Fatalf("expected invoice id for saved record")
	}
	if len(output.records) != 2 {
		t.Fatalf("expected 2 saved records, got %d", len(output.records))
	}
	if res.Summary["successful"] != 2 || res.Summary["failed"] != 1 {
		t.Fatalf("summary must be derived from results, got %+v", res.Summary)
	}
}

func TestRunPreservesSubmissionOrder(t *testing.T) {
	names := []string{"f0.pdf", "f1.pdf", "f2.pdf", "f3.pdf", "f4.pdf", "f5.pdf"}
	extractor := newExtractorFake(func(_ context.Context, _ string, file domain.FileData) (map[string]any, error) {
		// earlier files finish later
		idx := int(file.Filename[1] - '0')
		time.Sleep(time.Duration(len(names)-idx) * 5 * time.Millisecond)
		if file.Filename == "f3.pdf" {
			return nil, errors.New("malformed response")
		}
		data := validInvoice()
		data["main_invoice_number"] = file.Filename
		return data, nil
	})
	engine := newTestEngine(extractor, &outputFake{}, WorkflowEngineOptions{MaxConcurrency: 6})

	res, err := engine.Run(context.Background(), &inputFake{valid: true, files: pdfFiles(names...)}, ports.InputConfig{}, testConfig())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for i, r := range res.Results {
		if r.FileInfo["filename"] != names[i] {
			t.Fatalf("result %d is %v, want %s", i, r.FileInfo["filename"], names[i])
		}
	}
	if res.TotalFiles != res.SuccessfulFiles+res.FailedFiles {
		t.Fatalf("count invariant broken: %+v", res)
	}
}

func TestRunRejectedInputSkipsProcessing(t *testing.T) {
	extractor := newExtractorFake(func(context.Context, string, domain.FileData) (map[string]any, error) {
		t.Fatalf("extractor must not be called for rejected input")
		return nil, nil
	})
	engine := newTestEngine(extractor, &outputFake{}, WorkflowEngineOptions{})

	res, err := engine.Run(context.Background(), &inputFake{valid: false, files: pdfFiles("a.pdf")}, ports.InputConfig{}, testConfig())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.TotalFiles != 0 || len(res.Results) != 0 {
		t.Fatalf("expected empty result set, got %+v", res)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected one input error, got %+v", res.Errors)
	}
	if res.Summary["input_rejected"] != true {
		t.Fatalf("expected input_rejected summary flag, got %+v", res.Summary)
	}
}

func TestRunWithZeroFilesCompletes(t *testing.T) {
	engine := newTestEngine(newExtractorFake(nil), &outputFake{}, WorkflowEngineOptions{})

	res, err := engine.Run(context.Background(), &inputFake{valid: true}, ports.InputConfig{}, testConfig())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.TotalFiles != 0 || res.SuccessfulFiles != 0 || res.FailedFiles != 0 || len(res.Errors) != 0 {
		t.Fatalf("expected empty completed batch, got %+v", res)
	}
}

func TestRunInvalidConfigIsFatal(t *testing.T) {
	engine := newTestEngine(newExtractorFake(nil), &outputFake{}, WorkflowEngineOptions{})
	cfg := testConfig()
	cfg.TimeoutSeconds = 0

	res, err := engine.Run(context.Background(), &inputFake{valid: true}, ports.InputConfig{}, cfg)
	if err == nil {
		t.Fatalf("expected config error")
	}
	if !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil result on config error")
	}
}

func TestRunRetriesUntilExtractionSucceeds(t *testing.T) {
	extractor := newExtractorFake(nil)
	extractor.fn = func(_ context.Context, _ string, file domain.FileData) (map[string]any, error) {
		if extractor.callCount(file.Filename) < 3 {
			return nil, errors.New("rate limited")
		}
		return validInvoice(), nil
	}
	engine := newTestEngine(extractor, &outputFake{}, WorkflowEngineOptions{})
	cfg := testConfig()
	cfg.MaxRetries = 3

	res, err := engine.Run(context.Background(), &inputFake{valid: true, files: pdfFiles("a.pdf")}, ports.InputConfig{}, cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.SuccessfulFiles != 1 {
		t.Fatalf("expected success after retries, got %+v", res.Errors)
	}
	if got := extractor.callCount("a.pdf"); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
}

func TestRunTimesOutSlowFileAndContinues(t *testing.T) {
	extractor := newExtractorFake(func(ctx context.Context, _ string, file domain.FileData) (map[string]any, error) {
		if file.Filename == "slow.pdf" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return validInvoice(), nil
	})
	engine := newTestEngine(extractor, &outputFake{}, WorkflowEngineOptions{})
	cfg := testConfig()
	cfg.TimeoutSeconds = 1

	res, err := engine.Run(context.Background(), &inputFake{valid: true, files: pdfFiles("slow.pdf", "fast.pdf")}, ports.InputConfig{}, cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.FailedFiles != 1 || res.SuccessfulFiles != 1 {
		t.Fatalf("expected one timeout and one success, got %+v", res.Errors)
	}
	if !strings.Contains(res.Results[0].ErrorMessage, "deadline") {
		t.Fatalf("expected deadline in error, got %q", res.Results[0].ErrorMessage)
	}
}

func TestRunCancellationStopsNewWork(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	extractor := newExtractorFake(func(context.Context, string, domain.FileData) (map[string]any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return validInvoice(), nil
	})
	engine := newTestEngine(extractor, &outputFake{}, WorkflowEngineOptions{MaxConcurrency: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan *domain.BatchProcessingResult, 1)
	go func() {
		res, err := engine.Run(ctx, &inputFake{valid: true, files: pdfFiles("a.pdf", "b.pdf", "c.pdf")}, ports.InputConfig{}, testConfig())
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
		done <- res
	}()

	<-started
	cancel()
	close(release)

	var res *domain.BatchProcessingResult
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not finish after cancellation")
	}
	if res == nil {
		t.Fatalf("expected result")
	}
	if !res.Results[0].Success {
		t.Fatalf("in-flight file must finish, got %q", res.Results[0].ErrorMessage)
	}
	if res.TotalFiles != 3 || res.FailedFiles != 2 || res.SuccessfulFiles != 1 {
		t.Fatalf("unexpected counts after cancel: %+v", res)
	}
	if extractor.callCount("b.pdf") != 0 || extractor.callCount("c.pdf") != 0 {
		t.Fatalf("no new work may start after cancellation")
	}
}

func TestRunBoundsConcurrentExtractions(t *testing.T) {
	extractor := newExtractorFake(func(context.Context, string, domain.FileData) (map[string]any, error) {
		time.Sleep(20 * time.Millisecond)
		return validInvoice(), nil
	})
	engine := newTestEngine(extractor, &outputFake{}, WorkflowEngineOptions{MaxConcurrency: 2, RequestsPerMinute: 60000})

	res, err := engine.Run(context.Background(), &inputFake{valid: true, files: pdfFiles("1.pdf", "2.pdf", "3.pdf", "4.pdf", "5.pdf", "6.pdf")}, ports.InputConfig{}, testConfig())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.SuccessfulFiles != 6 {
		t.Fatalf("expected all files to succeed, got %+v", res.Errors)
	}
	if extractor.maxSeen > 2 {
		t.Fatalf("expected at most 2 concurrent extractions, saw %d", extractor.maxSeen)
	}
}

type rateLimitedExtractor struct {
	*extractorFake
	rpm int
}

func (r rateLimitedExtractor) RequestsPerMinute() int { return r.rpm }

func TestEngineConcurrencyFollowsDeclaredRateLimit(t *testing.T) {
	extractor := rateLimitedExtractor{extractorFake: newExtractorFake(nil), rpm: 3}
	engine := newTestEngine(extractor, &outputFake{}, WorkflowEngineOptions{MaxConcurrency: 10})
	if engine.concurrency != 3 {
		t.Fatalf("expected concurrency bounded by rpm=3, got %d", engine.concurrency)
	}
}

func TestRunSaveDecisions(t *testing.T) {
	cases := []struct {
		name        string
		data        map[string]any
		autoSave    bool
		wantSuccess bool
		wantSaved   bool
		wantStatus  domain.RecordStatus
	}{
		{name: "valid auto-save", data: validInvoice(), autoSave: true, wantSuccess: true, wantSaved: true, wantStatus: domain.RecordExtracted},
		{name: "valid no auto-save", data: validInvoice(), autoSave: false, wantSuccess: true},
		{name: "missing fields auto-save", data: map[string]any{"issuer": "Acme"}, autoSave: true, wantSuccess: true, wantSaved: true, wantStatus: domain.RecordPending},
		{name: "missing fields no auto-save", data: map[string]any{"issuer": "Acme"}, autoSave: false},
		{name: "critical", data: map[string]any{"issuer": "Acme", "amount_inclusive_tax": "abc", "currency": "JPY"}, autoSave: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			extractor := newExtractorFake(func(context.Context, string, domain.FileData) (map[string]any, error) {
				return tc.data, nil
			})
			output := &outputFake{}
			engine := newTestEngine(extractor, output, WorkflowEngineOptions{})
			cfg := testConfig()
			cfg.AutoSave = tc.autoSave

			res, err := engine.Run(context.Background(), &inputFake{valid: true, files: pdfFiles("a.pdf")}, ports.InputConfig{}, cfg)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			got := res.Results[0]
			if got.Success != tc.wantSuccess {
				t.Fatalf("success = %v, want %v (%s)", got.Success, tc.wantSuccess, got.ErrorMessage)
			}
			if saved := len(output.records) == 1; saved != tc.wantSaved {
				t.Fatalf("saved = %v, want %v", saved, tc.wantSaved)
			}
			if tc.wantSaved && output.records[0].Status != tc.wantStatus {
				t.Fatalf("status = %s, want %s", output.records[0].Status, tc.wantStatus)
			}
			if !tc.wantSuccess && len(res.Errors) != 1 {
				t.Fatalf("expected batch error entry, got %+v", res.Errors)
			}
		})
	}
}

func TestRunOutputFailureIsNotRetried(t *testing.T) {
	extractor := newExtractorFake(func(context.Context, string, domain.FileData) (map[string]any, error) {
		return validInvoice(), nil
	})
	engine := newTestEngine(extractor, &outputFake{sendErr: errors.New("unique violation")}, WorkflowEngineOptions{})

	res, err := engine.Run(context.Background(), &inputFake{valid: true, files: pdfFiles("a.pdf")}, ports.InputConfig{}, testConfig())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.FailedFiles != 1 || !strings.Contains(res.Errors[0].Reason, "unique violation") {
		t.Fatalf("expected save failure, got %+v", res.Errors)
	}
	if got := extractor.callCount("a.pdf"); got != 1 {
		t.Fatalf("save failure must not trigger extraction retries, got %d calls", got)
	}

	res, _ = newTestEngine(extractor, &outputFake{reject: true}, WorkflowEngineOptions{}).
		Run(context.Background(), &inputFake{valid: true, files: pdfFiles("b.pdf")}, ports.InputConfig{}, testConfig())
	if res.FailedFiles != 1 || !strings.Contains(res.Errors[0].Reason, "rejected") {
		t.Fatalf("expected rejected output, got %+v", res.Errors)
	}
}

func TestProgressHistoryIsMonotonic(t *testing.T) {
	extractor := newExtractorFake(func(_ context.Context, _ string, file domain.FileData) (map[string]any, error) {
		if file.Filename == "bad.pdf" {
			return nil, errors.New("provider error")
		}
		return validInvoice(), nil
	})
	observer := &observerFake{}
	engine := newTestEngine(extractor, &outputFake{}, WorkflowEngineOptions{Observers: []ports.ProgressObserver{observer}})

	res, err := engine.Run(context.Background(), &inputFake{valid: true, files: pdfFiles("good.pdf", "bad.pdf")}, ports.InputConfig{}, testConfig())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, r := range res.Results {
		last := -1
		for _, p := range r.ProgressHistory {
			if p.ProgressPercent < last {
				t.Fatalf("progress decreased: %+v", r.ProgressHistory)
			}
			last = p.ProgressPercent
		}
	}

	good := res.Results[0].ProgressHistory
	if tail := good[len(good)-1]; tail.Status != domain.WorkflowCompleted || tail.ProgressPercent != 100 {
		t.Fatalf("expected completed at 100, got %+v", tail)
	}
	if good[0].Status != domain.WorkflowUploading || good[0].ProgressPercent != 10 {
		t.Fatalf("expected uploading at 10 first, got %+v", good[0])
	}

	bad := res.Results[1].ProgressHistory
	if tail := bad[len(bad)-1]; tail.Status != domain.WorkflowFailed || tail.ProgressPercent != 40 {
		t.Fatalf("expected failed at 40, got %+v", tail)
	}

	observer.mu.Lock()
	defer observer.mu.Unlock()
	if len(observer.events) != len(good)+len(bad) {
		t.Fatalf("observer saw %d events, want %d", len(observer.events), len(good)+len(bad))
	}
}

func TestRunUsesPinnedPromptAndArchivesOriginal(t *testing.T) {
	extractor := newExtractorFake(func(context.Context, string, domain.FileData) (map[string]any, error) {
		return validInvoice(), nil
	})
	output := &outputFake{}
	storage := &storageFake{}
	engine := newTestEngine(extractor, output, WorkflowEngineOptions{Archive: storage})
	cfg := testConfig()
	cfg.PromptKey = "custom_prompt"
	cfg.UserEmail = "clerk@example.com"

	res, err := engine.Run(context.Background(), &inputFake{valid: true, files: pdfFiles("dir/a.pdf")}, ports.InputConfig{}, cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if extractor.prompts[0] != "custom_prompt" || res.Results[0].PromptKey != "custom_prompt" {
		t.Fatalf("expected pinned prompt, got %v", extractor.prompts)
	}
	if len(storage.keys) != 1 || !strings.HasSuffix(storage.keys[0], "000_a.pdf") {
		t.Fatalf("unexpected archive keys: %v", storage.keys)
	}
	rec := output.records[0]
	if rec.StorageKey != storage.keys[0] || rec.UserEmail != "clerk@example.com" || rec.PromptKey != "custom_prompt" {
		t.Fatalf("unexpected record provenance: %+v", rec)
	}
	if !rec.TotalAmountTaxIncl.Valid || rec.TotalAmountTaxIncl.Decimal.IntPart() != 1100 {
		t.Fatalf("expected parsed total amount, got %+v", rec.TotalAmountTaxIncl)
	}
}

func TestRunSelectsPromptByMode(t *testing.T) {
	extractor := newExtractorFake(func(context.Context, string, domain.FileData) (map[string]any, error) {
		return validInvoice(), nil
	})
	engine := newTestEngine(extractor, &outputFake{}, WorkflowEngineOptions{})
	cfg := testConfig()
	cfg.Mode = domain.ModeValidation

	if _, err := engine.Run(context.Background(), &inputFake{valid: true, files: pdfFiles("a.pdf")}, ports.InputConfig{}, cfg); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if extractor.prompts[0] != PromptMasterMatcher {
		t.Fatalf("expected master matcher for validation mode, got %q", extractor.prompts[0])
	}
}

func TestProcessFileSingle(t *testing.T) {
	extractor := newExtractorFake(func(context.Context, string, domain.FileData) (map[string]any, error) {
		return validInvoice(), nil
	})
	engine := newTestEngine(extractor, &outputFake{}, WorkflowEngineOptions{})

	res, err := engine.ProcessFile(context.Background(), pdfFiles("a.pdf")[0], domain.DefaultProcessingConfig())
	if err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}
	if !res.Success || res.InvoiceID == "" || res.Validation == nil {
		t.Fatalf("unexpected single-file result: %+v", res)
	}
}
