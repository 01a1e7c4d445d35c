package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/infrastructure/extractor/plaintext"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/infrastructure/prompts"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/infrastructure/resilience"
)

// clientTimeoutErr mirrors the error net/http reports when http.Client.Timeout fires.
type clientTimeoutErr struct{}

func (clientTimeoutErr) Error() string { return "context deadline exceeded (Client.Timeout exceeded while awaiting headers)" }
func (clientTimeoutErr) Timeout() bool { return true }
func (clientTimeoutErr) Unwrap() error { return context.DeadlineExceeded }

func TestClassifyOllamaError(t *testing.T) {
	clientTimeout := &url.Error{Op: "Post", URL: "http://ollama/api/generate", Err: clientTimeoutErr{}}
	cases := []struct {
		name      string
		err       error
		kind      failureKind
		retryable bool
		record    bool
	}{
		{"client timeout", clientTimeout, failureClientTimeout, true, true},
		{"caller cancelled", fmt.Errorf("ollama generate request: %w", context.Canceled), failureCallerStopped, false, false},
		{"circuit open", gobreaker.ErrOpenState, failureCircuitOpen, true, true},
		{"busy", &HTTPStatusError{StatusCode: http.StatusTooManyRequests}, failureStatusBusy, true, true},
		{"model missing", &HTTPStatusError{StatusCode: http.StatusNotFound}, failureModelMissing, false, false},
		{"bad request", &HTTPStatusError{StatusCode: http.StatusBadRequest}, failureStatusRejected, false, false},
		{"malformed", domain.WrapError(domain.ErrTemporary, "extract invoice", &MalformedResponseError{Err: errors.New("bad json")}), failureMalformed, true, false},
		{"temporary", domain.WrapError(domain.ErrTemporary, "extract", errors.New("empty")), failureTemporary, true, false},
		{"unknown", errors.New("boom"), failureUnknown, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyFailure(tc.err); got != tc.kind {
				t.Fatalf("classifyFailure() = %s, want %s", got, tc.kind)
			}
			class := classifyOllamaError(tc.err)
			if class.Retryable != tc.retryable || class.RecordFailure != tc.record {
				t.Fatalf("classifyOllamaError() = %+v", class)
			}
		})
	}
}

func TestProviderErrorMapsMissingModelToConfig(t *testing.T) {
	err := providerError(context.Background(), "ollama extract", "invoice-model", &HTTPStatusError{Operation: "generate", StatusCode: http.StatusNotFound, Status: "404 Not Found"})
	if !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestExtractRetriesClientTimeoutThroughExecutor(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     2,
	})
	ext, err := NewExtractor(New(server.URL, "invoice-model", 50*time.Millisecond), prompts.MustDefault(), plaintext.NewExtractor(), ExtractorOptions{Executor: exec})
	if err != nil {
		t.Fatalf("NewExtractor() error = %v", err)
	}
	_, err = ext.Extract(context.Background(), "invoice_extractor_prompt", invoiceFile())
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
}

func TestProviderErrorLeavesCallerDeadlineUnwrapped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := providerError(ctx, "ollama extract", "invoice-model", &url.Error{Op: "Post", URL: "http://ollama", Err: context.Canceled})
	if domain.IsKind(err, domain.ErrTemporary) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected bare cancellation, got %v", err)
	}
}
