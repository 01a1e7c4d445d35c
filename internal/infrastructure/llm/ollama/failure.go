package ollama

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/infrastructure/resilience"
)

// HTTPStatusError is a non-2xx answer from the model server.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "ollama status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("ollama %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// MalformedResponseError is a model answer that is not a usable extraction record.
type MalformedResponseError struct {
	Filename  string
	PromptKey string
	Err       error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed extraction for %s (%s): %v", e.Filename, e.PromptKey, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

type failureKind string

const (
	failureCallerStopped  failureKind = "caller_stopped"
	failureClientTimeout  failureKind = "client_timeout"
	failureCircuitOpen    failureKind = "circuit_open"
	failureStatusBusy     failureKind = "status_busy"
	failureModelMissing   failureKind = "model_missing"
	failureStatusRejected failureKind = "status_rejected"
	failureTransport      failureKind = "transport"
	failureMalformed      failureKind = "malformed_response"
	failureTemporary      failureKind = "temporary"
	failureUnknown        failureKind = "unknown"
)

// classifyFailure names why a model call failed.
// Timeouts are checked first: an http.Client timeout wraps context.DeadlineExceeded,
// and DeadlineExceeded itself reports Timeout(). Whether the caller gave up is
// decided from its context, see providerError and resilience.Executor.
func classifyFailure(err error) failureKind {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return failureClientTimeout
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return failureCallerStopped
	}
	if resilience.IsCircuitOpen(err) {
		return failureCircuitOpen
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch {
		case isBusyStatus(statusErr.StatusCode):
			return failureStatusBusy
		case statusErr.StatusCode == http.StatusNotFound:
			return failureModelMissing
		default:
			return failureStatusRejected
		}
	}

	var malformed *MalformedResponseError
	if errors.As(err, &malformed) {
		return failureMalformed
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return failureTemporary
	}
	if errors.As(err, &netErr) {
		return failureTransport
	}
	return failureUnknown
}

// classifyOllamaError drives the executor's retry loop and the "ollama.extract" breaker.
// A malformed answer is retried without counting against the breaker: the server is up.
func classifyOllamaError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	switch classifyFailure(err) {
	case failureClientTimeout, failureCircuitOpen, failureStatusBusy, failureTransport:
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case failureMalformed, failureTemporary:
		return resilience.ErrorClassification{Retryable: true, RecordFailure: false}
	case failureCallerStopped, failureModelMissing, failureStatusRejected:
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	default:
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	}
}

// providerError maps a failed model call onto the domain error kinds the engine understands.
func providerError(ctx context.Context, operation, model string, err error) error {
	if err == nil {
		return nil
	}
	kind := classifyFailure(err)
	if ctx.Err() != nil {
		kind = failureCallerStopped
	}
	slog.Warn("ollama_provider_failure", "operation", operation, "model", model, "failure", string(kind), "error", err)

	switch kind {
	case failureCallerStopped, failureTemporary:
		return err
	case failureModelMissing:
		return domain.WrapError(domain.ErrInvalidConfig, operation, fmt.Errorf("model %q: %w", model, err))
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyOllamaError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func malformedResponse(file domain.FileData, promptKey string, err error) error {
	slog.Warn("ollama_extraction_malformed", "filename", file.Filename, "prompt_key", promptKey, "error", err)
	return domain.WrapError(domain.ErrTemporary, "extract invoice", &MalformedResponseError{
		Filename:  file.Filename,
		PromptKey: promptKey,
		Err:       err,
	})
}

func isBusyStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
