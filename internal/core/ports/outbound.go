package ports

import (
	"context"
	"io"
	"time"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
)

// Extractor turns document bytes into an extracted-record mapping.
type Extractor interface {
	Extract(ctx context.Context, promptKey string, file domain.FileData) (map[string]any, error)
}

// RateLimited is implemented by collaborators that declare a request budget.
type RateLimited interface {
	RequestsPerMinute() int
}

// PromptRegistry answers which extraction prompts are available.
type PromptRegistry interface {
	HasPrompt(key string) bool
}

// InvoiceRepository persists and reads invoice records.
type InvoiceRepository interface {
	Insert(ctx context.Context, record *domain.InvoiceRecord) (string, error)
	GetByID(ctx context.Context, id string) (*domain.InvoiceRecord, error)
	UpdateStatus(ctx context.Context, id string, status domain.RecordStatus) error
}

type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// ObjectStorage stores source documents and archived records.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
}

// ProgressObserver receives every progress entry. Observers must not block for long.
type ProgressObserver interface {
	OnProgress(ctx context.Context, event domain.ProgressEvent)
}

// WorkflowMetrics records per-file outcomes.
type WorkflowMetrics interface {
	StartFile()
	FinishFile(mode domain.ProcessingMode, outcome string, duration time.Duration)
	ObserveAttempts(attempts int)
	ObserveCompleteness(score float64)
}

// BatchRequest triggers a worker run over stored objects.
type BatchRequest struct {
	RequestID string   `json:"request_id"`
	Keys      []string `json:"keys"`
	Mode      string   `json:"mode"`
	UserEmail string   `json:"user_email"`
}

// BatchQueue delivers batch requests to workers.
type BatchQueue interface {
	PublishBatchRequest(ctx context.Context, req BatchRequest) error
	SubscribeBatchRequests(ctx context.Context, handler func(context.Context, BatchRequest) error) error
}

// Retrier runs fn up to attempts times with backoff between failures.
// The loop stops once ctx is done or fn returns a domain.ErrCancelled error.
type Retrier interface {
	Retry(ctx context.Context, operation string, attempts int, fn func(ctx context.Context, attempt int) error) error
}

// TextExtractor reads the plain text layer of a document.
type TextExtractor interface {
	ExtractText(ctx context.Context, file domain.FileData) (string, error)
}
