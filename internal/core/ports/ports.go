package ports

import (
	"context"
	"io"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
)

const (
	DefaultMaxFileSize int64 = 50 * 1024 * 1024
	MediaTypePDF             = "application/pdf"
)

// SourceFile is a source-native file handle, e.g. a multipart part or a storage key.
type SourceFile interface {
	Name() string
	ContentType() string
	Size() int64
	Open(ctx context.Context) (io.ReadCloser, error)
}

type InputConfig struct {
	Files          []SourceFile
	SupportedTypes []string
	MaxFileSize    int64
}

// WithDefaults fills unset limits with the package defaults.
func (c InputConfig) WithDefaults() InputConfig {
	out := c
	if len(out.SupportedTypes) == 0 {
		out.SupportedTypes = []string{MediaTypePDF}
	}
	if out.MaxFileSize <= 0 {
		out.MaxFileSize = DefaultMaxFileSize
	}
	return out
}

// InputAdapter pulls files from a source.
// GetFiles skips unreadable items; its error is reserved for cancellation.
type InputAdapter interface {
	ValidateInput(cfg InputConfig) bool
	GetFiles(ctx context.Context, cfg InputConfig) ([]domain.FileData, error)
}

// OutputAdapter pushes one record to a sink and returns the sink identifier.
type OutputAdapter interface {
	ValidateOutput(record domain.InvoiceRecord) bool
	SendOutput(ctx context.Context, record domain.InvoiceRecord) (string, error)
}
