package ports

import (
	"context"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
)

// InvoiceWorkflow is the inbound contract for running a batch through extraction.
type InvoiceWorkflow interface {
	Run(ctx context.Context, input InputAdapter, inputCfg InputConfig, cfg domain.ProcessingConfig) (*domain.BatchProcessingResult, error)
}

// InvoiceReader is the inbound read model for persisted invoices.
type InvoiceReader interface {
	GetByID(ctx context.Context, id string) (*domain.InvoiceRecord, error)
}
