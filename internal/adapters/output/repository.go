package output

import (
	"context"
	"strings"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/ports"
)

// RepositoryOutput persists records through the invoice repository.
type RepositoryOutput struct {
	repo ports.InvoiceRepository
}

func NewRepositoryOutput(repo ports.InvoiceRepository) *RepositoryOutput {
	return &RepositoryOutput{repo: repo}
}

func (o *RepositoryOutput) ValidateOutput(record domain.InvoiceRecord) bool {
	return validRecord(record)
}

func (o *RepositoryOutput) SendOutput(ctx context.Context, record domain.InvoiceRecord) (string, error) {
	rec := record
	return o.repo.Insert(ctx, &rec)
}

func validRecord(record domain.InvoiceRecord) bool {
	return strings.TrimSpace(record.FileName) != "" &&
		record.Status.Valid() &&
		record.ProcessingMode.Valid()
}
