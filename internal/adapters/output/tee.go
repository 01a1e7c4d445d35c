package output

import (
	"context"
	"log/slog"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/ports"
)

// Tee sends to a primary output and mirrors the saved record to secondaries.
// Mirror failures are logged; the primary decides the outcome.
type Tee struct {
	primary ports.OutputAdapter
	mirrors []ports.OutputAdapter
}

func NewTee(primary ports.OutputAdapter, mirrors ...ports.OutputAdapter) *Tee {
	return &Tee{primary: primary, mirrors: mirrors}
}

func (t *Tee) ValidateOutput(record domain.InvoiceRecord) bool {
	return t.primary.ValidateOutput(record)
}

func (t *Tee) SendOutput(ctx context.Context, record domain.InvoiceRecord) (string, error) {
	id, err := t.primary.SendOutput(ctx, record)
	if err != nil {
		return "", err
	}
	record.ID = id
	for _, mirror := range t.mirrors {
		if !mirror.ValidateOutput(record) {
			slog.Warn("output_mirror_rejected", "invoice_id", id)
			continue
		}
		if _, err := mirror.SendOutput(ctx, record); err != nil {
			slog.Warn("output_mirror_failed", "invoice_id", id, "error", err)
		}
	}
	return id, nil
}
