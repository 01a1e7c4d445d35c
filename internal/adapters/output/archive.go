package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/ports"
)

// ArchiveOutput writes each record as a JSON object into storage.
type ArchiveOutput struct {
	storage ports.ObjectStorage
	prefix  string
	now     func() time.Time
}

func NewArchiveOutput(storage ports.ObjectStorage, prefix string) *ArchiveOutput {
	if prefix == "" {
		prefix = "records"
	}
	return &ArchiveOutput{storage: storage, prefix: prefix, now: time.Now}
}

func (o *ArchiveOutput) ValidateOutput(record domain.InvoiceRecord) bool {
	return validRecord(record)
}

// SendOutput returns the storage key of the written record.
func (o *ArchiveOutput) SendOutput(ctx context.Context, record domain.InvoiceRecord) (string, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	key := fmt.Sprintf("%s/%s/%s.json", o.prefix, o.now().UTC().Format("2006-01-02"), record.ID)
	if err := o.storage.Save(ctx, key, bytes.NewReader(payload)); err != nil {
		return "", fmt.Errorf("archive record: %w", err)
	}
	return key, nil
}
