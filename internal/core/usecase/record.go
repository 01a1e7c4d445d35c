package usecase

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/validation"
)

// buildRecord flattens extraction output and validation metadata into the persisted shape.
func buildRecord(
	file domain.FileData,
	cfg domain.ProcessingConfig,
	promptKey string,
	data map[string]any,
	vres *domain.ValidationResult,
	storageKey string,
	status domain.RecordStatus,
	now time.Time,
	elapsed time.Duration,
) domain.InvoiceRecord {
	record := domain.InvoiceRecord{
		FileName:       file.Filename,
		FileSize:       int64(file.Size()),
		Source:         file.Source,
		StorageKey:     storageKey,
		UserEmail:      cfg.UserEmail,
		Status:         status,
		ProcessingMode: cfg.Mode,
		PromptKey:      promptKey,

		IssuerName:         stringField(data, validation.FieldIssuer),
		PayerName:          stringField(data, validation.FieldPayer),
		InvoiceNumber:      stringField(data, validation.FieldInvoiceNumber),
		RegistrationNumber: stringField(data, validation.FieldRegistrationNumber),
		Currency:           validation.NormalizeCurrency(stringField(data, validation.FieldCurrency)),
		TotalAmountTaxIncl: amountField(data, validation.FieldAmountInclusiveTax),
		TotalAmountTaxExcl: amountField(data, validation.FieldAmountExclusiveTax),
		IssueDate:          dateField(data, validation.FieldIssueDate),
		DueDate:            dateField(data, validation.FieldDueDate),
		LineItems:          jsonField(data[validation.FieldLineItems]),
		KeyInfo:            jsonField(data[validation.FieldKeyInfo]),
		ExtractedData:      jsonField(data),

		IsValid:            true,
		ValidationErrors:   []string{},
		ValidationWarnings: []string{},
		ProcessingTime:     elapsed.Seconds(),

		CreatedAt: now,
		UpdatedAt: now,
	}

	if vres != nil {
		record.CompletenessScore = vres.Score
		record.IsValid = vres.IsValid
		record.ValidationErrors = append(record.ValidationErrors, vres.Errors...)
		record.ValidationWarnings = append(record.ValidationWarnings, vres.Warnings...)
	}
	return record
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func amountField(data map[string]any, key string) decimal.NullDecimal {
	raw, ok := data[key]
	if !ok || raw == nil {
		return decimal.NullDecimal{}
	}
	d, ok := validation.ParseAmount(raw)
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func dateField(data map[string]any, key string) *time.Time {
	t, ok := validation.ParseDate(data[key])
	if !ok {
		return nil
	}
	return &t
}

func jsonField(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
