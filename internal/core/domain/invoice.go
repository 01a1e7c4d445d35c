package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type RecordStatus string

const (
	RecordPending    RecordStatus = "pending"
	RecordInProgress RecordStatus = "in_progress"
	RecordExtracted  RecordStatus = "extracted"
	RecordCompleted  RecordStatus = "completed"
	RecordFailed     RecordStatus = "failed"
	RecordCancelled  RecordStatus = "cancelled"
)

func (s RecordStatus) Valid() bool {
	switch s {
	case RecordPending, RecordInProgress, RecordExtracted, RecordCompleted, RecordFailed, RecordCancelled:
		return true
	default:
		return false
	}
}

// InvoiceRecord is the flat shape handed to output adapters.
type InvoiceRecord struct {
	ID             string         `json:"id,omitempty"`
	FileName       string         `json:"file_name"`
	FileSize       int64          `json:"file_size"`
	Source         string         `json:"source"`
	StorageKey     string         `json:"storage_key,omitempty"`
	UserEmail      string         `json:"user_email,omitempty"`
	Status         RecordStatus   `json:"status"`
	ProcessingMode ProcessingMode `json:"processing_mode"`
	PromptKey      string         `json:"prompt_key"`

	IssuerName         string              `json:"issuer_name,omitempty"`
	PayerName          string              `json:"payer_name,omitempty"`
	InvoiceNumber      string              `json:"invoice_number,omitempty"`
	RegistrationNumber string              `json:"registration_number,omitempty"`
	Currency           string              `json:"currency,omitempty"`
	TotalAmountTaxIncl decimal.NullDecimal `json:"total_amount_tax_included"`
	TotalAmountTaxExcl decimal.NullDecimal `json:"total_amount_tax_excluded"`
	IssueDate          *time.Time          `json:"issue_date,omitempty"`
	DueDate            *time.Time          `json:"due_date,omitempty"`
	LineItems          json.RawMessage     `json:"line_items,omitempty"`
	KeyInfo            json.RawMessage     `json:"key_info,omitempty"`
	ExtractedData      json.RawMessage     `json:"extracted_data,omitempty"`

	CompletenessScore  float64  `json:"completeness_score"`
	IsValid            bool     `json:"is_valid"`
	ValidationErrors   []string `json:"validation_errors"`
	ValidationWarnings []string `json:"validation_warnings"`
	ProcessingTime     float64  `json:"processing_time"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
