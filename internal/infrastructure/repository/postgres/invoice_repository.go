package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
)

const schemaLockID int64 = 2025061501

type InvoiceRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewInvoiceRepository(db *sql.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db, now: time.Now}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *InvoiceRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS invoices (
	id TEXT PRIMARY KEY,
	file_name TEXT NOT NULL,
	file_size BIGINT NOT NULL DEFAULT 0,
	source TEXT NOT NULL,
	storage_key TEXT,
	user_email TEXT,
	status TEXT NOT NULL,
	processing_mode TEXT NOT NULL,
	prompt_key TEXT NOT NULL,
	issuer_name TEXT,
	payer_name TEXT,
	invoice_number TEXT,
	registration_number TEXT,
	currency VARCHAR(10),
	total_amount_tax_included NUMERIC(15,2),
	total_amount_tax_excluded NUMERIC(15,2),
	issue_date DATE,
	due_date DATE,
	line_items JSONB,
	key_info JSONB,
	extracted_data JSONB,
	completeness_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_valid BOOLEAN NOT NULL DEFAULT FALSE,
	validation_errors JSONB NOT NULL DEFAULT '[]'::jsonb,
	validation_warnings JSONB NOT NULL DEFAULT '[]'::jsonb,
	processing_time DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status);
CREATE INDEX IF NOT EXISTS idx_invoices_user_email ON invoices(user_email);
CREATE INDEX IF NOT EXISTS idx_invoices_created_at ON invoices(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const invoiceColumns = `id, file_name, file_size, source, storage_key, user_email, status, processing_mode, prompt_key,
	issuer_name, payer_name, invoice_number, registration_number, currency,
	total_amount_tax_included, total_amount_tax_excluded, issue_date, due_date,
	line_items, key_info, extracted_data,
	completeness_score, is_valid, validation_errors, validation_warnings, processing_time,
	created_at, updated_at`

// Insert stores a new record and returns its id. A missing id is generated.
func (r *InvoiceRepository) Insert(ctx context.Context, rec *domain.InvoiceRecord) (string, error) {
	if rec == nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "insert invoice", errors.New("record is nil"))
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := r.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}

	errorsJSON, err := marshalMessages(rec.ValidationErrors)
	if err != nil {
		return "", fmt.Errorf("marshal validation errors: %w", err)
	}
	warningsJSON, err := marshalMessages(rec.ValidationWarnings)
	if err != nil {
		return "", fmt.Errorf("marshal validation warnings: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO invoices (`+invoiceColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)
`,
		rec.ID, rec.FileName, rec.FileSize, rec.Source, rec.StorageKey, rec.UserEmail,
		string(rec.Status), string(rec.ProcessingMode), rec.PromptKey,
		rec.IssuerName, rec.PayerName, rec.InvoiceNumber, rec.RegistrationNumber, rec.Currency,
		rec.TotalAmountTaxIncl, rec.TotalAmountTaxExcl, rec.IssueDate, rec.DueDate,
		nullableJSON(rec.LineItems), nullableJSON(rec.KeyInfo), nullableJSON(rec.ExtractedData),
		rec.CompletenessScore, rec.IsValid, errorsJSON, warningsJSON, rec.ProcessingTime,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert invoice: %w", err)
	}
	return rec.ID, nil
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*domain.InvoiceRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+invoiceColumns+`
FROM invoices
WHERE id = $1
`, id)

	var (
		rec                        domain.InvoiceRecord
		status, mode               string
		storageKey, userEmail      sql.NullString
		issuer, payer              sql.NullString
		number, registration, curr sql.NullString
		issueDate, dueDate         sql.NullTime
		lineItems, keyInfo, data   []byte
		errorsRaw, warningsRaw     []byte
	)
	err := row.Scan(
		&rec.ID, &rec.FileName, &rec.FileSize, &rec.Source, &storageKey, &userEmail, &status, &mode, &rec.PromptKey,
		&issuer, &payer, &number, &registration, &curr,
		&rec.TotalAmountTaxIncl, &rec.TotalAmountTaxExcl, &issueDate, &dueDate,
		&lineItems, &keyInfo, &data,
		&rec.CompletenessScore, &rec.IsValid, &errorsRaw, &warningsRaw, &rec.ProcessingTime,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrInvoiceNotFound, "get invoice", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan invoice: %w", err)
	}

	rec.Status = domain.RecordStatus(status)
	rec.ProcessingMode = domain.ProcessingMode(mode)
	rec.StorageKey = storageKey.String
	rec.UserEmail = userEmail.String
	rec.IssuerName = issuer.String
	rec.PayerName = payer.String
	rec.InvoiceNumber = number.String
	rec.RegistrationNumber = registration.String
	rec.Currency = curr.String
	rec.IssueDate = timePtr(issueDate)
	rec.DueDate = timePtr(dueDate)
	rec.LineItems = rawJSON(lineItems)
	rec.KeyInfo = rawJSON(keyInfo)
	rec.ExtractedData = rawJSON(data)

	if rec.ValidationErrors, err = unmarshalMessages(errorsRaw); err != nil {
		return nil, fmt.Errorf("unmarshal validation errors: %w", err)
	}
	if rec.ValidationWarnings, err = unmarshalMessages(warningsRaw); err != nil {
		return nil, fmt.Errorf("unmarshal validation warnings: %w", err)
	}
	return &rec, nil
}

func (r *InvoiceRepository) UpdateStatus(ctx context.Context, id string, status domain.RecordStatus) error {
	if !status.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "update invoice status", fmt.Errorf("unknown status %q", status))
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE invoices
SET status = $2, updated_at = $3
WHERE id = $1
`, id, string(status), r.now().UTC())
	if err != nil {
		return fmt.Errorf("update invoice status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update invoice status rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrInvoiceNotFound, "update invoice status", fmt.Errorf("id=%s", id))
	}
	return nil
}

func marshalMessages(messages []string) ([]byte, error) {
	if messages == nil {
		messages = []string{}
	}
	return json.Marshal(messages)
}

func unmarshalMessages(raw []byte) ([]string, error) {
	out := []string{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func rawJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return json.RawMessage(raw)
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
