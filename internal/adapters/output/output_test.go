package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/ports"
)

type repoFake struct {
	inserted []domain.InvoiceRecord
	err      error
}

func (r *repoFake) Insert(_ context.Context, rec *domain.InvoiceRecord) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	rec.ID = "inv-1"
	r.inserted = append(r.inserted, *rec)
	return rec.ID, nil
}

func (r *repoFake) GetByID(context.Context, string) (*domain.InvoiceRecord, error) {
	return nil, domain.ErrInvoiceNotFound
}

func (r *repoFake) UpdateStatus(context.Context, string, domain.RecordStatus) error { return nil }

type storageFake struct {
	objects map[string][]byte
	err     error
}

func (s *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if s.err != nil {
		return s.err
	}
	raw, _ := io.ReadAll(data)
	s.objects[key] = raw
	return nil
}

func (s *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.objects[key])), nil
}

func (s *storageFake) Stat(context.Context, string) (ports.ObjectInfo, error) {
	return ports.ObjectInfo{}, nil
}

func sampleRecord() domain.InvoiceRecord {
	return domain.InvoiceRecord{
		FileName:       "a.pdf",
		Status:         domain.RecordExtracted,
		ProcessingMode: domain.ModeBatch,
		IssuerName:     "Acme KK",
	}
}

func TestRepositoryOutputValidatesAndInserts(t *testing.T) {
	repo := &repoFake{}
	out := NewRepositoryOutput(repo)

	bad := sampleRecord()
	bad.Status = "archived"
	if out.ValidateOutput(bad) {
		t.Fatalf("unknown status must be rejected")
	}
	bad = sampleRecord()
	bad.FileName = " "
	if out.ValidateOutput(bad) {
		t.Fatalf("blank file name must be rejected")
	}

	id, err := out.SendOutput(context.Background(), sampleRecord())
	if err != nil || id != "inv-1" {
		t.Fatalf("SendOutput() = %q, %v", id, err)
	}
	if len(repo.inserted) != 1 || repo.inserted[0].IssuerName != "Acme KK" {
		t.Fatalf("unexpected inserts: %+v", repo.inserted)
	}
}

func TestArchiveOutputWritesJSON(t *testing.T) {
	storage := &storageFake{objects: map[string][]byte{}}
	out := NewArchiveOutput(storage, "")
	out.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	rec := sampleRecord()
	rec.ID = "inv-9"
	key, err := out.SendOutput(context.Background(), rec)
	if err != nil {
		t.Fatalf("SendOutput() error = %v", err)
	}
	if key != "records/2025-06-01/inv-9.json" {
		t.Fatalf("unexpected key %q", key)
	}
	var decoded map[string]any
	if err := json.Unmarshal(storage.objects[key], &decoded); err != nil {
		t.Fatalf("archived payload is not json: %v", err)
	}
	if decoded["issuer_name"] != "Acme KK" {
		t.Fatalf("unexpected archived record: %v", decoded)
	}
}

func TestTeeMirrorsAfterPrimaryAndIgnoresMirrorFailure(t *testing.T) {
	repo := &repoFake{}
	storage := &storageFake{objects: map[string][]byte{}, err: errors.New("disk full")}
	tee := NewTee(NewRepositoryOutput(repo), NewArchiveOutput(storage, "records"))

	id, err := tee.SendOutput(context.Background(), sampleRecord())
	if err != nil || id != "inv-1" {
		t.Fatalf("expected primary id despite mirror failure, got %q, %v", id, err)
	}

	storage.err = nil
	if _, err := tee.SendOutput(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("SendOutput() error = %v", err)
	}
	found := false
	for key := range storage.objects {
		if strings.HasSuffix(key, "/inv-1.json") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected mirror keyed by primary id, got %v", storage.objects)
	}

	repo.err = errors.New("unique violation")
	if _, err := tee.SendOutput(context.Background(), sampleRecord()); err == nil {
		t.Fatalf("expected primary error to propagate")
	}
}
