package nats

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/ports"
)

func TestBatchRequestRoundTripFillsDefaults(t *testing.T) {
	payload, err := encodeBatchRequest(ports.BatchRequest{Keys: []string{"inbox/a.pdf"}, UserEmail: "clerk@example.com"})
	if err != nil {
		t.Fatalf("encodeBatchRequest() error = %v", err)
	}
	req, err := decodeBatchRequest(payload)
	if err != nil {
		t.Fatalf("decodeBatchRequest() error = %v", err)
	}
	if req.RequestID == "" {
		t.Fatalf("expected generated request id")
	}
	if req.Mode != string(domain.ModeBatch) {
		t.Fatalf("expected batch mode default, got %q", req.Mode)
	}
}

func TestDecodeBatchRequestRejectsEmptyKeys(t *testing.T) {
	for _, raw := range []string{`{"keys":[]}`, `{"keys":["  "]}`, `not json`} {
		if _, err := decodeBatchRequest([]byte(raw)); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("decode(%s): expected ErrInvalidInput, got %v", raw, err)
		}
	}
	if _, err := encodeBatchRequest(ports.BatchRequest{}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected encode to reject empty keys, got %v", err)
	}
}

func TestEncodeProgressShape(t *testing.T) {
	payload, err := encodeProgress(domain.ProgressEvent{
		RunID:     "run-1",
		FileIndex: 2,
		Filename:  "c.pdf",
		Progress: domain.WorkflowProgress{
			Status:          domain.WorkflowProcessing,
			Step:            "extracting",
			ProgressPercent: 40,
			Timestamp:       time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		},
	})
	if err != nil {
		t.Fatalf("encodeProgress() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["run_id"] != "run-1" || decoded["file_index"] != float64(2) {
		t.Fatalf("unexpected payload: %s", payload)
	}
	progress, ok := decoded["progress"].(map[string]any)
	if !ok || progress["progress_percent"] != float64(40) {
		t.Fatalf("unexpected progress payload: %s", payload)
	}
}

