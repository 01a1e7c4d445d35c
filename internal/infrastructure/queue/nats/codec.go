package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/ports"
)

func encodeBatchRequest(req ports.BatchRequest) ([]byte, error) {
	if len(req.Keys) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode batch request", errors.New("keys are required"))
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal batch request: %w", err)
	}
	return payload, nil
}

func decodeBatchRequest(data []byte) (ports.BatchRequest, error) {
	var req ports.BatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return ports.BatchRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode batch request", err)
	}

	keys := req.Keys[:0]
	for _, key := range req.Keys {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	req.Keys = keys
	if len(req.Keys) == 0 {
		return ports.BatchRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode batch request", errors.New("keys are required"))
	}
	if req.Mode == "" {
		req.Mode = string(domain.ModeBatch)
	}
	return req, nil
}

func encodeProgress(event domain.ProgressEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal progress event: %w", err)
	}
	return payload, nil
}
