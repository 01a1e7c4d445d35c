package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/ports"
)

const maxBatchRequestBytes = 1 << 20

func (rt *Router) enqueueBatch(w http.ResponseWriter, r *http.Request) {
	var req ports.BatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchRequestBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json")
		return
	}

	keys := make([]string, 0, len(req.Keys))
	for _, key := range req.Keys {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		writeError(w, r, http.StatusBadRequest, "keys are required")
		return
	}
	req.Keys = keys
	if req.Mode != "" {
		if _, err := domain.ParseProcessingMode(req.Mode); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.UserEmail == "" {
		req.UserEmail = strings.TrimSpace(r.Header.Get(userEmailHeader))
	}
	req.RequestID = uuid.NewString()

	if err := rt.batches.PublishBatchRequest(r.Context(), req); err != nil {
		slog.Error("batch_enqueue_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		writeError(w, r, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"request_id": req.RequestID,
		"files":      len(req.Keys),
	})
}
