package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/config"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/ports"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/observability/metrics"
)

const (
	serviceName             = "api"
	defaultBackpressureWait = 250 * time.Millisecond
)

type Router struct {
	cfg      config.Config
	workflow ports.InvoiceWorkflow
	invoices ports.InvoiceReader
	batches  ports.BatchQueue
	metrics  *metrics.HTTPServerMetrics
}

// NewRouter wires the invoice API. httpMetrics may be nil.
func NewRouter(
	cfg config.Config,
	workflow ports.InvoiceWorkflow,
	invoices ports.InvoiceReader,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:      cfg,
		workflow: workflow,
		invoices: invoices,
		metrics:  httpMetrics,
	}
}

// WithBatchQueue enables POST /v1/batches.
func (rt *Router) WithBatchQueue(queue ports.BatchQueue) *Router {
	rt.batches = queue
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/invoices", rt.uploadInvoices)
	api.HandleFunc("GET /v1/invoices/{id}", rt.getInvoiceByID)
	if rt.batches != nil {
		api.HandleFunc("POST /v1/batches", rt.enqueueBatch)
	}

	var guarded http.Handler = api
	guarded = apiKeyMiddleware(guarded, rt.cfg.APIKey)
	guarded = backpressureMiddleware(guarded, rt.cfg.APIMaxInFlight, defaultBackpressureWait)
	guarded = rateLimitMiddleware(guarded, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.Handle("/v1/", guarded)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) getInvoiceByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "invoice id is required")
		return
	}

	rec, err := rt.invoices.GetByID(r.Context(), id)
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		if status >= http.StatusInternalServerError {
			slog.Error("invoice_lookup_failed", "request_id", requestIDFromContext(r.Context()), "invoice_id", id, "error", err)
		}
		writeError(w, r, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error":      message,
		"request_id": requestIDFromContext(r.Context()),
	})
}
