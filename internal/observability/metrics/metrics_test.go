package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestWorkflowAndHTTPMetricsShareRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	wf := NewWorkflowMetrics("api", registry)
	httpMetrics := NewHTTPServerMetrics("api", registry)

	wf.StartFile()
	wf.ObserveAttempts(2)
	wf.ObserveCompleteness(72.7)
	wf.FinishFile(domain.ModeBatch, "success", 1500*time.Millisecond)
	httpMetrics.RecordUpload("api", "batch", 3)

	handler := httpMetrics.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/invoices/abc", nil))

	body := scrape(t, wf.Handler())
	for _, want := range []string{
		`invoice_workflow_files_total{mode="batch",outcome="success",service="api"} 1`,
		`invoice_workflow_files_in_flight{service="api"} 0`,
		`invoice_http_uploaded_files_total{mode="batch",service="api"} 3`,
		`invoice_http_requests_total{method="GET",path="/v1/invoices/{invoice_id}",service="api",status="404"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in scrape output:\n%s", want, body)
		}
	}
}
