package httpadapter

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/adapters/input"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/ports"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/infrastructure/report"
)

const (
	multipartMemory = 32 << 20
	userEmailHeader = "X-User-Email"
)

func (rt *Router) uploadInvoices(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, r, http.StatusBadRequest, "multipart form is required")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		writeError(w, r, http.StatusBadRequest, "multipart field 'files' is required")
		return
	}

	cfg, err := rt.processingConfig(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	sources := make([]ports.SourceFile, 0, len(headers))
	for _, h := range headers {
		sources = append(sources, input.NewMultipartFile(h))
	}
	inputCfg := ports.InputConfig{
		Files:          sources,
		SupportedTypes: rt.cfg.SupportedTypes,
		MaxFileSize:    rt.cfg.MaxFileSizeBytes(),
	}
	if rt.metrics != nil {
		rt.metrics.RecordUpload(serviceName, string(cfg.Mode), len(sources))
	}

	result, err := rt.workflow.Run(r.Context(), input.NewUploadAdapter(), inputCfg, cfg)
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		if status >= http.StatusInternalServerError {
			slog.Error("invoice_upload_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		}
		writeError(w, r, status, err.Error())
		return
	}

	status := http.StatusOK
	if rejected, _ := result.Summary["input_rejected"].(bool); rejected {
		status = http.StatusUnprocessableEntity
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "xlsx") && status == http.StatusOK {
		workbook, err := report.BatchWorkbook(result)
		if err != nil {
			slog.Error("invoice_report_failed", "request_id", requestIDFromContext(r.Context()), "run_id", result.RunID, "error", err)
			writeError(w, r, http.StatusInternalServerError, "failed to build report")
			return
		}
		w.Header().Set("Content-Type", report.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="invoices_%s.xlsx"`, result.RunID))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(workbook)
		return
	}
	writeJSON(w, status, result)
}

// processingConfig builds the run config from server defaults and query overrides.
func (rt *Router) processingConfig(r *http.Request) (domain.ProcessingConfig, error) {
	q := r.URL.Query()
	cfg := domain.DefaultProcessingConfig()
	cfg.MaxRetries = max(rt.cfg.MaxRetries, 0)
	if rt.cfg.TimeoutSeconds > 0 {
		cfg.TimeoutSeconds = rt.cfg.TimeoutSeconds
	}
	cfg.AutoSave = rt.cfg.AutoSave

	rawMode := q.Get("mode")
	if rawMode == "" {
		rawMode = rt.cfg.DefaultMode
	}
	if rawMode != "" {
		mode, err := domain.ParseProcessingMode(rawMode)
		if err != nil {
			return cfg, err
		}
		cfg.Mode = mode
	}

	if v := q.Get("validate"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("validate must be a boolean")
		}
		cfg.IncludeValidation = parsed
	}
	if v := q.Get("auto_save"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("auto_save must be a boolean")
		}
		cfg.AutoSave = parsed
	}
	cfg.PromptKey = strings.TrimSpace(q.Get("prompt"))

	cfg.UserEmail = strings.TrimSpace(r.Header.Get(userEmailHeader))
	if cfg.UserEmail == "" {
		cfg.UserEmail = strings.TrimSpace(r.FormValue("user_email"))
	}
	return cfg, cfg.Validate()
}
