package input

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"slices"
	"strings"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/ports"
)

const (
	SourceLocalUpload   = "local_upload"
	SourceObjectStorage = "object_storage"
)

// Adapter turns source files into FileData. Unreadable files are skipped.
type Adapter struct {
	source string
	method string
}

// NewUploadAdapter reads multipart uploads.
func NewUploadAdapter() *Adapter {
	return &Adapter{source: SourceLocalUpload, method: "multipart_form"}
}

// NewStorageAdapter reads objects already in storage.
func NewStorageAdapter() *Adapter {
	return &Adapter{source: SourceObjectStorage, method: "object_storage"}
}

func (a *Adapter) Source() string {
	return a.source
}

func (a *Adapter) ValidateInput(cfg ports.InputConfig) bool {
	cfg = cfg.WithDefaults()
	if len(cfg.Files) == 0 {
		slog.Warn("input_rejected", "source", a.source, "reason", "no files")
		return false
	}
	for _, f := range cfg.Files {
		if f == nil {
			slog.Warn("input_rejected", "source", a.source, "reason", "nil file")
			return false
		}
		mediaType := normalizeMediaType(f.ContentType())
		if !slices.Contains(cfg.SupportedTypes, mediaType) {
			slog.Warn("input_rejected", "source", a.source, "file", f.Name(), "reason", "unsupported media type", "type", mediaType)
			return false
		}
		if f.Size() > cfg.MaxFileSize {
			slog.Warn("input_rejected", "source", a.source, "file", f.Name(), "reason", "file too large", "size", f.Size(), "max", cfg.MaxFileSize)
			return false
		}
	}
	return true
}

// GetFiles reads every file in order. Only context cancellation is returned as an error.
func (a *Adapter) GetFiles(ctx context.Context, cfg ports.InputConfig) ([]domain.FileData, error) {
	cfg = cfg.WithDefaults()
	out := make([]domain.FileData, 0, len(cfg.Files))
	for _, f := range cfg.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		content, err := readLimited(ctx, f, cfg.MaxFileSize)
		if err != nil {
			slog.Error("input_file_unreadable", "source", a.source, "file", f.Name(), "error", err)
			continue
		}
		out = append(out, domain.NewFileData(content, f.Name(), a.source, map[string]any{
			"size":          len(content),
			"type":          normalizeMediaType(f.ContentType()),
			"upload_method": a.method,
		}))
	}
	slog.Info("input_files_read", "source", a.source, "requested", len(cfg.Files), "read", len(out))
	return out, nil
}

func readLimited(ctx context.Context, f ports.SourceFile, maxSize int64) ([]byte, error) {
	rc, err := f.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	content, err := io.ReadAll(io.LimitReader(rc, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > maxSize {
		return nil, fmt.Errorf("file exceeds %d bytes", maxSize)
	}
	return content, nil
}

func normalizeMediaType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}
