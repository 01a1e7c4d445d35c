package extractor

import (
	"context"
	"fmt"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/ports"
)

// Router picks a text extractor by file extension.
type Router struct {
	byExtension map[string]ports.TextExtractor
	fallback    ports.TextExtractor
}

// NewRouter maps lowercase extensions without the dot, e.g. "pdf".
func NewRouter(byExtension map[string]ports.TextExtractor, fallback ports.TextExtractor) *Router {
	return &Router{byExtension: byExtension, fallback: fallback}
}

func (r *Router) ExtractText(ctx context.Context, file domain.FileData) (string, error) {
	if ext, ok := r.byExtension[file.Extension()]; ok {
		return ext.ExtractText(ctx, file)
	}
	if r.fallback != nil {
		return r.fallback.ExtractText(ctx, file)
	}
	return "", domain.WrapError(domain.ErrInvalidInput, "extract text", fmt.Errorf("no extractor for %q", file.Filename))
}
