package plaintext

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
)

// Extractor reads UTF-8 text documents such as e-invoice exports and .txt scans.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) ExtractText(_ context.Context, file domain.FileData) (string, error) {
	if !utf8.Valid(file.Content) {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", fmt.Errorf("unsupported binary format: %s", file.Filename))
	}
	return strings.TrimSpace(string(file.Content)), nil
}
