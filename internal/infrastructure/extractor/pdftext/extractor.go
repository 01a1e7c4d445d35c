package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
)

const defaultMaxTextBytes = 64 * 1024

// Extractor reads the text layer of a PDF. Image-only scans yield an empty string.
type Extractor struct {
	maxTextBytes int64
}

func NewExtractor(maxTextBytes int64) *Extractor {
	if maxTextBytes <= 0 {
		maxTextBytes = defaultMaxTextBytes
	}
	return &Extractor{maxTextBytes: maxTextBytes}
}

func (e *Extractor) ExtractText(ctx context.Context, file domain.FileData) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !bytes.HasPrefix(bytes.TrimLeft(file.Content, "\x00\t\r\n "), []byte("%PDF-")) {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract pdf text", fmt.Errorf("%s is not a PDF document", file.Filename))
	}

	// the parser panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = domain.WrapError(domain.ErrInvalidInput, "extract pdf text", fmt.Errorf("malformed PDF %s: %v", file.Filename, r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(file.Content), int64(len(file.Content)))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract pdf text", fmt.Errorf("open %s: %w", file.Filename, err))
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract pdf text", fmt.Errorf("read %s: %w", file.Filename, err))
	}

	raw, err := io.ReadAll(io.LimitReader(plain, e.maxTextBytes))
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
