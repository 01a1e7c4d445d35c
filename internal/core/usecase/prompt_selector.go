package usecase

import (
	"log/slog"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/ports"
)

const (
	PromptInvoiceExtractor  = "invoice_extractor_prompt"
	PromptIntegratedMatcher = "integrated_matcher_prompt"
	PromptMasterMatcher     = "master_matcher_prompt"

	DefaultPrompt = PromptInvoiceExtractor

	neutralCompatibility = 0.5
)

// PromptSelector picks an extraction prompt for a processing mode.
type PromptSelector struct {
	registry ports.PromptRegistry
}

func NewPromptSelector(registry ports.PromptRegistry) *PromptSelector {
	return &PromptSelector{registry: registry}
}

// candidates returns the ranked prompt list for mode, primary choice first.
// Single and test have no list and take DefaultPrompt.
func candidates(mode domain.ProcessingMode) []string {
	switch mode {
	case domain.ModeUpload:
		return []string{PromptInvoiceExtractor, PromptIntegratedMatcher, PromptMasterMatcher}
	case domain.ModeBatch:
		return []string{PromptInvoiceExtractor, PromptIntegratedMatcher}
	case domain.ModeOCRTest:
		return []string{PromptInvoiceExtractor, PromptMasterMatcher}
	case domain.ModeValidation:
		return []string{PromptMasterMatcher, PromptInvoiceExtractor}
	default:
		return nil
	}
}

// compatibilityTable is nil for modes without a tuned ranking; they score neutral.
func compatibilityTable(mode domain.ProcessingMode) map[string]float64 {
	switch mode {
	case domain.ModeUpload, domain.ModeBatch:
		return map[string]float64{
			PromptInvoiceExtractor:  1.0,
			PromptIntegratedMatcher: 0.9,
			PromptMasterMatcher:     0.7,
		}
	case domain.ModeOCRTest:
		return map[string]float64{
			PromptInvoiceExtractor:  1.0,
			PromptMasterMatcher:     0.8,
			PromptIntegratedMatcher: 0.7,
		}
	case domain.ModeValidation:
		return map[string]float64{
			PromptMasterMatcher:     1.0,
			PromptInvoiceExtractor:  0.9,
			PromptIntegratedMatcher: 0.8,
		}
	default:
		return nil
	}
}

// RecommendedPrompt returns the first registered candidate for mode,
// or DefaultPrompt. It never panics and never returns "".
func (s *PromptSelector) RecommendedPrompt(mode domain.ProcessingMode) (key string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("prompt_selection_failed", "mode", string(mode), "panic", r)
			key = DefaultPrompt
		}
	}()

	for _, candidate := range candidates(mode) {
		if s.has(candidate) {
			return candidate
		}
	}
	slog.Debug("prompt_selection_fallback", "mode", string(mode), "prompt", DefaultPrompt)
	return DefaultPrompt
}

// CompatibilityScore rates prompt against mode in [0,1].
func (s *PromptSelector) CompatibilityScore(prompt string, mode domain.ProcessingMode) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("prompt_compatibility_failed", "mode", string(mode), "prompt", prompt, "panic", r)
			score = 0
		}
	}()

	if !s.has(prompt) {
		return 0
	}
	if v, ok := compatibilityTable(mode)[prompt]; ok {
		return v
	}
	return neutralCompatibility
}

func (s *PromptSelector) has(key string) bool {
	if s == nil || s.registry == nil {
		return false
	}
	return s.registry.HasPrompt(key)
}
