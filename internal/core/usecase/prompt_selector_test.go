package usecase

import (
	"testing"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
)

type registryFake map[string]bool

func (f registryFake) HasPrompt(key string) bool { return f[key] }

type panickingRegistry struct{}

func (panickingRegistry) HasPrompt(string) bool { panic("registry unavailable") }

func TestRecommendedPromptUsesRankedCandidates(t *testing.T) {
	all := registryFake{
		PromptInvoiceExtractor:  true,
		PromptIntegratedMatcher: true,
		PromptMasterMatcher:     true,
	}
	cases := map[domain.ProcessingMode]string{
		domain.ModeUpload:     PromptInvoiceExtractor,
		domain.ModeSingle:     PromptInvoiceExtractor,
		domain.ModeBatch:      PromptInvoiceExtractor,
		domain.ModeOCRTest:    PromptInvoiceExtractor,
		domain.ModeTest:       PromptInvoiceExtractor,
		domain.ModeValidation: PromptMasterMatcher,
	}
	selector := NewPromptSelector(all)
	for mode, want := range cases {
		if got := selector.RecommendedPrompt(mode); got != want {
			t.Fatalf("RecommendedPrompt(%s) = %q, want %q", mode, got, want)
		}
	}
}

func TestRecommendedPromptFallsBackThroughCandidates(t *testing.T) {
	selector := NewPromptSelector(registryFake{PromptMasterMatcher: true})
	if got := selector.RecommendedPrompt(domain.ModeUpload); got != PromptMasterMatcher {
		t.Fatalf("expected master matcher fallback, got %q", got)
	}
	if got := selector.RecommendedPrompt(domain.ModeBatch); got != DefaultPrompt {
		t.Fatalf("batch has no master matcher candidate, expected default, got %q", got)
	}
}

func TestSingleAndTestModesUseDefaultPrompt(t *testing.T) {
	selector := NewPromptSelector(registryFake{PromptIntegratedMatcher: true, PromptMasterMatcher: true})
	for _, mode := range []domain.ProcessingMode{domain.ModeSingle, domain.ModeTest} {
		if got := selector.RecommendedPrompt(mode); got != DefaultPrompt {
			t.Fatalf("RecommendedPrompt(%s) = %q, want default", mode, got)
		}
		if got := selector.CompatibilityScore(PromptMasterMatcher, mode); got != 0.5 {
			t.Fatalf("CompatibilityScore(master, %s) = %v, want neutral 0.5", mode, got)
		}
	}
	if got := selector.RecommendedPrompt(domain.ModeUpload); got != PromptIntegratedMatcher {
		t.Fatalf("upload must still rank its candidates, got %q", got)
	}
}

func TestRecommendedPromptNeverEmpty(t *testing.T) {
	selectors := []*PromptSelector{
		NewPromptSelector(registryFake{}),
		NewPromptSelector(nil),
		NewPromptSelector(panickingRegistry{}),
		nil,
	}
	modes := []domain.ProcessingMode{domain.ModeUpload, domain.ModeValidation, "unknown"}
	for _, selector := range selectors {
		for _, mode := range modes {
			if got := selector.RecommendedPrompt(mode); got != DefaultPrompt {
				t.Fatalf("expected default prompt, got %q", got)
			}
		}
	}
}

func TestCompatibilityScore(t *testing.T) {
	selector := NewPromptSelector(registryFake{
		PromptInvoiceExtractor: true,
		PromptMasterMatcher:    true,
		"custom_prompt":        true,
	})

	if got := selector.CompatibilityScore(PromptMasterMatcher, domain.ModeValidation); got != 1.0 {
		t.Fatalf("expected 1.0, got %v", got)
	}
	if got := selector.CompatibilityScore(PromptMasterMatcher, domain.ModeOCRTest); got != 0.8 {
		t.Fatalf("expected 0.8, got %v", got)
	}
	if got := selector.CompatibilityScore("custom_prompt", domain.ModeUpload); got != 0.5 {
		t.Fatalf("expected neutral 0.5, got %v", got)
	}
	if got := selector.CompatibilityScore(PromptIntegratedMatcher, domain.ModeUpload); got != 0 {
		t.Fatalf("expected 0 for unregistered prompt, got %v", got)
	}
	if got := NewPromptSelector(panickingRegistry{}).CompatibilityScore(PromptInvoiceExtractor, domain.ModeUpload); got != 0 {
		t.Fatalf("expected 0 after registry panic, got %v", got)
	}
}
