package ollama

import (
	"strings"
	"unicode/utf8"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/infrastructure/prompts"
)

const maxDocumentRunes = 12000

// PromptSource renders a named prompt template.
type PromptSource interface {
	Render(key string, vars map[string]string) (string, string, error)
}

func buildExtractionPrompt(source PromptSource, promptKey string, file domain.FileData, text string) (string, string, error) {
	snippet := truncateRunes(text, maxDocumentRunes)
	system, user, err := source.Render(promptKey, map[string]string{
		prompts.PlaceholderFileName:     file.Filename,
		prompts.PlaceholderDocumentText: snippet,
	})
	if err != nil {
		return "", "", err
	}
	// templates without the document placeholder still get the text
	if !strings.Contains(user, snippet) {
		user = strings.TrimRight(user, "\n") + "\n\nInvoice text:\n" + snippet
	}
	return system, user, nil
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
