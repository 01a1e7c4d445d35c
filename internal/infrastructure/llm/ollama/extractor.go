package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/ports"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/infrastructure/resilience"
)

type ExtractorOptions struct {
	// RequestsPerMinute is the model's request budget; 0 means unlimited.
	RequestsPerMinute int
	Executor          *resilience.Executor
}

// Extractor reads invoice text and asks the model for the extraction record.
type Extractor struct {
	client   *Client
	prompts  PromptSource
	text     ports.TextExtractor
	executor *resilience.Executor
	schema   *jsonschema.Schema
	rpm      int
}

func NewExtractor(client *Client, prompts PromptSource, text ports.TextExtractor, opts ExtractorOptions) (*Extractor, error) {
	if client == nil || prompts == nil || text == nil {
		return nil, errors.New("ollama extractor: client, prompts and text extractor are required")
	}
	schema, err := compileSchema(extractionSchema)
	if err != nil {
		return nil, fmt.Errorf("ollama extractor: %w", err)
	}
	return &Extractor{
		client:   client,
		prompts:  prompts,
		text:     text,
		executor: opts.Executor,
		schema:   schema,
		rpm:      opts.RequestsPerMinute,
	}, nil
}

func (e *Extractor) RequestsPerMinute() int {
	return e.rpm
}

func (e *Extractor) Extract(ctx context.Context, promptKey string, file domain.FileData) (map[string]any, error) {
	text, err := e.text.ExtractText(ctx, file)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract invoice", fmt.Errorf("%s has no text layer", file.Filename))
	}

	system, user, err := buildExtractionPrompt(e.prompts, promptKey, file, text)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "extract invoice", err)
	}

	raw, err := e.generate(ctx, system, user)
	if err != nil {
		return nil, err
	}

	data, err := e.decode(raw)
	if err != nil {
		return nil, malformedResponse(file, promptKey, err)
	}
	return data, nil
}

func (e *Extractor) generate(ctx context.Context, system, user string) (string, error) {
	var out string
	call := func(ctx context.Context) error {
		resp, err := e.client.generateJSON(ctx, system, user)
		if err != nil {
			return err
		}
		out = resp
		return nil
	}

	var err error
	if e.executor != nil {
		err = e.executor.Execute(ctx, "ollama.extract", call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", providerError(ctx, "ollama extract", e.client.Model(), err)
	}
	return out, nil
}

func (e *Extractor) decode(raw string) (map[string]any, error) {
	body := extractJSONObject(strings.TrimSpace(raw))
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil, fmt.Errorf("parse extraction json: %w", err)
	}
	if err := e.schema.Validate(v); err != nil {
		return nil, fmt.Errorf("extraction json does not match schema: %w", err)
	}
	data, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("extraction json is not an object")
	}
	return data, nil
}
