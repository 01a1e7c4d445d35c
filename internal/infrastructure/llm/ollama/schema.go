package ollama

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// extractionSchema accepts the loose shapes models return; the validator judges content.
const extractionSchema = `{
  "type": "object",
  "minProperties": 1,
  "properties": {
    "issuer": {"type": ["string", "null"]},
    "payer": {"type": ["string", "null"]},
    "main_invoice_number": {"type": ["string", "number", "null"]},
    "t_number": {"type": ["string", "null"]},
    "currency": {"type": ["string", "null"]},
    "amount_inclusive_tax": {"type": ["number", "string", "null"]},
    "amount_exclusive_tax": {"type": ["number", "string", "null"]},
    "issue_date": {"type": ["string", "null"]},
    "due_date": {"type": ["string", "null"]},
    "line_items": {"type": ["array", "null"], "items": {"type": "object"}},
    "key_info": {"type": ["object", "null"]}
  }
}`

func compileSchema(source string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("extraction.json", bytes.NewReader([]byte(source))); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("extraction.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
