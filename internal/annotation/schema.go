package annotation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/lehigh-university-libraries/layout-annotator/internal/models"
)

// pageSchemaTemplate describes the canonical per-page file: an array of boxes,
// each with a known category and an optional non-negative reading order.
const pageSchemaTemplate = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["category"],
    "properties": {
      "category": {"type": "string", "enum": %s},
      "reading_order": {"type": "integer", "minimum": 0},
      "id": {"type": "string"}
    }
  }
}`

var (
	schemaOnce sync.Once
	pageSchema *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		cats, err := json.Marshal(models.LayoutCategories)
		if err != nil {
			schemaErr = fmt.Errorf("marshal categories: %w", err)
			return
		}
		loader := gojsonschema.NewStringLoader(fmt.Sprintf(pageSchemaTemplate, cats))
		pageSchema, schemaErr = gojsonschema.NewSchema(loader)
	})
	return pageSchema, schemaErr
}

// validateDocument checks a document against the page schema and folds all
// violations into a single error message.
func validateDocument(loader gojsonschema.JSONLoader) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile page schema: %w", err)
	}
	result, err := schema.Validate(loader)
	if err != nil {
		return fmt.Errorf("validate page: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return &ValidationError{Problems: msgs}
}

// ValidationError lists schema violations in a page document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "page does not match schema: " + strings.Join(e.Problems, "; ")
}
