// Package schema checks the shape of workflow definition documents before they
// are decoded into models.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidDocument is returned when a document does not match the definition schema.
var ErrInvalidDocument = errors.New("invalid definition document")

// DocumentError lists every schema violation found in a document.
type DocumentError struct {
	Problems []string
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidDocument, strings.Join(e.Problems, "; "))
}

func (e *DocumentError) Is(target error) bool {
	return target == ErrInvalidDocument
}

// definitionSchema only constrains structure. Graph rules such as a single
// start step are left to the validation package.
const definitionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "steps", "transitions"],
  "properties": {
    "id": {"type": "string"},
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "version": {"type": "string"},
    "status": {"enum": ["draft", "published", "archived"]},
    "steps": {"type": "array", "items": {"$ref": "#/definitions/step"}},
    "transitions": {"type": "array", "items": {"$ref": "#/definitions/transition"}}
  },
  "definitions": {
    "step": {
      "type": "object",
      "required": ["id", "name", "type"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "name": {"type": "string", "minLength": 1},
        "type": {"type": "string", "minLength": 1},
        "position": {
          "type": "object",
          "properties": {"x": {"type": "integer"}, "y": {"type": "integer"}}
        },
        "config": {"type": ["object", "null"]},
        "mappings": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["type", "source", "target"],
            "properties": {
              "type": {"type": "string"},
              "source": {"type": "string"},
              "target": {"type": "string"},
              "transform": {"type": "string"}
            }
          }
        },
        "error_handlers": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["type"],
            "properties": {
              "type": {"type": "string"},
              "max_retries": {"type": "integer"},
              "retry_delay": {"type": "integer"}
            }
          }
        }
      }
    },
    "transition": {
      "type": "object",
      "required": ["id", "from", "to"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "from": {"type": "string", "minLength": 1},
        "to": {"type": "string", "minLength": 1},
        "condition": {"type": "string"}
      }
    }
  }
}`

var compiled = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(definitionSchema))
})

// ValidateDocument checks a JSON definition document against the schema.
func ValidateDocument(document []byte) error {
	s, err := compiled()
	if err != nil {
		return fmt.Errorf("failed to compile definition schema: %w", err)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return &DocumentError{Problems: []string{err.Error()}}
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return &DocumentError{Problems: problems}
	}

	return nil
}

// DecodeDefinition validates document and decodes it into a definition.
func DecodeDefinition(document []byte) (*models.WorkflowDefinition, error) {
	if err := ValidateDocument(document); err != nil {
		return nil, err
	}

	var def models.WorkflowDefinition
	if err := json.Unmarshal(document, &def); err != nil {
		return nil, &DocumentError{Problems: []string{err.Error()}}
	}

	return &def, nil
}
