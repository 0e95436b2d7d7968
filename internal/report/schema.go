package report

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidPayload marks input that cannot be turned into a document.
var ErrInvalidPayload = errors.New("invalid payload")

const horsesSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["name", "bcsScore"],
    "properties": {
      "name": {"type": "string"},
      "breed": {"type": ["string", "null"]},
      "age": {"type": ["string", "number", "null"]},
      "sex": {"type": ["string", "null"]},
      "color": {"type": ["string", "null"]},
      "timeOnFarm": {"type": ["string", "number", "null"]},
      "timeUnit": {"type": ["string", "null"]},
      "isHorse": {"type": "boolean"},
      "bcsScore": {"type": "number"},
      "notes": {"type": ["string", "null"]}
    }
  }
}`

const reportSchema = `{
  "type": "object",
  "required": ["metadata", "nonCompliantFindings"],
  "properties": {
    "metadata": {
      "type": "object",
      "required": ["farmName", "vetName", "visitDate"],
      "properties": {
        "id": {"type": ["string", "number", "null"]},
        "displayName": {"type": ["string", "null"]},
        "farmName": {"type": "string"},
        "vetName": {"type": "string"},
        "visitDate": {"type": "string"}
      }
    },
    "nonCompliantFindings": {
      "type": "object",
      "required": ["sections"],
      "properties": {
        "sections": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["id", "title", "subsections"],
            "properties": {
              "id": {"type": ["string", "number"]},
              "title": {"type": "string"},
              "subsections": {
                "type": "array",
                "items": {
                  "type": "object",
                  "required": ["name", "requirements"],
                  "properties": {
                    "name": {"type": "string"},
                    "requirements": {
                      "type": "array",
                      "items": {
                        "type": "object",
                        "required": ["text"],
                        "properties": {
                          "text": {"type": "string"},
                          "complianceStatus": {"type": ["string", "null"]},
                          "findings": {"type": ["string", "null"]}
                        }
                      }
                    }
                  }
                }
              }
            }
          }
        }
      }
    },
    "sideNotes": {"type": ["string", "null"]}
  }
}`

var (
	horsesValidator = sync.OnceValues(func() (*gojsonschema.Schema, error) {
		return gojsonschema.NewSchema(gojsonschema.NewStringLoader(horsesSchema))
	})
	reportValidator = sync.OnceValues(func() (*gojsonschema.Schema, error) {
		return gojsonschema.NewSchema(gojsonschema.NewStringLoader(reportSchema))
	})
)

func validate(kind string, load func() (*gojsonschema.Schema, error), data []byte) error {
	schema, err := load()
	if err != nil {
		return fmt.Errorf("compile %s schema: %w", kind, err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, kind, err)
	}
	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("%w: %s: %s", ErrInvalidPayload, kind, strings.Join(msgs, "; "))
	}
	return nil
}
