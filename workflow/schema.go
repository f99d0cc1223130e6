package workflow

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/force-h2020/wfmanager/errors"
)

// DocumentSchema is the JSON Schema every persisted workflow document must
// satisfy before it is decoded.
const DocumentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Workflow document",
  "type": "object",
  "required": ["version", "workflow"],
  "properties": {
    "version": {"type": "string", "enum": ["1"]},
    "workflow": {
      "type": "object",
      "properties": {
        "mco": {"oneOf": [{"type": "null"}, {"$ref": "#/definitions/mco"}]},
        "execution_layers": {
          "type": "array",
          "items": {"type": "array", "items": {"$ref": "#/definitions/data_source"}}
        },
        "notification_listeners": {
          "type": "array",
          "items": {"$ref": "#/definitions/listener"}
        }
      }
    }
  },
  "definitions": {
    "slot_info": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {"name": {"type": "string"}}
      }
    },
    "parameter": {
      "type": "object",
      "required": ["id", "model_data"],
      "properties": {
        "id": {"type": "string"},
        "model_data": {
          "type": "object",
          "properties": {
            "name": {"type": "string"},
            "type": {"type": "string"}
          }
        }
      }
    },
    "kpi": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "objective": {"type": "string"},
        "scale_factor": {"type": "number"}
      }
    },
    "mco": {
      "type": "object",
      "required": ["id", "model_data"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "model_data": {
          "type": "object",
          "properties": {
            "parameters": {"type": "array", "items": {"$ref": "#/definitions/parameter"}},
            "kpis": {"type": "array", "items": {"$ref": "#/definitions/kpi"}}
          }
        }
      }
    },
    "data_source": {
      "type": "object",
      "required": ["id", "model_data"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "model_data": {
          "type": "object",
          "properties": {
            "input_slot_info": {"$ref": "#/definitions/slot_info"},
            "output_slot_info": {"$ref": "#/definitions/slot_info"}
          }
        }
      }
    },
    "listener": {
      "type": "object",
      "required": ["id", "model_data"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "model_data": {
          "type": "object",
          "properties": {
            "identifier": {"type": "string"},
            "pub_url": {"type": "string"},
            "sync_url": {"type": "string"}
          }
        }
      }
    }
  }
}`

var documentSchema = gojsonschema.NewStringLoader(DocumentSchema)

// ValidateDocument checks data against DocumentSchema.
func ValidateDocument(data []byte) error {
	result, err := gojsonschema.Validate(documentSchema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidData, err),
			"workflow", "ValidateDocument", "parse document")
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrInvalidData, strings.Join(problems, "; ")),
		"workflow", "ValidateDocument", "schema validation")
}
