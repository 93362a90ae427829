package world

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// baselineSchemaJSON describes the dataset format. lat/lon are optional:
// they only matter to map renderers.
const baselineSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["disaster_zone", "relief_hub"],
    "properties": {
      "disaster_zone": {
        "type": "object",
        "required": ["zone", "population", "severity", "urgency", "risk", "distance", "accessibility"],
        "properties": {
          "zone": {"type": ["string", "integer"]},
          "lat": {"type": "number"},
          "lon": {"type": "number"},
          "population": {"type": "number", "minimum": 0},
          "severity": {"type": "number"},
          "urgency": {"type": "number"},
          "risk": {"type": "number"},
          "distance": {"type": "number"},
          "accessibility": {"type": "number"}
        }
      },
      "relief_hub": {
        "type": "object",
        "required": ["hub", "A", "T", "S"],
        "properties": {
          "hub": {"type": ["string", "integer"]},
          "lat": {"type": "number"},
          "lon": {"type": "number"},
          "A": {"type": "integer", "minimum": 0},
          "T": {"type": "integer", "minimum": 0},
          "S": {"type": "integer", "minimum": 0}
        }
      }
    }
  }
}`

var baselineSchema = jsonschema.MustCompileString("baseline.schema.json", baselineSchemaJSON)

func validateSchema(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: invalid json: %v", ErrData, err)
	}
	if err := baselineSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrData, err)
	}
	return nil
}
