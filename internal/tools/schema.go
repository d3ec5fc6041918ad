package tools

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// reflectSchema generates an inline JSON Schema for a tool's argument struct.
// Field ordering and required markers follow struct tags: json names the
// property, jsonschema carries descriptions, omitempty makes it optional.
func reflectSchema(v any) json.RawMessage {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}
	schema := reflector.Reflect(v)
	schema.Version = ""
	data, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return data
}
