package tools

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// schemaFor reflects the JSON Schema of T's exported fields. Keys the Live
// API rejects ($schema, $id, additionalProperties) are removed.
func schemaFor[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.ReflectFromType(reflect.TypeFor[T]())

	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("tools: marshal schema for %s: %v", reflect.TypeFor[T](), err))
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("tools: unmarshal schema for %s: %v", reflect.TypeFor[T](), err))
	}
	strip(out)
	return out
}

func strip(m map[string]any) {
	delete(m, "$schema")
	delete(m, "$id")
	delete(m, "additionalProperties")
	if props, ok := m["properties"].(map[string]any); ok {
		for _, p := range props {
			if pm, ok := p.(map[string]any); ok {
				strip(pm)
			}
		}
	}
}

// decodeArgs converts the model's argument object into T.
func decodeArgs[T any](args map[string]any) (T, error) {
	var v T
	raw, err := json.Marshal(args)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, err
	}
	return v, nil
}
