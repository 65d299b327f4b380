package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/w2-extractor/constants"
	"github.com/joseph-ayodele/w2-extractor/internal/fieldspec"
)

// BuildJSONSchema returns the JSON-Schema of a serialized result as a generic map.
func BuildJSONSchema(table fieldspec.Table) map[string]any {
	props := map[string]any{
		KeyDocumentType: map[string]any{
			"type": "string",
			"enum": []string{string(constants.DocumentTypeW2), string(constants.DocumentTypeUnknown)},
		},
		KeyConfidence: map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		KeyMethod: map[string]any{
			"type": "string",
			"enum": []string{constants.MethodPatternMatched, constants.MethodSyntheticFallback, constants.MethodUnrecognized},
		},
		KeyDiagnostics: map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		KeyTextSample:  map[string]any{"type": "string", "maxLength": SampleLen},
		KeyMessage:     map[string]any{"type": "string"},
		KeyRequestID:   map[string]any{"type": "string"},
	}
	for _, spec := range table {
		props[spec.Name] = fieldProp(spec)
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             []string{KeyDocumentType, KeyConfidence, KeyMethod},
	}
}

func fieldProp(spec fieldspec.FieldSpec) map[string]any {
	switch spec.Kind {
	case fieldspec.KindCurrency:
		return map[string]any{"type": "number", "minimum": 0.0}
	case fieldspec.KindSSN:
		return map[string]any{"type": "string", "pattern": `^\d{3}-\d{2}-\d{4}$`}
	case fieldspec.KindEIN:
		return map[string]any{"type": "string", "minLength": 9}
	default:
		return map[string]any{"type": "string", "minLength": 2, "maxLength": 100}
	}
}

var w2Schema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return CompileSchema(BuildJSONSchema(fieldspec.W2()))
})

// CompileSchema compiles a schema map built by BuildJSONSchema.
func CompileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("result.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("result.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// Validate checks the serialized form of r against the W-2 result schema.
func (r ExtractionResult) Validate() error {
	schema, err := w2Schema()
	if err != nil {
		return err
	}
	data, err := r.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return ValidateJSON(schema, data)
}

// ValidateJSON validates raw JSON data against schema.
func ValidateJSON(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("result does not match schema: %w", err)
	}
	return nil
}
