package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rendis/graphspace/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const draft = "https://json-schema.org/draft/2020-12/schema"

// JSONSchemaValidator implements Validator by translating ParameterSpecs into
// JSON Schema documents. Compiled schemas are cached by their canonical bytes.
// It is safe for concurrent use.
type JSONSchemaValidator struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator creates an empty validator.
func NewJSONSchemaValidator() *JSONSchemaValidator {
	return &JSONSchemaValidator{cache: make(map[string]*jsonschema.Schema)}
}

// Validate applies defaults, then checks params against def.Parameters.
func (v *JSONSchemaValidator) Validate(def *schema.ActionDefinition, params map[string]any) (map[string]any, error) {
	if def == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "action definition is nil")
	}

	merged := ApplyDefaults(def.Parameters, params)
	if len(def.Parameters) == 0 {
		return merged, nil
	}

	raw, err := json.Marshal(SchemaFor(def.Parameters))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "failed to build parameter schema").
			WithAction(def.ID).WithCause(err)
	}

	if err := v.ValidateInput(merged, raw); err != nil {
		if ge, ok := err.(*schema.GraphspaceError); ok {
			return nil, ge.WithAction(def.ID)
		}
		return nil, err
	}
	return normalize(merged)
}

// ValidateInput validates input against a JSON Schema provided as raw bytes.
func (v *JSONSchemaValidator) ValidateInput(input map[string]any, inputSchema []byte) error {
	if input == nil {
		return schema.NewError(schema.ErrCodeValidation, "input is nil")
	}
	if len(inputSchema) == 0 {
		return nil
	}

	compiled, err := v.getOrCompile(inputSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid parameter schema").WithCause(err)
	}

	doc, err := toJSONValue(input)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize parameters").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toGraphspaceError(err)
	}
	return nil
}

// SchemaFor renders specs as a JSON Schema object. Unknown parameters are
// tolerated; front-ends commonly send extra keys.
func SchemaFor(specs []schema.ParameterSpec) map[string]any {
	props := make(map[string]any, len(specs))
	required := make([]string, 0)

	for _, p := range specs {
		props[p.ID] = propertyFor(p)
		if p.Required {
			required = append(required, p.ID)
		}
	}

	out := map[string]any{
		"$schema":    draft,
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func propertyFor(p schema.ParameterSpec) map[string]any {
	prop := map[string]any{}
	if p.Description != "" {
		prop["description"] = p.Description
	}

	switch p.Type {
	case schema.ParamNumber:
		prop["type"] = "number"
		if p.Validation != nil {
			if p.Validation.Min != nil {
				prop["minimum"] = *p.Validation.Min
			}
			if p.Validation.Max != nil {
				prop["maximum"] = *p.Validation.Max
			}
		}
	case schema.ParamBoolean:
		prop["type"] = "boolean"
	case schema.ParamSelect:
		prop["type"] = "string"
		if vals := optionValues(p.Options); len(vals) > 0 {
			prop["enum"] = vals
		}
	case schema.ParamMultiSelect:
		items := map[string]any{"type": "string"}
		if vals := optionValues(p.Options); len(vals) > 0 {
			items["enum"] = vals
		}
		prop["type"] = "array"
		prop["items"] = items
	default:
		prop["type"] = "string"
		if p.Validation != nil && p.Validation.Pattern != "" {
			prop["pattern"] = p.Validation.Pattern
		}
	}
	return prop
}

func optionValues(opts []schema.ParameterOption) []string {
	vals := make([]string, 0, len(opts))
	for _, o := range opts {
		vals = append(vals, o.Value)
	}
	return vals
}

// ApplyDefaults returns a copy of params where every absent or null
// parameter with a declared default takes that default.
func ApplyDefaults(specs []schema.ParameterSpec, params map[string]any) map[string]any {
	out := make(map[string]any, len(params)+len(specs))
	for k, val := range params {
		if val != nil {
			out[k] = val
		}
	}
	for _, p := range specs {
		if _, ok := out[p.ID]; ok || p.Default == nil {
			continue
		}
		out[p.ID] = copyDefault(p.Default)
	}
	return out
}

func copyDefault(v any) any {
	switch d := v.(type) {
	case []any:
		return append([]any(nil), d...)
	case []string:
		return append([]string(nil), d...)
	default:
		return v
	}
}

// normalize round-trips params through JSON so bodies see one numeric type.
func normalize(params map[string]any) (map[string]any, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "failed to serialize parameters").WithCause(err)
	}
	out := make(map[string]any, len(params))
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "failed to normalize parameters").WithCause(err)
	}
	return out, nil
}

func (v *JSONSchemaValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	url := fmt.Sprintf("graphspace://params/%d", len(v.cache))
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

// toJSONValue converts v into the document model the jsonschema library
// expects (json.Number for numerics).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

func toGraphspaceError(err error) *schema.GraphspaceError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	switch len(violations) {
	case 0:
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	case 1:
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "parameter validation failed with %d errors", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations flattens the ValidationError tree into
// "/location: message" leaves.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
