package validation

import "github.com/rendis/graphspace/pkg/schema"

// Validator checks action parameters against their declared ParameterSpecs
// before an action body runs. Uses JSON Schema Draft 2020-12 underneath.
type Validator interface {
	// Validate returns the normalized parameter map: defaults filled in for
	// absent parameters, numbers widened to float64.
	Validate(def *schema.ActionDefinition, params map[string]any) (map[string]any, error)
	ValidateInput(input map[string]any, inputSchema []byte) error
}
