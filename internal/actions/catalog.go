package actions

import (
	_ "embed"
	"fmt"

	"github.com/rendis/graphspace/pkg/schema"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// Catalog is a YAML document declaring palette actions.
type Catalog struct {
	Actions []schema.ActionDefinition `yaml:"actions"`
}

// ParseCatalog decodes a catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "invalid action catalog").WithCause(err)
	}
	return &c, nil
}

// LoadCatalog registers every action in data, in document order.
// Registration stops at the first invalid entry.
func LoadCatalog(r *Registry, data []byte) (int, error) {
	c, err := ParseCatalog(data)
	if err != nil {
		return 0, err
	}
	for i, def := range c.Actions {
		if err := r.Register(def); err != nil {
			return i, fmt.Errorf("catalog entry %d: %w", i, err)
		}
	}
	return len(c.Actions), nil
}

// LoadBuiltinCatalog registers the embedded builtin catalog. The builtin
// capabilities must be registered first.
func LoadBuiltinCatalog(r *Registry) (int, error) {
	return LoadCatalog(r, builtinCatalog)
}
