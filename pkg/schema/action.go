package schema

import "time"

// ActionKind selects the identity discipline of an action's instances.
type ActionKind string

const (
	// ActionKindSingleton keeps at most one live instance per action, mutated in place.
	ActionKindSingleton ActionKind = "singleton"
	// ActionKindRepeatable creates a fresh instance on every execution.
	ActionKindRepeatable ActionKind = "repeatable"
)

// ActionDefinition is the plain-data description of a palette command.
// The executable body is referenced through Capability and resolved by the registry.
type ActionDefinition struct {
	ID          string          `json:"id" yaml:"id"`
	Title       string          `json:"title" yaml:"title"`
	Description string          `json:"description,omitempty" yaml:"description"`
	Keywords    []string        `json:"keywords,omitempty" yaml:"keywords"`
	Kind        ActionKind      `json:"kind" yaml:"kind"`
	ParentID    string          `json:"parent_id,omitempty" yaml:"parent"`
	ChildrenIDs []string        `json:"children_ids,omitempty" yaml:"children"`
	Category    string          `json:"category,omitempty" yaml:"category"`
	Parameters  []ParameterSpec `json:"parameters,omitempty" yaml:"parameters"`
	Capability  string          `json:"capability" yaml:"capability"`
	EnabledWhen string          `json:"enabled_when,omitempty" yaml:"enabled_when"` // CEL; empty = always
	VisibleWhen string          `json:"visible_when,omitempty" yaml:"visible_when"` // CEL; empty = always
}

// Clone returns a deep copy of the slices so registry bookkeeping never aliases caller data.
func (d ActionDefinition) Clone() ActionDefinition {
	out := d
	out.Keywords = append([]string(nil), d.Keywords...)
	out.ChildrenIDs = append([]string(nil), d.ChildrenIDs...)
	if d.Parameters != nil {
		out.Parameters = make([]ParameterSpec, len(d.Parameters))
		for i, p := range d.Parameters {
			out.Parameters[i] = p.clone()
		}
	}
	return out
}

// ParameterType enumerates the input types an action parameter may declare.
type ParameterType string

const (
	ParamString      ParameterType = "string"
	ParamNumber      ParameterType = "number"
	ParamBoolean     ParameterType = "boolean"
	ParamSelect      ParameterType = "select"
	ParamMultiSelect ParameterType = "multiselect"
)

// ParameterSpec describes one typed input of an action.
type ParameterSpec struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description"`
	Type        ParameterType     `json:"type" yaml:"type"`
	Required    bool              `json:"required,omitempty" yaml:"required"`
	Default     any               `json:"default,omitempty" yaml:"default"`
	Options     []ParameterOption `json:"options,omitempty" yaml:"options"`
	Validation  *ParamValidation  `json:"validation,omitempty" yaml:"validation"`
}

func (p ParameterSpec) clone() ParameterSpec {
	out := p
	out.Options = append([]ParameterOption(nil), p.Options...)
	if p.Validation != nil {
		v := *p.Validation
		out.Validation = &v
	}
	return out
}

// ParameterOption is a selectable (value, label) pair for select and multiselect parameters.
type ParameterOption struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// ParamValidation holds optional numeric bounds and a string pattern.
type ParamValidation struct {
	Min     *float64 `json:"min,omitempty" yaml:"min"`
	Max     *float64 `json:"max,omitempty" yaml:"max"`
	Pattern string   `json:"pattern,omitempty" yaml:"pattern"`
}

// ActionInstance is one realized invocation of an action with its latest result.
type ActionInstance struct {
	ID        string         `json:"id"`
	ActionID  string         `json:"action_id"`
	Result    Outcome        `json:"result"`
	Params    map[string]any `json:"params"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Clone returns a copy that is safe to hand out while the engine keeps mutating the original.
func (i *ActionInstance) Clone() *ActionInstance {
	if i == nil {
		return nil
	}
	out := *i
	out.Params = cloneMap(i.Params)
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
