package schema

// OutcomeKind discriminates the Outcome tagged union.
type OutcomeKind string

const (
	OutcomeNone   OutcomeKind = "none"
	OutcomeFilter OutcomeKind = "filter"
	OutcomeSearch OutcomeKind = "search"
	OutcomeQuery  OutcomeKind = "query"
	OutcomeNode   OutcomeKind = "node"
	OutcomeData   OutcomeKind = "data"
)

// FilterKind selects the matching rule of a FilterCriterion.
type FilterKind string

const (
	FilterByName       FilterKind = "name"
	FilterByContent    FilterKind = "content"
	FilterByTag        FilterKind = "tag"
	FilterByExpression FilterKind = "expression"
)

// FilterCriterion narrows the visible node set. Which fields apply depends on Kind.
type FilterCriterion struct {
	Kind          FilterKind `json:"kind"`
	Pattern       string     `json:"pattern,omitempty"`
	CaseSensitive bool       `json:"case_sensitive,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	Expression    string     `json:"expression,omitempty"`
}

// SearchScope restricts which nodes a search may keep.
type SearchScope string

const (
	ScopeAll      SearchScope = "all"
	ScopeSelected SearchScope = "selected"
	ScopeVisible  SearchScope = "visible"
)

// SearchCriterion keeps nodes whose label (or content) matches Query.
type SearchCriterion struct {
	Query          string      `json:"query"`
	IncludeContent bool        `json:"include_content"`
	Scope          SearchScope `json:"scope,omitempty"`
}

// QueryResult is the value produced by a jq query over the graph.
type QueryResult struct {
	Expression string `json:"expression"`
	Value      any    `json:"value"`
}

// Outcome is the result payload of an action body.
// Exactly one variant field is set, matching Kind.
type Outcome struct {
	Kind   OutcomeKind      `json:"kind"`
	Filter *FilterCriterion `json:"filter,omitempty"`
	Search *SearchCriterion `json:"search,omitempty"`
	Query  *QueryResult     `json:"query,omitempty"`
	Node   *Node            `json:"node,omitempty"`
	Data   map[string]any   `json:"data,omitempty"`
}

// NoOutcome is returned by bodies that only perform side effects.
func NoOutcome() Outcome { return Outcome{Kind: OutcomeNone} }

// FilterOutcome wraps a filter criterion.
func FilterOutcome(c FilterCriterion) Outcome {
	return Outcome{Kind: OutcomeFilter, Filter: &c}
}

// SearchOutcome wraps a search criterion.
func SearchOutcome(c SearchCriterion) Outcome {
	return Outcome{Kind: OutcomeSearch, Search: &c}
}

// QueryOutcome wraps a query result.
func QueryOutcome(expression string, value any) Outcome {
	return Outcome{Kind: OutcomeQuery, Query: &QueryResult{Expression: expression, Value: value}}
}

// NodeOutcome wraps a node produced by the action.
func NodeOutcome(n *Node) Outcome {
	return Outcome{Kind: OutcomeNode, Node: n}
}

// DataOutcome wraps a free-form status payload.
func DataOutcome(data map[string]any) Outcome {
	return Outcome{Kind: OutcomeData, Data: data}
}
