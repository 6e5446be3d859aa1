package diagram

// Mark flags a node for highlighting in every renderer.
type Mark string

const (
	MarkNone     Mark = ""
	MarkSelected Mark = "selected"
	MarkMatch    Mark = "match" // search hit
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title     string
	Direction Direction
	Nodes     []*Node
	Edges     []Edge
}

// Direction is the rank direction of the drawing.
type Direction string

const (
	TopDown   Direction = "TD"
	LeftRight Direction = "LR"
)

// Node is a single graph vertex as drawn.
type Node struct {
	ID    string
	Label string
	Type  string
	Mark  Mark
}

// Edge is a drawn connection between two nodes.
type Edge struct {
	ID    string
	From  string
	To    string
	Label string
}
