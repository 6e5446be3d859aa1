package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	dir := model.Direction
	if dir == "" {
		dir = TopDown
	}
	fmt.Fprintf(&b, "graph %s\n", dir)
	if model.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", model.Title)
	}

	for _, node := range model.Nodes {
		fmt.Fprintf(&b, "    %s\n", mermaidNodeDef(node))
	}
	for _, edge := range model.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", mermaidEscapeLabel(edge.Label))
		}
		fmt.Fprintf(&b, "    %s -->%s %s\n", mermaidSafeID(edge.From), label, mermaidSafeID(edge.To))
	}

	var marked []*Node
	for _, node := range model.Nodes {
		if node.Mark != MarkNone {
			marked = append(marked, node)
		}
	}
	if len(marked) == 0 {
		return b.String()
	}
	b.WriteString("\n")
	b.WriteString("    classDef selected fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef match fill:#b7791a,stroke:#8a5c14,color:#fff\n")
	for _, node := range marked {
		fmt.Fprintf(&b, "    class %s %s\n", mermaidSafeID(node.ID), node.Mark)
	}
	return b.String()
}

// mermaidNodeDef returns a node definition; typed nodes get a rounded shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(node.Label)
	if node.Type != "" {
		return fmt.Sprintf("%s(\"%s<br/><i>%s</i>\")", id, label, mermaidEscapeLabel(node.Type))
	}
	return fmt.Sprintf("%s[\"%s\"]", id, label)
}

var mermaidIDReplacer = strings.NewReplacer(".", "_", "-", "_", " ", "_", ":", "_", "/", "_")

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	return mermaidIDReplacer.Replace(id)
}

var mermaidLabelReplacer = strings.NewReplacer(`"`, "#quot;", "\n", " ", "|", "#124;")

func mermaidEscapeLabel(s string) string {
	return mermaidLabelReplacer.Replace(s)
}
