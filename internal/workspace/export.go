package workspace

import (
	"context"

	"github.com/rendis/graphspace/internal/diagram"
	"github.com/rendis/graphspace/internal/graphfile"
	"github.com/rendis/graphspace/pkg/schema"
)

// Export renders the visible graph (or the full graph when visibleOnly is
// false) as json, dot, mermaid, text, png or svg. It returns the content
// and its media type.
func (w *Workspace) Export(ctx context.Context, format string, visibleOnly bool) ([]byte, string, error) {
	g := w.graph.Snapshot()
	if visibleOnly {
		g = w.VisibleGraph(ctx)
	}

	switch format {
	case "", "json":
		data, err := graphfile.Encode(g, graphfile.FormatJSON)
		return data, "application/json", err
	case "dot":
		data, err := graphfile.Encode(g, graphfile.FormatDOT)
		return data, "text/vnd.graphviz", err
	}

	model := diagram.Build(g, diagram.BuildOptions{Selected: w.selection.SelectedNodes()})
	switch format {
	case "mermaid":
		return []byte(diagram.RenderMermaid(model)), "text/plain; charset=utf-8", nil
	case "text":
		return []byte(diagram.RenderASCII(model)), "text/plain; charset=utf-8", nil
	case "png":
		data, err := diagram.RenderImage(ctx, model, diagram.ImagePNG)
		return data, "image/png", err
	case "svg":
		data, err := diagram.RenderImage(ctx, model, diagram.ImageSVG)
		return data, "image/svg+xml", err
	}
	return nil, "", schema.NewErrorf(schema.ErrCodeUnsupportedFormat, "unsupported export format %q", format)
}
