// graph-render renders a graph file as Mermaid, text, PNG or SVG.
//
//	go run ./cmd/graph-render -in examples/graphs/services.dot -format svg -out services.svg
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/graphspace/internal/diagram"
	"github.com/rendis/graphspace/internal/graphfile"
)

func main() {
	in := flag.String("in", "", "graph file (.json, .dot, .gv or .csv)")
	out := flag.String("out", "", "output file (default: stdout)")
	format := flag.String("format", "mermaid", "mermaid, text, png or svg")
	direction := flag.String("direction", "TD", "TD or LR")
	flag.Parse()

	if *in == "" {
		fmt.Fprintln(os.Stderr, "usage: graph-render -in FILE [-format mermaid|text|png|svg] [-out FILE]")
		os.Exit(2)
	}
	data, err := render(context.Background(), *in, *format, diagram.Direction(strings.ToUpper(*direction)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "graph-render: %v\n", err)
		os.Exit(1)
	}

	if *out == "" {
		os.Stdout.Write(data)
		return
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "graph-render: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d bytes)\n", *out, len(data))
}

func render(ctx context.Context, path, format string, dir diagram.Direction) ([]byte, error) {
	f, err := graphfile.FormatOf(path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	g, err := graphfile.Parse(raw, f)
	if err != nil {
		return nil, err
	}

	model := diagram.Build(g, diagram.BuildOptions{
		Title:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Direction: dir,
	})
	switch format {
	case "mermaid":
		return []byte(diagram.RenderMermaid(model)), nil
	case "text":
		return []byte(diagram.RenderASCII(model)), nil
	default:
		return diagram.RenderImage(ctx, model, diagram.ImageFormat(format))
	}
}
