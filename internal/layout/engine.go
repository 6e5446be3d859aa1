// Package layout talks to the geometry engine that computes node positions.
// Engine is the raw JSON wire contract; Adapter turns it into typed calls.
package layout

import (
	"context"
	"encoding/json"

	"github.com/rendis/graphspace/pkg/schema"
)

// Engine is an external layout engine. Graph payloads are JSON text:
// GetGraphJSON returns {nodes:{id:Node}, edges:{id:Edge}} and
// ApplyFcoseLayout returns {nodes:{id:{position:[x,y]}}}.
type Engine interface {
	ParseAndLoadGraph(ctx context.Context, text, fileType string) error
	GetGraphJSON(ctx context.Context) (string, error)
	AddNode(ctx context.Context, id string, x, y float64) error
	AddEdge(ctx context.Context, id, source, target string) error
	RemoveNode(ctx context.Context, id string) error
	RemoveEdge(ctx context.Context, id string) error
	ApplyFcoseLayout(ctx context.Context, optionsJSON string) (string, error)
}

// Algorithm names a layout strategy.
type Algorithm string

const (
	AlgorithmFcose      Algorithm = "fcose"
	AlgorithmConcentric Algorithm = "concentric"
	AlgorithmDagre      Algorithm = "dagre"
)

// Valid reports whether a is a known algorithm.
func (a Algorithm) Valid() bool {
	switch a {
	case AlgorithmFcose, AlgorithmConcentric, AlgorithmDagre:
		return true
	}
	return false
}

// Options is the full option set sent with a layout pass.
type Options struct {
	Algorithm       Algorithm `json:"algorithm,omitempty"`
	Padding         float64   `json:"padding"`
	IdealEdgeLength float64   `json:"idealEdgeLength"`
	NodeSeparation  float64   `json:"nodeSeparation"`
	SpringForce     float64   `json:"springForce"`
	RepulsionForce  float64   `json:"repulsionForce"`
	Gravity         float64   `json:"gravity"`
	NumIter         int       `json:"numIter"`
	Tile            bool      `json:"tile"`
}

// DefaultOptions returns the stock fcose settings.
func DefaultOptions() Options {
	return Options{
		Algorithm:       AlgorithmFcose,
		Padding:         50,
		IdealEdgeLength: 50,
		NodeSeparation:  50,
		SpringForce:     0.45,
		RepulsionForce:  1.0,
		Gravity:         0.25,
		NumIter:         500,
		Tile:            true,
	}
}

// OptionsPatch is a partial update; nil fields keep the current value.
type OptionsPatch struct {
	Padding         *float64 `json:"padding,omitempty"`
	IdealEdgeLength *float64 `json:"idealEdgeLength,omitempty"`
	NodeSeparation  *float64 `json:"nodeSeparation,omitempty"`
	SpringForce     *float64 `json:"springForce,omitempty"`
	RepulsionForce  *float64 `json:"repulsionForce,omitempty"`
	Gravity         *float64 `json:"gravity,omitempty"`
	NumIter         *int     `json:"numIter,omitempty"`
	Tile            *bool    `json:"tile,omitempty"`
}

// PatchFromParams reads a patch out of action parameters. Unknown keys are ignored.
func PatchFromParams(params map[string]any) (OptionsPatch, error) {
	var p OptionsPatch
	if len(params) == 0 {
		return p, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return p, schema.NewError(schema.ErrCodeValidation, "invalid layout options").WithCause(err)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, schema.NewError(schema.ErrCodeValidation, "invalid layout options").WithCause(err)
	}
	return p, nil
}

// Merge returns o with every non-nil field of p applied.
func (o Options) Merge(p OptionsPatch) Options {
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&o.Padding, p.Padding)
	set(&o.IdealEdgeLength, p.IdealEdgeLength)
	set(&o.NodeSeparation, p.NodeSeparation)
	set(&o.SpringForce, p.SpringForce)
	set(&o.RepulsionForce, p.RepulsionForce)
	set(&o.Gravity, p.Gravity)
	if p.NumIter != nil {
		o.NumIter = *p.NumIter
	}
	if p.Tile != nil {
		o.Tile = *p.Tile
	}
	return o
}
