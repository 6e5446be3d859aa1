package graphfile

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/rendis/graphspace/pkg/schema"
)

// ParseCSV reads an edge list. With a header row, columns are located by
// name (source, target, weight, id, type; anything else becomes edge
// metadata). Without one, columns are positional: source,target[,weight][,id].
// Endpoints become nodes labeled by their id.
func ParseCSV(data []byte) (*schema.Graph, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comment = '#'

	b := newBuilder()
	var cols map[string]int
	var extra []string
	row := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, parseError("invalid CSV").WithCause(err)
		}
		line, _ := r.FieldPos(0)

		if cols == nil && row == 0 && isHeader(rec) {
			cols, extra = headerColumns(rec)
			continue
		}
		if cols == nil {
			cols = map[string]int{"source": 0, "target": 1, "weight": 2, "id": 3}
		}

		e, err := csvEdge(rec, cols, extra, row)
		if err != nil {
			return nil, parseError("CSV line %d: %s", line, err.Error())
		}
		b.putEdge(e)
		row++
	}
	return b.g, nil
}

func isHeader(rec []string) bool {
	return len(rec) >= 2 &&
		strings.EqualFold(strings.TrimSpace(rec[0]), "source") &&
		strings.EqualFold(strings.TrimSpace(rec[1]), "target")
}

func headerColumns(rec []string) (map[string]int, []string) {
	cols := make(map[string]int, len(rec))
	extra := make([]string, len(rec))
	for i, h := range rec {
		h = strings.ToLower(strings.TrimSpace(h))
		switch h {
		case "source", "target", "weight", "id", "type":
			cols[h] = i
		default:
			extra[i] = h
		}
	}
	return cols, extra
}

func csvEdge(rec []string, cols map[string]int, extra []string, row int) (*schema.Edge, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	e := &schema.Edge{
		ID:     field("id"),
		Source: field("source"),
		Target: field("target"),
		Type:   field("type"),
		Weight: 1,
	}
	if e.Source == "" || e.Target == "" {
		return nil, errors.New("row needs source and target")
	}
	if e.ID == "" {
		e.ID = "edge-" + strconv.Itoa(row)
	}
	if w := field("weight"); w != "" {
		f, err := strconv.ParseFloat(w, 64)
		if err != nil {
			return nil, errors.New("invalid weight " + strconv.Quote(w))
		}
		e.Weight = f
	}
	for i, name := range extra {
		if name != "" && i < len(rec) {
			setMeta(&e.Metadata, name, strings.TrimSpace(rec[i]))
		}
	}
	return e, nil
}
