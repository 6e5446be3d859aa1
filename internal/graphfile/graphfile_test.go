package graphfile

import (
	"testing"

	"github.com/rendis/graphspace/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodeIDs(g *schema.Graph) []string {
	out := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		out[i] = n.ID
	}
	return out
}

func edgeIDs(g *schema.Graph) []string {
	out := make([]string, len(g.Edges))
	for i, e := range g.Edges {
		out[i] = e.ID
	}
	return out
}

func labels(g *schema.Graph) map[string]string {
	out := make(map[string]string, len(g.Nodes))
	for _, n := range g.Nodes {
		out[n.ID] = n.Label
	}
	return out
}

func TestFormatOf(t *testing.T) {
	f, err := FormatOf("deps.DOT")
	require.NoError(t, err)
	assert.Equal(t, FormatDOT, f)

	f, err = FormatOf("/tmp/graph.json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	for _, name := range []string{"graph.xml", "graph", "graph.graphml"} {
		_, err := FormatOf(name)
		assert.True(t, schema.IsCode(err, schema.ErrCodeUnsupportedFormat), name)
	}
}

func TestParseJSON_SynthesizesIDsAndLabels(t *testing.T) {
	g, err := ParseJSON([]byte(`{
		"name": "demo",
		"nodes": [
			{"id": "A", "label": "Alpha", "tags": ["core"]},
			{"name": "Beta"},
			{"id": 7}
		],
		"edges": [
			{"source": "A", "target": "node-1"},
			{"id": "e", "source": "A", "target": "7", "weight": 2.5, "kind": "calls"}
		]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "demo", g.Name)
	assert.Equal(t, []string{"A", "node-1", "7"}, nodeIDs(g))
	assert.Equal(t, map[string]string{"A": "Alpha", "node-1": "Beta", "7": "7"}, labels(g))
	assert.Equal(t, []string{"core"}, g.Nodes[0].Tags())

	assert.Equal(t, []string{"edge-0", "e"}, edgeIDs(g))
	assert.Equal(t, 1.0, g.Edges[0].Weight)
	assert.Equal(t, 2.5, g.Edges[1].Weight)
	assert.Equal(t, "calls", g.Edges[1].Metadata["kind"])
}

func TestParseJSON_EdgeList(t *testing.T) {
	g, err := ParseJSON([]byte(`[
		{"source": "a", "target": "b", "sourceLabel": "Apple"},
		{"source": "b", "target": "c"}
	]`))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, nodeIDs(g))
	assert.Equal(t, "Apple", labels(g)["a"])
	assert.Equal(t, []string{"edge-0", "edge-1"}, edgeIDs(g))
	assert.Nil(t, g.Edges[0].Metadata)
}

func TestParseJSON_MaterializesDanglingEndpoints(t *testing.T) {
	g, err := ParseJSON([]byte(`{"nodes":[{"id":"a"}],"edges":[{"source":"a","target":"ghost"}]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "ghost"}, nodeIDs(g))
}

func TestParseJSON_Errors(t *testing.T) {
	cases := map[string]string{
		"malformed":      `{"nodes": [`,
		"no arrays":      `{"vertices": []}`,
		"scalar":         `42`,
		"edge no target": `{"nodes": [], "edges": [{"source": "a"}]}`,
		"bad weight":     `{"nodes": [], "edges": [{"source": "a", "target": "b", "weight": "heavy"}]}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseJSON([]byte(in))
			assert.True(t, schema.IsCode(err, schema.ErrCodeParse), "got %v", err)
		})
	}
}

func TestJSONRoundTrip(t *testing.T) {
	src := []byte(`{"nodes":[{"id":"A","label":"Alpha","type":"svc","tags":["x","y"]},{"id":"B","label":"Beta"}],
		"edges":[{"id":"ab","source":"A","target":"B"}]}`)
	g, err := ParseJSON(src)
	require.NoError(t, err)

	out, err := Encode(g, FormatJSON)
	require.NoError(t, err)
	back, err := Parse(out, FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, nodeIDs(g), nodeIDs(back))
	assert.Equal(t, edgeIDs(g), edgeIDs(back))
	assert.Equal(t, labels(g), labels(back))
	assert.Equal(t, "svc", back.Nodes[0].Type)
	assert.Equal(t, []string{"x", "y"}, back.Nodes[0].Tags())
}

func TestParseDOT(t *testing.T) {
	src := `// service map
digraph Services {
  # comment
  api [label="API Gateway", type=service, tags="edge,public"];
  db [label={Primary DB}];

  api -> db [label="reads", weight=3];
  api -> cache;
  worker -- db
}`
	g, err := ParseDOT([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, "Services", g.Name)
	assert.Equal(t, []string{"api", "db", "cache", "worker"}, nodeIDs(g))
	assert.Equal(t, "API Gateway", g.Nodes[0].Label)
	assert.Equal(t, "service", g.Nodes[0].Type)
	assert.Equal(t, []string{"edge", "public"}, g.Nodes[0].Tags())
	assert.Equal(t, "Primary DB", g.Nodes[1].Label)
	assert.Equal(t, "cache", g.Nodes[2].Label)

	assert.Equal(t, []string{"api-db", "api-cache", "worker-db"}, edgeIDs(g))
	assert.Equal(t, 3.0, g.Edges[0].Weight)
	assert.Equal(t, "reads", g.Edges[0].Metadata["label"])
}

func TestParseDOT_DeclarationAfterEdgeKeepsOrder(t *testing.T) {
	g, err := ParseDOT([]byte("digraph G {\n a -> b;\n b [label=\"Bee\"];\n}"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, nodeIDs(g))
	assert.Equal(t, "Bee", g.Nodes[1].Label)
}

func TestParseDOT_DuplicateEdgesGetDistinctIDs(t *testing.T) {
	g, err := ParseDOT([]byte("digraph G {\n a -> b;\n a -> b;\n}"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a-b", "a-b-2"}, edgeIDs(g))
}

func TestParseDOT_SkipsDefaults(t *testing.T) {
	g, err := ParseDOT([]byte("digraph G {\n node [shape=box];\n rankdir=LR;\n a;\n}"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, nodeIDs(g))
}

func TestParseDOT_NoHeader(t *testing.T) {
	_, err := ParseDOT([]byte("a -> b"))
	assert.True(t, schema.IsCode(err, schema.ErrCodeParse))
}

func TestDOTRoundTrip(t *testing.T) {
	g := &schema.Graph{
		Name: "deps",
		Nodes: []*schema.Node{
			{ID: "A", Label: "Alpha", Type: "lib", Metadata: map[string]any{"owner": "core", "tags": []string{"x"}}},
			{ID: "node-1", Label: "Beta Node"},
			{ID: "C", Label: "C"},
		},
		Edges: []*schema.Edge{
			{ID: "A-node-1", Source: "A", Target: "node-1", Weight: 1},
			{ID: "custom", Source: "node-1", Target: "C", Weight: 2, Metadata: map[string]any{"label": "uses"}},
		},
	}

	out := EncodeDOT(g)
	back, err := ParseDOT([]byte(out))
	require.NoError(t, err, out)

	assert.Equal(t, "deps", back.Name)
	assert.Equal(t, nodeIDs(g), nodeIDs(back))
	assert.Equal(t, edgeIDs(g), edgeIDs(back))
	assert.Equal(t, labels(g), labels(back))
	assert.Equal(t, "lib", back.Nodes[0].Type)
	assert.Equal(t, "core", back.Nodes[0].Metadata["owner"])
	assert.Equal(t, []string{"x"}, back.Nodes[0].Tags())
	assert.Equal(t, 2.0, back.Edges[1].Weight)
	assert.Equal(t, "uses", back.Edges[1].Metadata["label"])
}

func TestParseCSV_Header(t *testing.T) {
	g, err := ParseCSV([]byte("source,target,weight,relation\na,b,2,owns\nb,c,,uses\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, nodeIDs(g))
	assert.Equal(t, []string{"edge-0", "edge-1"}, edgeIDs(g))
	assert.Equal(t, 2.0, g.Edges[0].Weight)
	assert.Equal(t, 1.0, g.Edges[1].Weight)
	assert.Equal(t, "owns", g.Edges[0].Metadata["relation"])
}

func TestParseCSV_Headerless(t *testing.T) {
	g, err := ParseCSV([]byte("# comment\nx, y, 0.5, xy\ny,z\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "y", "z"}, nodeIDs(g))
	assert.Equal(t, []string{"xy", "edge-1"}, edgeIDs(g))
	assert.Equal(t, 0.5, g.Edges[0].Weight)
}

func TestParseCSV_Errors(t *testing.T) {
	for name, in := range map[string]string{
		"one column": "a\n",
		"bad weight": "a,b,heavy\n",
		"quote":      "\"a,b\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCSV([]byte(in))
			assert.True(t, schema.IsCode(err, schema.ErrCodeParse), "got %v", err)
		})
	}
}

func TestEncode_UnsupportedFormat(t *testing.T) {
	_, err := Encode(&schema.Graph{}, FormatCSV)
	assert.True(t, schema.IsCode(err, schema.ErrCodeUnsupportedFormat))
}
