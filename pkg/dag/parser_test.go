package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrun-io/flowrun/pkg/models"
)

func node(id, nodeType string) *models.GraphNode {
	return &models.GraphNode{ID: id, Type: nodeType}
}

func edge(source, target string) *models.GraphEdge {
	return &models.GraphEdge{Source: source, Target: target}
}

func typedEdge(source, target string, edgeType models.EdgeType) *models.GraphEdge {
	return &models.GraphEdge{Source: source, Target: target, Type: edgeType}
}

func TestParseLinearGraph(t *testing.T) {
	def := &models.GraphDefinition{
		Nodes: []*models.GraphNode{node("a", "trigger"), node("b", "action"), node("c", "action")},
		Edges: []*models.GraphEdge{edge("a", "b"), edge("b", "c")},
	}

	result := Parse(def)

	require.True(t, result.Valid, "errors: %v", result.Errors)
	assert.Equal(t, []string{"a"}, result.EntryPoints)
	assert.Equal(t, []string{"c"}, result.ExitPoints)
	assert.Equal(t, []string{"a", "b", "c"}, result.ExecutionOrder)
	assert.Equal(t, []string{"b"}, result.Dependencies["c"])
	assert.Empty(t, result.Dependencies["a"])
}

func TestParseDiamondTieBreaksByDeclarationOrder(t *testing.T) {
	def := &models.GraphDefinition{
		Nodes: []*models.GraphNode{
			node("start", "trigger"),
			node("left", "action"),
			node("right", "action"),
			node("join", "action"),
		},
		Edges: []*models.GraphEdge{
			edge("start", "left"),
			edge("start", "right"),
			edge("left", "join"),
			edge("right", "join"),
		},
	}

	// Both branches become ready together; declaration order decides.
	for range 10 {
		result := Parse(def)
		require.True(t, result.Valid)
		assert.Equal(t, []string{"start", "left", "right", "join"}, result.ExecutionOrder)
	}
}

func TestParseDetectsCycle(t *testing.T) {
	def := &models.GraphDefinition{
		Nodes: []*models.GraphNode{node("a", "action"), node("b", "action"), node("c", "action")},
		Edges: []*models.GraphEdge{edge("a", "b"), edge("b", "c"), edge("c", "a")},
	}

	result := Parse(def)

	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "graph has no entry points (all nodes have incoming edges, possibly a cycle)")
	assert.Contains(t, result.Errors, "cycle detected: graph must be a directed acyclic graph")
	assert.Empty(t, result.ExecutionOrder)
}

func TestParseDetectsSelfLoop(t *testing.T) {
	def := &models.GraphDefinition{
		Nodes: []*models.GraphNode{node("a", "action")},
		Edges: []*models.GraphEdge{edge("a", "a")},
	}

	result := Parse(def)

	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "self-loop detected on node: a")
}

func TestParseDetectsDanglingEdges(t *testing.T) {
	def := &models.GraphDefinition{
		Nodes: []*models.GraphNode{node("a", "action")},
		Edges: []*models.GraphEdge{edge("a", "ghost"), edge("phantom", "a")},
	}

	result := Parse(def)

	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "edge references non-existent target node: ghost")
	assert.Contains(t, result.Errors, "edge references non-existent source node: phantom")
}

func TestParseDetectsDuplicateNodeIDs(t *testing.T) {
	def := &models.GraphDefinition{
		Nodes: []*models.GraphNode{node("a", "action"), node("a", "action")},
	}

	result := Parse(def)

	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "duplicate node id: a")
}

func TestParseRejectsEmptyGraph(t *testing.T) {
	result := Parse(&models.GraphDefinition{})

	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "graph has no nodes")

	result = Parse(nil)

	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "graph definition is nil")
}

func TestParseWarnsOnUnknownNodeType(t *testing.T) {
	def := &models.GraphDefinition{
		Nodes: []*models.GraphNode{node("a", "somethingCustom"), node("b", "")},
	}

	result := Parse(def)

	assert.True(t, result.Valid)
	assert.Contains(t, result.Warnings, "node a has unknown type: somethingCustom")
	assert.Contains(t, result.Warnings, "node b has no type specified")
}

func TestParseParallelEdgesShareOneDependency(t *testing.T) {
	def := &models.GraphDefinition{
		Nodes: []*models.GraphNode{node("a", "action"), node("b", "action")},
		Edges: []*models.GraphEdge{
			edge("a", "b"),
			typedEdge("a", "b", models.EdgeTypeError),
		},
	}

	result := Parse(def)

	require.True(t, result.Valid)
	assert.Equal(t, []string{"a"}, result.Dependencies["b"])
	assert.Equal(t, []string{"a", "b"}, result.ExecutionOrder)
}

func TestParseMultipleEntryAndExitPoints(t *testing.T) {
	def := &models.GraphDefinition{
		Nodes: []*models.GraphNode{
			node("t1", "trigger"),
			node("t2", "trigger"),
			node("merge", "action"),
			node("out1", "action"),
			node("out2", "action"),
		},
		Edges: []*models.GraphEdge{
			edge("t1", "merge"),
			edge("t2", "merge"),
			edge("merge", "out1"),
			edge("merge", "out2"),
		},
	}

	result := Parse(def)

	require.True(t, result.Valid)
	assert.Equal(t, []string{"t1", "t2"}, result.EntryPoints)
	assert.Equal(t, []string{"out1", "out2"}, result.ExitPoints)
}

func TestOutgoingEdgesByType(t *testing.T) {
	def := &models.GraphDefinition{
		Nodes: []*models.GraphNode{
			node("src", "action"), node("ok", "action"),
			node("rescue", "action"), node("audit", "action"),
		},
		Edges: []*models.GraphEdge{
			edge("src", "ok"),
			typedEdge("src", "rescue", models.EdgeTypeError),
			typedEdge("src", "audit", models.EdgeTypeAlways),
			edge("ok", "audit"),
		},
	}

	set := OutgoingEdgesByType(def, "src")

	require.Len(t, set.Success, 1)
	require.Len(t, set.Error, 1)
	require.Len(t, set.Always, 1)
	assert.Equal(t, "ok", set.Success[0].Target)
	assert.Equal(t, "rescue", set.Error[0].Target)
	assert.True(t, set.HasErrorPath())
	assert.Equal(t, []string{"rescue", "audit"}, set.ErrorTargets())

	okSet := OutgoingEdgesByType(def, "ok")
	assert.False(t, okSet.HasErrorPath())
	assert.Empty(t, okSet.ErrorTargets())
}

func TestHasErrorPathWithAlwaysEdgeOnly(t *testing.T) {
	def := &models.GraphDefinition{
		Nodes: []*models.GraphNode{node("a", "action"), node("b", "action")},
		Edges: []*models.GraphEdge{typedEdge("a", "b", models.EdgeTypeAlways)},
	}

	set := OutgoingEdgesByType(def, "a")

	assert.True(t, set.HasErrorPath())
	assert.Equal(t, []string{"b"}, set.ErrorTargets())
}

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantValid bool
	}{
		{
			name:      "valid definition",
			raw:       `{"nodes":[{"id":"a","type":"trigger"}],"edges":[]}`,
			wantValid: true,
		},
		{
			name:      "missing nodes",
			raw:       `{"edges":[]}`,
			wantValid: false,
		},
		{
			name:      "node without type",
			raw:       `{"nodes":[{"id":"a"}]}`,
			wantValid: false,
		},
		{
			name:      "edge with bad type",
			raw:       `{"nodes":[{"id":"a","type":"trigger"}],"edges":[{"source":"a","target":"a","type":"maybe"}]}`,
			wantValid: false,
		},
		{
			name:      "not json",
			raw:       `{nodes:}`,
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := ValidateDocument([]byte(tt.raw))

			if tt.wantValid {
				assert.Empty(t, violations)
			} else {
				assert.NotEmpty(t, violations)
			}
		})
	}
}
