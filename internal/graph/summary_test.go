package graph

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/entitlement"
)

func bigSnapshot(nodes, edges int) *Snapshot {
	snap := &Snapshot{}
	for i := 0; i < nodes; i++ {
		snap.Nodes = append(snap.Nodes, Node{ID: fmt.Sprintf("n%d", i), BlockType: "number"})
	}
	for i := 0; i < edges; i++ {
		snap.Edges = append(snap.Edges, Edge{
			ID:     fmt.Sprintf("e%d", i),
			Source: fmt.Sprintf("n%d", i),
			Target: fmt.Sprintf("n%d", i+1),
		})
	}
	return snap
}

func TestSummarizeTruncatesNodes(t *testing.T) {
	summary := Summarize(bigSnapshot(120, 0), entitlement.ScopeActiveCanvas, nil, nil)

	var nodeLines int
	for _, line := range strings.Split(summary, "\n") {
		if strings.HasSuffix(line, "number") {
			nodeLines++
		}
	}
	assert.Equal(t, 50, nodeLines)
	assert.Contains(t, summary, "(showing 50 of 120)")
	assert.Contains(t, summary, "Graph: 120 nodes, 0 edges")
}

func TestSummarizeTruncatesEdges(t *testing.T) {
	summary := Summarize(bigSnapshot(10, 120), entitlement.ScopeActiveCanvas, nil, nil)

	var edgeLines int
	for _, line := range strings.Split(summary, "\n") {
		if strings.Contains(line, " -> ") {
			edgeLines++
		}
	}
	assert.Equal(t, 50, edgeLines)
	assert.Contains(t, summary, "(showing 50 of 120)")
	assert.Contains(t, summary, "Graph: 10 nodes, 120 edges")
	// the node list is under its own cap and carries no marker
	assert.NotContains(t, summary, "of 10)")
}

func TestSummarizeNoMarkerWhenUnderCap(t *testing.T) {
	summary := Summarize(bigSnapshot(10, 5), entitlement.ScopeActiveCanvas, nil, nil)
	assert.NotContains(t, summary, "(showing")
}

func TestSummarizeSelectionOneHopClosure(t *testing.T) {
	snap := &Snapshot{
		Nodes: []Node{
			{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "far"},
		},
		Edges: []Edge{
			{ID: "e1", Source: "a", Target: "c"},
			{ID: "e2", Source: "far", Target: "far"},
		},
	}
	summary := Summarize(snap, entitlement.ScopeSelection, []string{"a", "b"}, nil)

	// a and b selected; c pulled in via e1; far excluded
	assert.Contains(t, summary, "Graph: 3 nodes, 1 edges")
	assert.Contains(t, summary, "a:")
	assert.Contains(t, summary, "b:")
	assert.Contains(t, summary, "c:")
	assert.NotContains(t, summary, "far")
}

func TestSummarizeEmptySelectionUsesFullGraph(t *testing.T) {
	summary := Summarize(bigSnapshot(4, 2), entitlement.ScopeSelection, nil, nil)
	assert.Contains(t, summary, "Graph: 4 nodes, 2 edges")
}

func TestSummarizeLineFormats(t *testing.T) {
	snap := &Snapshot{
		Nodes: []Node{
			{ID: "n1", BlockType: "number", Label: "Rate", Value: []byte(`0.05`)},
			{ID: "n2"},
		},
		Edges: []Edge{
			{ID: "e1", Source: "n1", Target: "n2", TargetHandle: "rate"},
			{ID: "e2", Source: "n2", Target: "n1"},
		},
	}
	summary := Summarize(snap, entitlement.ScopeActiveCanvas, nil, nil)
	assert.Contains(t, summary, `n1: number "Rate" val=0.05`)
	assert.Contains(t, summary, "n1 -> n2:rate")
	// missing handle defaults to "value"
	assert.Contains(t, summary, "n2 -> n1:value")
}

func TestSummarizeDiagnostics(t *testing.T) {
	var diags []Diagnostic
	for i := 0; i < 25; i++ {
		diags = append(diags, Diagnostic{
			Level:   "error",
			Code:    fmt.Sprintf("E%03d", i),
			Message: "division by zero",
			NodeIDs: []string{"n1", "n2"},
		})
	}
	summary := Summarize(bigSnapshot(2, 0), entitlement.ScopeActiveCanvas, nil, diags)
	assert.Contains(t, summary, "[error] E000: division by zero (nodes: n1,n2)")
	assert.Contains(t, summary, "E019")
	// capped at 20
	assert.NotContains(t, summary, "E020")
}

func TestSummarizeNilSnapshot(t *testing.T) {
	assert.Equal(t, ContextUnavailable, Summarize(nil, entitlement.ScopeActiveCanvas, nil, nil))
}

func TestParseSnapshotMalformed(t *testing.T) {
	_, err := ParseSnapshot([]byte(`{"nodes": "oops`))
	require.Error(t, err)
}
