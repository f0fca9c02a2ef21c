package graph

import (
	"fmt"
	"strings"

	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/entitlement"
)

// Prompt-size bounds. Node and edge lists are truncated independently;
// diagnostics have their own cap.
const (
	MaxSummaryNodes       = 50
	MaxSummaryEdges       = 50
	MaxSummaryDiagnostics = 20
)

// ContextUnavailable is the summary used when the snapshot could not be
// fetched or parsed. The request still proceeds; the model is told
// explicitly that it has no graph context.
const ContextUnavailable = "(context unavailable)"

// Summarize renders a bounded textual summary of the snapshot for the
// model prompt. With ScopeSelection and a non-empty selection it first
// narrows the graph to the one-hop closure of the selection: any edge
// touching a selected node pulls in its other endpoint. Truncated lists
// always carry an explicit "(showing X of Y)" marker so the model is never
// left to infer completeness.
func Summarize(snap *Snapshot, scope entitlement.Scope, selectedNodeIDs []string, diagnostics []Diagnostic) string {
	if snap == nil {
		return ContextUnavailable
	}

	nodes, edges := snap.Nodes, snap.Edges
	if scope == entitlement.ScopeSelection && len(selectedNodeIDs) > 0 {
		nodes, edges = selectionClosure(snap, selectedNodeIDs)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Graph: %d nodes, %d edges\n", len(nodes), len(edges))

	b.WriteString("Nodes:\n")
	shown := len(nodes)
	if shown > MaxSummaryNodes {
		shown = MaxSummaryNodes
	}
	for _, n := range nodes[:shown] {
		b.WriteString(nodeLine(n))
		b.WriteByte('\n')
	}
	if len(nodes) > MaxSummaryNodes {
		fmt.Fprintf(&b, "(showing %d of %d)\n", MaxSummaryNodes, len(nodes))
	}

	b.WriteString("Edges:\n")
	shown = len(edges)
	if shown > MaxSummaryEdges {
		shown = MaxSummaryEdges
	}
	for _, e := range edges[:shown] {
		b.WriteString(edgeLine(e))
		b.WriteByte('\n')
	}
	if len(edges) > MaxSummaryEdges {
		fmt.Fprintf(&b, "(showing %d of %d)\n", MaxSummaryEdges, len(edges))
	}

	if len(diagnostics) > 0 {
		b.WriteString("Diagnostics:\n")
		capped := diagnostics
		if len(capped) > MaxSummaryDiagnostics {
			capped = capped[:MaxSummaryDiagnostics]
		}
		for _, d := range capped {
			b.WriteString(diagnosticLine(d))
			b.WriteByte('\n')
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// selectionClosure filters the snapshot to the selected nodes plus every
// node one edge away in either direction, with the edges connecting them.
// Original ordering is preserved.
func selectionClosure(snap *Snapshot, selectedNodeIDs []string) ([]Node, []Edge) {
	selected := make(map[string]bool, len(selectedNodeIDs))
	for _, id := range selectedNodeIDs {
		selected[id] = true
	}

	keep := make(map[string]bool, len(selectedNodeIDs))
	for id := range selected {
		keep[id] = true
	}
	var edges []Edge
	for _, e := range snap.Edges {
		if selected[e.Source] || selected[e.Target] {
			keep[e.Source] = true
			keep[e.Target] = true
			edges = append(edges, e)
		}
	}

	var nodes []Node
	for _, n := range snap.Nodes {
		if keep[n.ID] {
			nodes = append(nodes, n)
		}
	}
	return nodes, edges
}

// nodeLine renders `id: blockType "label" val=value`, omitting absent fields.
func nodeLine(n Node) string {
	parts := []string{n.ID + ":"}
	if n.BlockType != "" {
		parts = append(parts, n.BlockType)
	}
	if n.Label != "" {
		parts = append(parts, fmt.Sprintf("%q", n.Label))
	}
	if len(n.Value) > 0 && string(n.Value) != "null" {
		parts = append(parts, "val="+string(n.Value))
	}
	return strings.Join(parts, " ")
}

// edgeLine renders `source -> target:handle`, defaulting the handle to "value".
func edgeLine(e Edge) string {
	handle := e.TargetHandle
	if handle == "" {
		handle = "value"
	}
	return fmt.Sprintf("%s -> %s:%s", e.Source, e.Target, handle)
}

// diagnosticLine renders `[level] code: message (nodes: id1,id2)`.
func diagnosticLine(d Diagnostic) string {
	line := fmt.Sprintf("[%s] %s: %s", d.Level, d.Code, d.Message)
	if len(d.NodeIDs) > 0 {
		line += fmt.Sprintf(" (nodes: %s)", strings.Join(d.NodeIDs, ","))
	}
	return line
}
