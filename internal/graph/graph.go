// Package graph holds the calculation-graph snapshot types, the snapshot
// source, and the context minimizer that renders a bounded textual summary
// for the model prompt.
package graph

import (
	"context"
	"encoding/json"
	"errors"
)

// Node is one block on a canvas.
type Node struct {
	ID        string          `json:"id"`
	BlockType string          `json:"blockType,omitempty"`
	Label     string          `json:"label,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
}

// Edge connects a source node's output to a target node's input handle.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Snapshot is the full node/edge set of a canvas at one point in time.
type Snapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Diagnostic is a client-supplied upstream evaluation diagnostic attached
// to the context so the model sees known problems.
type Diagnostic struct {
	Level   string   `json:"level"`
	Code    string   `json:"code"`
	Message string   `json:"message"`
	NodeIDs []string `json:"nodeIds,omitempty"`
}

// ErrSnapshotUnavailable is returned by a SnapshotSource when the canvas
// does not exist or is not readable by the user.
var ErrSnapshotUnavailable = errors.New("canvas snapshot unavailable")

// SnapshotSource fetches the current graph for a canvas owned by a user.
// The persistent graph store is an external collaborator; the SQLite
// implementation in this package is the local stand-in.
type SnapshotSource interface {
	Snapshot(ctx context.Context, userID, canvasID string) (*Snapshot, error)
}

// ParseSnapshot decodes a raw canvas document. Callers treat a failure as
// degraded context, never as a request failure.
func ParseSnapshot(raw []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
