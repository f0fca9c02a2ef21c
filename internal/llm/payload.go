// Package llm contains the model provider abstraction, the OpenAI JSON-mode
// implementation, the copilot response contract, and the single-repair
// invocation protocol.
package llm

import (
	"encoding/json"

	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/graph"
)

// Patch op discriminators. The prompt templates present this closed
// vocabulary to the model; anything else is dropped during validation.
const (
	OpAddNode         = "addNode"
	OpAddEdge         = "addEdge"
	OpUpdateNodeData  = "updateNodeData"
	OpRemoveNode      = "removeNode"
	OpRemoveEdge      = "removeEdge"
	OpSetInputBinding = "setInputBinding"
	OpCreateVariable  = "createVariable"
	OpUpdateVariable  = "updateVariable"
)

// AINodeIDPrefix is the required prefix for model-proposed node and edge
// ids, keeping them distinguishable from user-authored ids at apply time.
const AINodeIDPrefix = "ai-"

// PatchOp is one proposed graph mutation: a tagged union discriminated by
// Op. Only the fields relevant to the variant are populated:
//
//	addNode          node
//	addEdge          edge
//	updateNodeData   nodeId, data
//	removeNode       nodeId
//	removeEdge       edgeId
//	setInputBinding  nodeId, handle, variableId
//	createVariable   name, value
//	updateVariable   variableId, value
type PatchOp struct {
	Op         string          `json:"op"`
	Node       *graph.Node     `json:"node,omitempty"`
	Edge       *graph.Edge     `json:"edge,omitempty"`
	NodeID     string          `json:"nodeId,omitempty"`
	EdgeID     string          `json:"edgeId,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Handle     string          `json:"handle,omitempty"`
	VariableID string          `json:"variableId,omitempty"`
	Name       string          `json:"name,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
}

// KnownOp reports whether op is part of the permitted vocabulary.
func KnownOp(op string) bool {
	switch op {
	case OpAddNode, OpAddEdge, OpUpdateNodeData, OpRemoveNode,
		OpRemoveEdge, OpSetInputBinding, OpCreateVariable, OpUpdateVariable:
		return true
	}
	return false
}

// RiskReport is the model's self-reported risk. It is carried through for
// display but never trusted as the gate: the risk package re-derives the
// authoritative assessment from the ops.
type RiskReport struct {
	Level   string   `json:"level"`
	Reasons []string `json:"reasons"`
}

// Patch wraps the proposed op list.
type Patch struct {
	Ops []PatchOp `json:"ops"`
}

// ResponsePayload is the contract the model's JSON output must satisfy
// after validation and repair.
type ResponsePayload struct {
	Mode        string          `json:"mode,omitempty"`
	Message     string          `json:"message"`
	Assumptions []string        `json:"assumptions"`
	Risk        RiskReport      `json:"risk"`
	Patch       Patch           `json:"patch"`
	Explanation string          `json:"explanation,omitempty"`
	Template    json.RawMessage `json:"template,omitempty"`
	Theme       json.RawMessage `json:"theme,omitempty"`
}
