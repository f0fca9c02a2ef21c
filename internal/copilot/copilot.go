// Package copilot is the request orchestrator: it sequences entitlement
// resolution, quota checks, context minimization, prompt construction,
// model invocation, risk scoring, and audit/usage accounting, and shapes
// the response envelope.
package copilot

import (
	"encoding/json"

	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/entitlement"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/graph"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/llm"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/risk"
)

// MaxUserMessageLen bounds the instruction length accepted from clients,
// counted in characters rather than bytes.
const MaxUserMessageLen = 4000

// ClientContext carries optional client-side hints and diagnostics.
type ClientContext struct {
	Locale        string             `json:"locale,omitempty"`
	Theme         string             `json:"theme,omitempty"`
	DecimalPlaces int                `json:"decimalPlaces,omitempty"`
	Diagnostics   []graph.Diagnostic `json:"diagnostics,omitempty"`
}

// Request is one copilot request after authentication. UserID comes from
// the verified token, never from the body.
type Request struct {
	UserID          string             `json:"-"`
	Mode            entitlement.Mode   `json:"mode"`
	Scope           entitlement.Scope  `json:"scope"`
	Task            entitlement.Task   `json:"task,omitempty"`
	UserMessage     string             `json:"userMessage"`
	ProjectID       string             `json:"projectId"`
	CanvasID        string             `json:"canvasId"`
	OrgID           string             `json:"orgId,omitempty"`
	SelectedNodeIDs []string           `json:"selectedNodeIds,omitempty"`
	ClientContext   ClientContext      `json:"clientContext,omitempty"`
}

// Usage is the summed token usage of a request, including the repair
// round-trip when one occurred.
type Usage struct {
	TokensIn  int `json:"tokensIn"`
	TokensOut int `json:"tokensOut"`
}

// Response is the success envelope returned to the client. The
// confirmation flag is advisory: the patch executor in the client is the
// enforcement point.
type Response struct {
	OK                   bool              `json:"ok"`
	Task                 entitlement.Task  `json:"task"`
	Mode                 entitlement.Mode  `json:"mode"`
	Message              string            `json:"message"`
	Assumptions          []string          `json:"assumptions"`
	Risk                 risk.Assessment   `json:"risk"`
	PatchOps             []llm.PatchOp     `json:"patchOps"`
	RequiresConfirmation bool              `json:"requiresConfirmation"`
	Usage                Usage             `json:"usage"`
	TokensRemaining      int64             `json:"tokensRemaining"`
	Explanation          string            `json:"explanation,omitempty"`
	Template             json.RawMessage   `json:"template,omitempty"`
	Theme                json.RawMessage   `json:"theme,omitempty"`
}
