// Package risk derives a deterministic risk assessment from a proposed
// patch and decides whether the client should require user confirmation
// before applying it. Both functions are pure; the model's self-reported
// risk is never consulted.
package risk

import (
	"fmt"

	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/entitlement"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/llm"
)

// Level is a risk level: low, medium, or high.
type Level string

const (
	Low    Level = llm.RiskLevelLow
	Medium Level = llm.RiskLevelMedium
	High   Level = llm.RiskLevelHigh
)

// Assessment is a risk level with human-readable reasons.
type Assessment struct {
	Level   Level    `json:"level"`
	Reasons []string `json:"reasons"`
}

// Thresholds for the scoring rules.
const (
	maxRemovalsBeforeHigh = 5
	maxOpsBeforeMedium    = 10
	maxAddsBeforeMedium   = 20
)

// Assess scores a proposed op list. Escalation is monotone: a rule can
// raise the level but never lower it.
func Assess(ops []llm.PatchOp) Assessment {
	if len(ops) == 0 {
		return Assessment{Level: Low, Reasons: []string{}}
	}

	var removeNodes, removeEdges, addNodes, variableOps int
	for _, op := range ops {
		switch op.Op {
		case llm.OpRemoveNode:
			removeNodes++
		case llm.OpRemoveEdge:
			removeEdges++
		case llm.OpAddNode:
			addNodes++
		case llm.OpCreateVariable, llm.OpUpdateVariable:
			variableOps++
		}
	}

	a := Assessment{Level: Low, Reasons: []string{}}

	if removals := removeNodes + removeEdges; removals > maxRemovalsBeforeHigh {
		a.escalate(High, fmt.Sprintf("Removes %d nodes/edges", removals))
	}
	if removeNodes > 0 && a.Level != High {
		a.escalate(Medium, fmt.Sprintf("Removes %d node(s)", removeNodes))
	}
	if len(ops) > maxOpsBeforeMedium && a.Level == Low {
		a.escalate(Medium, fmt.Sprintf("%d total operations", len(ops)))
	}
	if addNodes > maxAddsBeforeMedium && a.Level == Low {
		a.escalate(Medium, fmt.Sprintf("Adds %d nodes", addNodes))
	}
	if variableOps > 0 && a.Level == Low {
		a.escalate(Medium, fmt.Sprintf("%d variable mutation(s)", variableOps))
	}

	if len(a.Reasons) == 0 {
		a.Reasons = append(a.Reasons, fmt.Sprintf("%d operation(s)", len(ops)))
	}
	return a
}

// escalate raises the level to at least target and records the reason.
// The level never decreases within one evaluation.
func (a *Assessment) escalate(target Level, reason string) {
	if rank(target) > rank(a.Level) {
		a.Level = target
	}
	a.Reasons = append(a.Reasons, reason)
}

func rank(l Level) int {
	switch l {
	case High:
		return 2
	case Medium:
		return 1
	default:
		return 0
	}
}

// RequiresConfirmation decides whether the client should ask the user
// before applying the patch. Advisory only: the patch executor is the
// enforcement point and must treat this as a recommendation, not a
// capability grant.
func RequiresConfirmation(level Level, mode entitlement.Mode, bypassAllowed bool) bool {
	if level == High {
		return true
	}
	if level == Medium {
		if mode == entitlement.ModeEdit {
			return true
		}
		if mode == entitlement.ModeBypass && !bypassAllowed {
			return true
		}
	}
	return false
}
