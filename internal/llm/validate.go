package llm

import (
	"encoding/json"
)

// Validate parses and repairs raw model output against the response
// contract. It never panics and never returns a partially-invalid payload:
// the contract's one hard requirement is that message is a string — on any
// other structural deviation the offending field is coerced to a safe
// default instead of rejecting, so cosmetic drift does not burn the single
// repair round-trip.
//
// Coercions, in order:
//   - assumptions: [] unless an array of strings
//   - risk: {level: "low", reasons: []} unless well-formed; an unknown
//     level coerces to "low", malformed reasons to []
//   - patch: {ops: []} unless well-formed; undecodable or unknown-op
//     entries are dropped
//
// Validate is idempotent: re-validating a repaired payload's JSON yields
// the same payload.
func Validate(raw []byte) (*ResponsePayload, bool) {
	var loose struct {
		Mode        json.RawMessage `json:"mode"`
		Message     json.RawMessage `json:"message"`
		Assumptions json.RawMessage `json:"assumptions"`
		Risk        json.RawMessage `json:"risk"`
		Patch       json.RawMessage `json:"patch"`
		Explanation json.RawMessage `json:"explanation"`
		Template    json.RawMessage `json:"template"`
		Theme       json.RawMessage `json:"theme"`
	}
	if err := json.Unmarshal(raw, &loose); err != nil {
		return nil, false
	}

	p := &ResponsePayload{
		Assumptions: []string{},
		Risk:        RiskReport{Level: RiskLevelLow, Reasons: []string{}},
		Patch:       Patch{Ops: []PatchOp{}},
	}

	// message is the one hard requirement; JSON null unmarshals into a
	// string without error, so it needs an explicit reject
	if loose.Message == nil || string(loose.Message) == "null" {
		return nil, false
	}
	if err := json.Unmarshal(loose.Message, &p.Message); err != nil {
		return nil, false
	}

	var mode string
	if json.Unmarshal(loose.Mode, &mode) == nil {
		p.Mode = mode
	}

	var assumptions []string
	if json.Unmarshal(loose.Assumptions, &assumptions) == nil && assumptions != nil {
		p.Assumptions = assumptions
	}

	var risk struct {
		Level   json.RawMessage `json:"level"`
		Reasons json.RawMessage `json:"reasons"`
	}
	if json.Unmarshal(loose.Risk, &risk) == nil {
		var level string
		if json.Unmarshal(risk.Level, &level) == nil && ValidRiskLevel(level) {
			p.Risk.Level = level
		}
		var reasons []string
		if json.Unmarshal(risk.Reasons, &reasons) == nil && reasons != nil {
			p.Risk.Reasons = reasons
		}
	}

	var patch struct {
		Ops json.RawMessage `json:"ops"`
	}
	if json.Unmarshal(loose.Patch, &patch) == nil {
		var rawOps []json.RawMessage
		if json.Unmarshal(patch.Ops, &rawOps) == nil {
			for _, rawOp := range rawOps {
				var op PatchOp
				if json.Unmarshal(rawOp, &op) == nil && KnownOp(op.Op) {
					p.Patch.Ops = append(p.Patch.Ops, op)
				}
			}
		}
	}

	var explanation string
	if json.Unmarshal(loose.Explanation, &explanation) == nil {
		p.Explanation = explanation
	}
	if validJSON(loose.Template) {
		p.Template = loose.Template
	}
	if validJSON(loose.Theme) {
		p.Theme = loose.Theme
	}

	return p, true
}

// Risk levels shared by the model contract and the deterministic scorer.
const (
	RiskLevelLow    = "low"
	RiskLevelMedium = "medium"
	RiskLevelHigh   = "high"
)

// ValidRiskLevel reports whether level is one of the three enum values.
func ValidRiskLevel(level string) bool {
	return level == RiskLevelLow || level == RiskLevelMedium || level == RiskLevelHigh
}

func validJSON(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null" && json.Valid(raw)
}
