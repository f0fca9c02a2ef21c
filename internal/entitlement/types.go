// Package entitlement resolves what a verified user is allowed to do with
// the copilot: plan tier, organization membership, org AI policy, token
// limit, and the effective autonomy mode for a request.
package entitlement

// Plan is the billing tier of an account. free, past_due and canceled are
// not entitled to the copilot.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanTrialing   Plan = "trialing"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
	PlanPastDue    Plan = "past_due"
	PlanCanceled   Plan = "canceled"
)

// Mode is the autonomy level requested for applying proposed patches.
type Mode string

const (
	ModePlan   Mode = "plan"   // describe only, no mutation proposed for apply
	ModeEdit   Mode = "edit"   // propose, per-change confirmation by default
	ModeBypass Mode = "bypass" // propose for auto-apply where policy allows
)

// ValidMode reports whether m is one of the three known modes.
func ValidMode(m Mode) bool {
	return m == ModePlan || m == ModeEdit || m == ModeBypass
}

// Task identifies what the copilot is being asked to do.
type Task string

const (
	TaskChat             Task = "chat"
	TaskFixGraph         Task = "fix_graph"
	TaskExplainNode      Task = "explain_node"
	TaskGenerateTemplate Task = "generate_template"
	TaskGenerateTheme    Task = "generate_theme"
)

// ValidTask reports whether t is a known task.
func ValidTask(t Task) bool {
	switch t {
	case TaskChat, TaskFixGraph, TaskExplainNode, TaskGenerateTemplate, TaskGenerateTheme:
		return true
	}
	return false
}

// Scope selects how much of the graph is exposed to the model.
type Scope string

const (
	ScopeActiveCanvas Scope = "active_canvas"
	ScopeSelection    Scope = "selection"
)

// ValidScope reports whether s is a known scope.
func ValidScope(s Scope) bool {
	return s == ScopeActiveCanvas || s == ScopeSelection
}

// Account is the stored billing identity of a user.
type Account struct {
	UserID      string
	Plan        Plan
	IsDeveloper bool
	IsAdmin     bool
}

// OrgPolicy is the per-organization AI policy. A missing policy means the
// defaults: bypass disallowed, 1M tokens per seat per month, AI enabled,
// all modes allowed.
type OrgPolicy struct {
	OrgID                    string
	AllowBypass              bool
	MonthlyTokenLimitPerSeat int64
	AIEnabled                bool
	AllowedModes             []Mode // empty means all modes
}

// Per-plan monthly token limits.
const (
	ProMonthlyTokenLimit        int64 = 200_000
	DefaultOrgMonthlyTokenLimit int64 = 1_000_000
)

// Resolution is the outcome of entitlement resolution for one request.
type Resolution struct {
	TokenLimit    int64
	AIEnabled     bool
	AllowedModes  []Mode
	BypassAllowed bool   // enterprise policy permits bypass auto-apply
	OrgID         string // empty for non-org accounts
	EffectiveMode Mode   // requested mode after policy downgrades
}

// AllModes returns the full mode set, most permissive last.
func AllModes() []Mode {
	return []Mode{ModePlan, ModeEdit, ModeBypass}
}

func modeAllowed(allowed []Mode, m Mode) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == m {
			return true
		}
	}
	return false
}
