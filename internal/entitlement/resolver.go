package entitlement

import (
	"context"
	"errors"
	"fmt"
)

// Domain errors. The HTTP layer maps these to status codes and machine
// readable error codes.
var (
	ErrNotEntitled  = errors.New("plan is not entitled to the copilot")
	ErrAIDisabled   = errors.New("AI features disabled by organization policy")
	ErrModeBlocked  = errors.New("no permitted mode under organization policy")
	ErrOrgAmbiguous = errors.New("user belongs to multiple organizations; orgId is required")
)

// Store is the entitlement read interface. Implementations: the SQLite
// store in this package, and test fakes.
type Store interface {
	// Account returns the billing account for a user, or an error if the
	// user has no account row.
	Account(ctx context.Context, userID string) (*Account, error)
	// Memberships returns the org ids the user belongs to, in stable order.
	Memberships(ctx context.Context, userID string) ([]string, error)
	// Policy returns the org's AI policy, or nil when none is configured.
	Policy(ctx context.Context, orgID string) (*OrgPolicy, error)
}

// Resolver resolves per-request entitlements from the store.
type Resolver struct {
	store Store

	// internalElevation treats developer/admin accounts as enterprise.
	// Off by default: it is a trust-boundary shortcut for internal testing
	// and must be enabled explicitly by the deployment that wants it.
	internalElevation bool
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithInternalElevation enables treating developer/admin flagged accounts
// as enterprise regardless of stored plan.
func WithInternalElevation(enabled bool) ResolverOption {
	return func(r *Resolver) { r.internalElevation = enabled }
}

// NewResolver creates a Resolver backed by the given store.
func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve determines the token limit, allowed modes, org, and effective mode
// for a request. requestedOrgID disambiguates multi-org membership; it may
// be empty for single-org or non-org users.
//
// Mode handling: a bypass request from a non-enterprise plan, or from an
// enterprise org whose policy disallows bypass, is silently downgraded to
// edit. A requested mode the org policy blocks is downgraded to the most
// permissive allowed mode (edit, then plan); if neither is allowed the
// request fails with ErrModeBlocked.
func (r *Resolver) Resolve(ctx context.Context, userID string, requested Mode, requestedOrgID string) (*Resolution, error) {
	acct, err := r.store.Account(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading account: %w", err)
	}

	plan := acct.Plan
	if r.internalElevation && (acct.IsDeveloper || acct.IsAdmin) {
		plan = PlanEnterprise
	}

	switch plan {
	case PlanFree, PlanPastDue, PlanCanceled:
		return nil, ErrNotEntitled
	case PlanEnterprise:
		return r.resolveEnterprise(ctx, userID, requested, requestedOrgID)
	case PlanPro, PlanTrialing:
		res := &Resolution{
			TokenLimit:   ProMonthlyTokenLimit,
			AIEnabled:    true,
			AllowedModes: AllModes(),
		}
		res.EffectiveMode = effectiveMode(requested, res.AllowedModes, false)
		if res.EffectiveMode == "" {
			return nil, ErrModeBlocked
		}
		return res, nil
	default:
		return nil, fmt.Errorf("unknown plan %q: %w", plan, ErrNotEntitled)
	}
}

func (r *Resolver) resolveEnterprise(ctx context.Context, userID string, requested Mode, requestedOrgID string) (*Resolution, error) {
	orgs, err := r.store.Memberships(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading memberships: %w", err)
	}

	var orgID string
	switch {
	case requestedOrgID != "":
		for _, id := range orgs {
			if id == requestedOrgID {
				orgID = id
				break
			}
		}
		if orgID == "" {
			return nil, ErrNotEntitled
		}
	case len(orgs) == 1:
		orgID = orgs[0]
	case len(orgs) > 1:
		return nil, ErrOrgAmbiguous
	}

	pol := defaultPolicy(orgID)
	if orgID != "" {
		stored, err := r.store.Policy(ctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("loading org policy: %w", err)
		}
		if stored != nil {
			pol = stored
		}
	}

	if !pol.AIEnabled {
		return nil, ErrAIDisabled
	}

	allowed := pol.AllowedModes
	if len(allowed) == 0 {
		allowed = AllModes()
	}
	res := &Resolution{
		TokenLimit:    pol.MonthlyTokenLimitPerSeat,
		AIEnabled:     true,
		AllowedModes:  allowed,
		BypassAllowed: pol.AllowBypass,
		OrgID:         orgID,
	}
	if res.TokenLimit <= 0 {
		res.TokenLimit = DefaultOrgMonthlyTokenLimit
	}
	res.EffectiveMode = effectiveMode(requested, allowed, pol.AllowBypass)
	if res.EffectiveMode == "" {
		return nil, ErrModeBlocked
	}
	return res, nil
}

func defaultPolicy(orgID string) *OrgPolicy {
	return &OrgPolicy{
		OrgID:                    orgID,
		AllowBypass:              false,
		MonthlyTokenLimitPerSeat: DefaultOrgMonthlyTokenLimit,
		AIEnabled:                true,
	}
}

// effectiveMode applies the downgrade rules and returns "" when no mode is
// permitted. bypassAllowed reflects the org policy; non-enterprise callers
// pass false so a bypass request degrades to edit.
func effectiveMode(requested Mode, allowed []Mode, bypassAllowed bool) Mode {
	m := requested
	if m == ModeBypass && !bypassAllowed {
		m = ModeEdit
	}
	if modeAllowed(allowed, m) {
		return m
	}
	// most permissive allowed fallback: edit, then plan
	if modeAllowed(allowed, ModeEdit) {
		return ModeEdit
	}
	if modeAllowed(allowed, ModePlan) {
		return ModePlan
	}
	return ""
}
