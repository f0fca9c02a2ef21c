package copilot

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/audit"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/entitlement"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/graph"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/llm"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/quota"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/risk"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/testutil"
)

type mockInvoker struct {
	result   *llm.Result
	err      error
	onInvoke func()

	calls      int
	lastSystem string
	lastUser   string
}

func (m *mockInvoker) Invoke(_ context.Context, systemPrompt, userPrompt string) (*llm.Result, error) {
	m.calls++
	m.lastSystem = systemPrompt
	m.lastUser = userPrompt
	if m.onInvoke != nil {
		m.onInvoke()
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func okResult(ops []llm.PatchOp) *llm.Result {
	return &llm.Result{
		Payload: &llm.ResponsePayload{
			Message:     "done",
			Assumptions: []string{},
			Patch:       llm.Patch{Ops: ops},
		},
		TokensIn:   120,
		TokensOut:  45,
		ResponseID: "resp-1",
	}
}

const canvasDoc = `{"nodes":[{"id":"n1","blockType":"number","label":"Rate","value":0.05}],"edges":[]}`

type fixture struct {
	service *Service
	invoker *mockInvoker
	ledger  *quota.Ledger
	audits  *audit.Store
	ents    *entitlement.SQLStore
}

func newFixture(t *testing.T, inv *mockInvoker, accounts ...*entitlement.Account) *fixture {
	t.Helper()
	ents := testutil.NewEntitlementStore(t, accounts...)
	ledger, err := quota.NewLedger(filepath.Join(t.TempDir(), "quota.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })
	audits, err := audit.NewStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = audits.Close() })
	snapshots := testutil.NewGraphStore(t, "u-pro", "canvas-1", []byte(canvasDoc))

	var invoker Invoker
	if inv != nil {
		invoker = inv
	}
	svc := NewService(entitlement.NewResolver(ents), ledger, snapshots, invoker, audits, "gpt-4o-mini")
	return &fixture{service: svc, invoker: inv, ledger: ledger, audits: audits, ents: ents}
}

func proAccount() *entitlement.Account {
	return &entitlement.Account{UserID: "u-pro", Plan: entitlement.PlanPro}
}

func chatRequest() *Request {
	return &Request{
		UserID:      "u-pro",
		Mode:        entitlement.ModeEdit,
		Scope:       entitlement.ScopeActiveCanvas,
		Task:        entitlement.TaskChat,
		UserMessage: "add a tax calculation",
		ProjectID:   "proj-1",
		CanvasID:    "canvas-1",
	}
}

func TestHandleLowRiskEdit(t *testing.T) {
	inv := &mockInvoker{result: okResult([]llm.PatchOp{
		{Op: llm.OpAddNode, Node: &graph.Node{ID: "ai-1", BlockType: "number"}},
		{Op: llm.OpAddNode, Node: &graph.Node{ID: "ai-2", BlockType: "multiply"}},
		{Op: llm.OpAddEdge, Edge: &graph.Edge{ID: "ai-e1", Source: "ai-1", Target: "ai-2"}},
	})}
	fx := newFixture(t, inv, proAccount())

	resp, err := fx.service.Handle(context.Background(), chatRequest())
	require.NoError(t, err)

	assert.True(t, resp.OK)
	assert.Equal(t, entitlement.ModeEdit, resp.Mode)
	assert.Equal(t, risk.Low, resp.Risk.Level)
	assert.False(t, resp.RequiresConfirmation)
	assert.Len(t, resp.PatchOps, 3)
	assert.Equal(t, 120, resp.Usage.TokensIn)
	assert.Equal(t, 45, resp.Usage.TokensOut)
	assert.Equal(t, entitlement.ProMonthlyTokenLimit-120-45, resp.TokensRemaining)

	// graph context made it into the user prompt
	assert.Contains(t, inv.lastUser, `n1: number "Rate"`)
	assert.Contains(t, inv.lastSystem, "Current mode: edit")

	// usage committed and audited
	rec, err := fx.ledger.Get(context.Background(), "u-pro", quota.PeriodStart(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(120), rec.TokensIn)
	assert.Equal(t, int64(45), rec.TokensOut)

	n, err := fx.audits.CountSince(context.Background(), "u-pro", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestHandleHighRiskStillSucceeds(t *testing.T) {
	var ops []llm.PatchOp
	for i := 0; i < 6; i++ {
		ops = append(ops, llm.PatchOp{Op: llm.OpRemoveEdge, EdgeID: "e1"})
	}
	fx := newFixture(t, &mockInvoker{result: okResult(ops)}, proAccount())

	resp, err := fx.service.Handle(context.Background(), chatRequest())
	require.NoError(t, err)

	assert.True(t, resp.OK)
	assert.Equal(t, risk.High, resp.Risk.Level)
	assert.True(t, resp.RequiresConfirmation)
	assert.Len(t, resp.PatchOps, 6)
}

func TestHandleOrgAIDisabled(t *testing.T) {
	inv := &mockInvoker{result: okResult(nil)}
	fx := newFixture(t, inv, &entitlement.Account{UserID: "u-pro", Plan: entitlement.PlanEnterprise})
	ctx := context.Background()
	require.NoError(t, fx.ents.AddMember(ctx, "org-1", "u-pro"))
	require.NoError(t, fx.ents.UpsertPolicy(ctx, &entitlement.OrgPolicy{OrgID: "org-1", AIEnabled: false}))

	_, err := fx.service.Handle(ctx, chatRequest())
	assert.ErrorIs(t, err, entitlement.ErrAIDisabled)
	assert.Zero(t, inv.calls, "model must not be invoked when policy blocks AI")

	rec, err := fx.ledger.Get(ctx, "u-pro", quota.PeriodStart(time.Now()))
	require.NoError(t, err)
	assert.Zero(t, rec.RequestCount, "no usage may be recorded")
}

func TestHandleQuotaExhaustedSkipsModel(t *testing.T) {
	inv := &mockInvoker{result: okResult(nil)}
	fx := newFixture(t, inv, proAccount())
	ctx := context.Background()
	period := quota.PeriodStart(time.Now())
	require.NoError(t, fx.ledger.Commit(ctx, "u-pro", period, entitlement.ProMonthlyTokenLimit, 0))

	_, err := fx.service.Handle(ctx, chatRequest())
	assert.ErrorIs(t, err, quota.ErrQuotaExceeded)
	assert.Zero(t, inv.calls, "model must not be invoked once quota is exhausted")

	rec, err := fx.ledger.Get(ctx, "u-pro", period)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.RequestCount, "only the seed commit may exist")
}

func TestHandleExplainNodeForcesPlanAndEmptyOps(t *testing.T) {
	result := okResult([]llm.PatchOp{{Op: llm.OpRemoveNode, NodeID: "n1"}})
	result.Payload.Explanation = "n1 is the tax rate input"
	inv := &mockInvoker{result: result}
	fx := newFixture(t, inv, proAccount())

	req := chatRequest()
	req.Task = entitlement.TaskExplainNode
	req.Mode = entitlement.ModeBypass
	req.SelectedNodeIDs = []string{"n1"}

	resp, err := fx.service.Handle(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, entitlement.ModePlan, resp.Mode)
	assert.Empty(t, resp.PatchOps, "read-only task must never carry ops")
	assert.Equal(t, risk.Low, resp.Risk.Level)
	assert.False(t, resp.RequiresConfirmation)
	assert.Equal(t, "n1 is the tax rate input", resp.Explanation)
	assert.Contains(t, inv.lastSystem, "node explainer")
}

func TestHandleSnapshotUnavailableDegrades(t *testing.T) {
	inv := &mockInvoker{result: okResult(nil)}
	fx := newFixture(t, inv, proAccount())

	req := chatRequest()
	req.CanvasID = "canvas-missing"

	resp, err := fx.service.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Contains(t, inv.lastUser, graph.ContextUnavailable)
}

func TestHandleNoProviderConfigured(t *testing.T) {
	fx := newFixture(t, nil, proAccount())

	_, err := fx.service.Handle(context.Background(), chatRequest())
	assert.ErrorIs(t, err, llm.ErrNotConfigured)
}

func TestHandleInvokerFailurePropagates(t *testing.T) {
	fx := newFixture(t, &mockInvoker{err: llm.ErrInvalidResponse}, proAccount())
	ctx := context.Background()

	_, err := fx.service.Handle(ctx, chatRequest())
	assert.ErrorIs(t, err, llm.ErrInvalidResponse)

	rec, err := fx.ledger.Get(ctx, "u-pro", quota.PeriodStart(time.Now()))
	require.NoError(t, err)
	assert.Zero(t, rec.RequestCount, "failed calls never advance the ledger")
}

func TestHandleValidation(t *testing.T) {
	fx := newFixture(t, &mockInvoker{result: okResult(nil)}, proAccount())

	cases := []struct {
		name   string
		mutate func(*Request)
		field  string
	}{
		{"bad mode", func(r *Request) { r.Mode = "yolo" }, "mode"},
		{"bad scope", func(r *Request) { r.Scope = "everything" }, "scope"},
		{"bad task", func(r *Request) { r.Task = "paint" }, "task"},
		{"empty message", func(r *Request) { r.UserMessage = "" }, "userMessage"},
		{"oversized message", func(r *Request) { r.UserMessage = string(make([]byte, MaxUserMessageLen+1)) }, "userMessage"},
		{"missing project", func(r *Request) { r.ProjectID = "" }, "projectId"},
		{"missing canvas", func(r *Request) { r.CanvasID = "" }, "canvasId"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := chatRequest()
			tc.mutate(req)
			_, err := fx.service.Handle(context.Background(), req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestHandleClientDisconnectStillBills(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// the caller goes away while the model call is in flight
	inv := &mockInvoker{result: okResult(nil), onInvoke: cancel}
	fx := newFixture(t, inv, proAccount())

	resp, err := fx.service.Handle(ctx, chatRequest())
	require.NoError(t, err)
	assert.True(t, resp.OK)

	rec, err := fx.ledger.Get(context.Background(), "u-pro", quota.PeriodStart(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(120), rec.TokensIn, "disconnect must not drop billable usage")
	assert.Equal(t, int64(45), rec.TokensOut)

	n, err := fx.audits.CountSince(context.Background(), "u-pro", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestHandleMessageLengthCountsCharacters(t *testing.T) {
	inv := &mockInvoker{result: okResult(nil)}
	fx := newFixture(t, inv, proAccount())

	// two bytes per rune: under the character limit, over a byte limit
	req := chatRequest()
	req.UserMessage = strings.Repeat("é", MaxUserMessageLen)
	_, err := fx.service.Handle(context.Background(), req)
	require.NoError(t, err)

	req.UserMessage = strings.Repeat("é", MaxUserMessageLen+1)
	_, err = fx.service.Handle(context.Background(), req)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "userMessage", verr.Field)
}

func TestHandleDefaultsTaskToChat(t *testing.T) {
	inv := &mockInvoker{result: okResult(nil)}
	fx := newFixture(t, inv, proAccount())

	req := chatRequest()
	req.Task = ""

	resp, err := fx.service.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, entitlement.TaskChat, resp.Task)
}
