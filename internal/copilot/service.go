package copilot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/audit"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/entitlement"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/graph"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/llm"
	csotel "github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/otel"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/prompt"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/quota"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/requestctx"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/risk"
)

var tracer = csotel.Tracer("github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/copilot")

// Invoker is the model invocation contract. The llm.Invoker satisfies it;
// tests substitute mocks (the quota tests assert it is never called once
// the quota check fails).
type Invoker interface {
	Invoke(ctx context.Context, systemPrompt, userPrompt string) (*llm.Result, error)
}

// Service orchestrates the copilot pipeline. Each request runs the stages
// sequentially; every stage failure surfaces immediately and no later
// stage produces side effects. Quota is committed only after a validated
// model response.
type Service struct {
	entitlements *entitlement.Resolver
	ledger       *quota.Ledger
	snapshots    graph.SnapshotSource
	invoker      Invoker
	audits       *audit.Store
	model        string
	now          func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the service clock, for period-boundary tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates the orchestrator. invoker may be nil when no model
// provider is configured; requests then fail with llm.ErrNotConfigured.
func NewService(
	entitlements *entitlement.Resolver,
	ledger *quota.Ledger,
	snapshots graph.SnapshotSource,
	invoker Invoker,
	audits *audit.Store,
	model string,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		entitlements: entitlements,
		ledger:       ledger,
		snapshots:    snapshots,
		invoker:      invoker,
		audits:       audits,
		model:        model,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle runs one request through the pipeline.
func (s *Service) Handle(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "copilot.handle")
	defer span.End()

	if err := validate(req); err != nil {
		return nil, err
	}
	if s.invoker == nil {
		return nil, llm.ErrNotConfigured
	}

	ent, err := s.entitlements.Resolve(ctx, req.UserID, req.Mode, req.OrgID)
	if err != nil {
		return nil, err
	}

	mode := ent.EffectiveMode
	// explain_node is read-only and always prompted in plan mode
	if req.Task == entitlement.TaskExplainNode {
		mode = entitlement.ModePlan
	}

	period := quota.PeriodStart(s.now())
	current, err := s.ledger.CheckAndReserve(ctx, req.UserID, period, ent.TokenLimit)
	if err != nil {
		return nil, err
	}

	summary := s.buildContext(ctx, req)
	systemPrompt := prompt.Build(mode, req.Task)
	userPrompt := buildUserPrompt(req, summary)

	result, err := s.invoker.Invoke(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	ops := result.Payload.Patch.Ops
	if req.Task == entitlement.TaskExplainNode {
		ops = []llm.PatchOp{}
	}

	// risk is re-derived from the ops; the model's self-report never gates
	assessment := risk.Assess(ops)
	confirm := risk.RequiresConfirmation(assessment.Level, mode, ent.BypassAllowed)

	// the provider has already charged for these tokens; a client disconnect
	// mid-call must not cancel the accounting below
	ctx = context.WithoutCancel(ctx)

	if err := s.ledger.Commit(ctx, req.UserID, period, int64(result.TokensIn), int64(result.TokensOut)); err != nil {
		return nil, fmt.Errorf("recording usage: %w", err)
	}

	entry := &audit.Entry{
		CorrelationID:   requestctx.CorrelationID(ctx),
		OwnerID:         req.UserID,
		OrgID:           ent.OrgID,
		Mode:            string(mode),
		Task:            string(req.Task),
		Model:           s.model,
		TokensIn:        result.TokensIn,
		TokensOut:       result.TokensOut,
		OpsCount:        len(ops),
		RiskLevel:       string(assessment.Level),
		ModelResponseID: result.ResponseID,
	}
	if err := s.audits.Insert(ctx, entry); err != nil {
		// usage is already committed; losing one audit row is preferable
		// to double-billing on a client retry
		log.Error().Err(err).
			Str("correlation_id", entry.CorrelationID).
			Func(csotel.LogTraceFields(ctx)).
			Msg("audit insert failed")
	}

	remaining := ent.TokenLimit - current - int64(result.TokensIn) - int64(result.TokensOut)
	if remaining < 0 {
		remaining = 0
	}

	return &Response{
		OK:                   true,
		Task:                 req.Task,
		Mode:                 mode,
		Message:              result.Payload.Message,
		Assumptions:          result.Payload.Assumptions,
		Risk:                 assessment,
		PatchOps:             ops,
		RequiresConfirmation: confirm,
		Usage:                Usage{TokensIn: result.TokensIn, TokensOut: result.TokensOut},
		TokensRemaining:      remaining,
		Explanation:          result.Payload.Explanation,
		Template:             result.Payload.Template,
		Theme:                result.Payload.Theme,
	}, nil
}

// buildContext fetches and summarizes the graph. Snapshot failures degrade
// the context to an explicit unavailability marker; they never fail the
// request.
func (s *Service) buildContext(ctx context.Context, req *Request) string {
	snap, err := s.snapshots.Snapshot(ctx, req.UserID, req.CanvasID)
	if err != nil {
		if !errors.Is(err, graph.ErrSnapshotUnavailable) {
			log.Warn().Err(err).
				Str("correlation_id", requestctx.CorrelationID(ctx)).
				Str("canvas_id", req.CanvasID).
				Msg("snapshot fetch failed, degrading context")
		}
		return graph.ContextUnavailable
	}
	return graph.Summarize(snap, req.Scope, req.SelectedNodeIDs, req.ClientContext.Diagnostics)
}

func buildUserPrompt(req *Request, summary string) string {
	var b strings.Builder
	b.WriteString("Instruction:\n")
	b.WriteString(req.UserMessage)
	b.WriteString("\n\nGraph context:\n")
	b.WriteString(summary)
	if len(req.SelectedNodeIDs) > 0 {
		b.WriteString("\n\nSelected nodes: ")
		b.WriteString(strings.Join(req.SelectedNodeIDs, ", "))
	}
	if req.ClientContext.Locale != "" {
		b.WriteString("\nLocale: ")
		b.WriteString(req.ClientContext.Locale)
	}
	if req.ClientContext.DecimalPlaces > 0 {
		fmt.Fprintf(&b, "\nDisplay precision: %d decimal places", req.ClientContext.DecimalPlaces)
	}
	return b.String()
}

func validate(req *Request) error {
	if !entitlement.ValidMode(req.Mode) {
		return invalidField("mode", "must be plan, edit, or bypass")
	}
	if !entitlement.ValidScope(req.Scope) {
		return invalidField("scope", "must be active_canvas or selection")
	}
	if req.Task == "" {
		req.Task = entitlement.TaskChat
	}
	if !entitlement.ValidTask(req.Task) {
		return invalidField("task", "unknown task")
	}
	if req.UserMessage == "" {
		return invalidField("userMessage", "is required")
	}
	if utf8.RuneCountInString(req.UserMessage) > MaxUserMessageLen {
		return invalidField("userMessage", fmt.Sprintf("exceeds %d characters", MaxUserMessageLen))
	}
	if req.ProjectID == "" {
		return invalidField("projectId", "is required")
	}
	if req.CanvasID == "" {
		return invalidField("canvasId", "is required")
	}
	return nil
}
