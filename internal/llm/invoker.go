package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	csotel "github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/otel"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/requestctx"
)

const repairInstruction = "Your previous reply was not valid against the required JSON schema. " +
	"Return ONLY the corrected JSON object. No prose, no markdown fences, no commentary."

// Invoker runs the single-turn-with-one-repair protocol against a provider.
// Every call is stateless: no streaming, no conversation memory.
type Invoker struct {
	provider Provider
	model    string
}

// NewInvoker creates an Invoker for the given provider and model.
func NewInvoker(provider Provider, model string) *Invoker {
	return &Invoker{provider: provider, model: model}
}

// Result is the outcome of an invocation, with usage summed across the
// initial call and the repair call when one occurred.
type Result struct {
	Payload    *ResponsePayload
	TokensIn   int
	TokensOut  int
	ResponseID string
	Repaired   bool
}

// Invoke sends the prompt pair, validates the JSON output, and on schema
// failure issues exactly one repair round-trip: the original two messages,
// the assistant's invalid output, and an explicit correct-it instruction.
// A second failure returns ErrInvalidResponse — the retry budget is one,
// to cap cost and worst-case latency at two model round-trips.
func (i *Invoker) Invoke(ctx context.Context, systemPrompt, userPrompt string) (*Result, error) {
	messages := []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}

	first, err := i.provider.Complete(ctx, &Request{
		Model:      i.model,
		Messages:   messages,
		JSONObject: true,
	})
	if err != nil {
		return nil, fmt.Errorf("model invocation: %w", err)
	}

	res := &Result{
		TokensIn:   first.InputTokens,
		TokensOut:  first.OutputTokens,
		ResponseID: first.ID,
	}
	if payload, ok := Validate([]byte(first.Content)); ok {
		res.Payload = payload
		recordTokenMetrics(ctx, i.provider.Name(), i.model, res.TokensIn, res.TokensOut, false)
		return res, nil
	}

	log.Warn().
		Str("correlation_id", requestctx.CorrelationID(ctx)).
		Func(csotel.LogTraceFields(ctx)).
		Str("model", i.model).
		Str("response_id", first.ID).
		Msg("model output failed schema validation, attempting repair")

	repairMessages := append(messages,
		Message{Role: "assistant", Content: first.Content},
		Message{Role: "user", Content: repairInstruction},
	)
	second, err := i.provider.Complete(ctx, &Request{
		Model:      i.model,
		Messages:   repairMessages,
		JSONObject: true,
	})
	if err != nil {
		return nil, fmt.Errorf("model repair invocation: %w", err)
	}

	res.TokensIn += second.InputTokens
	res.TokensOut += second.OutputTokens
	res.ResponseID = second.ID
	res.Repaired = true

	payload, ok := Validate([]byte(second.Content))
	if !ok {
		return nil, ErrInvalidResponse
	}
	res.Payload = payload
	recordTokenMetrics(ctx, i.provider.Name(), i.model, res.TokensIn, res.TokensOut, true)
	return res, nil
}
