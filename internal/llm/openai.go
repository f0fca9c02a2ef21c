package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/trace"

	csotel "github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/otel"
)

var tracer = csotel.Tracer("github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/llm")

// OpenAIProvider implements Provider for the OpenAI chat completions API.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates an OpenAI provider with the given API key.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey)}
}

// NewOpenAIProviderWithBaseURL creates an OpenAI provider with a custom base
// URL (e.g. tests pointing at a mock server). baseURL is scheme+host without
// path; the client appends /v1 as needed.
func NewOpenAIProviderWithBaseURL(apiKey, baseURL string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL + "/v1"
	return &OpenAIProvider{client: openai.NewClientWithConfig(config)}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Complete sends a chat completion request to OpenAI.
func (p *OpenAIProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(
			csotel.GenAISystem.String("openai"),
			csotel.GenAIRequestModel.String(req.Model),
			csotel.GenAIRequestTemperature.Float64(req.Temperature),
			csotel.GenAIRequestMaxTokens.Int(req.MaxTokens),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, TimeoutModelCall)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONObject {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("openai api call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai api call: %w", ErrNoContent)
	}

	span.SetAttributes(
		csotel.GenAIUsageInputTokens.Int(resp.Usage.PromptTokens),
		csotel.GenAIUsageOutputTokens.Int(resp.Usage.CompletionTokens),
		csotel.GenAIResponseFinishReason.String(string(resp.Choices[0].FinishReason)),
		csotel.GenAIResponseID.String(resp.ID),
	)

	return &Response{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
