package llm

import (
	"context"
	"errors"
	"time"
)

// TimeoutModelCall bounds a single model round-trip. The repair protocol
// makes at most two, so worst-case request latency is twice this.
const TimeoutModelCall = 60 * time.Second

// Domain errors for the llm package.
var (
	ErrNotConfigured   = errors.New("model provider not configured")
	ErrInvalidResponse = errors.New("model returned unrepairable output")
	ErrNoContent       = errors.New("model returned no choices")
)

// Provider is the interface all model providers implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai").
	Name() string
	// Complete sends a single-turn completion request and returns the
	// response. Implementations must honor Request.JSONObject by asking
	// the provider for a JSON-object-formatted completion.
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Message is one chat message.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Request is a completion request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	JSONObject  bool // request a JSON-object response format
}

// Response is a completion response.
type Response struct {
	ID           string
	Model        string
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
}
