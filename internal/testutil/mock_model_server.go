// Package testutil provides test doubles shared across packages: a mock
// OpenAI-compatible chat completions server with scriptable per-call
// responses (the repair-protocol tests need different output on the first
// and second call), and small store seeding helpers.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
)

// ChatResponse is the minimal OpenAI chat completions response for tests.
type ChatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ScriptedCall is one scripted model reply.
type ScriptedCall struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// ModelServer is an httptest-backed OpenAI-compatible endpoint that replays
// a script of responses in order. Calls beyond the script repeat the last
// entry. Callers must Close() it or register t.Cleanup(server.Close).
type ModelServer struct {
	*httptest.Server

	mu     sync.Mutex
	script []ScriptedCall
	calls  int
}

// NewModelServer starts a mock server replaying the given script.
func NewModelServer(script ...ScriptedCall) *ModelServer {
	if len(script) == 0 {
		script = []ScriptedCall{{Content: `{"message":"ok"}`, InputTokens: 10, OutputTokens: 20}}
	}
	ms := &ModelServer{script: script}
	ms.Server = httptest.NewServer(http.HandlerFunc(ms.handle))
	return ms
}

// Calls returns how many completion requests the server received.
func (ms *ModelServer) Calls() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.calls
}

func (ms *ModelServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/chat/completions" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	ms.mu.Lock()
	idx := ms.calls
	if idx >= len(ms.script) {
		idx = len(ms.script) - 1
	}
	call := ms.script[idx]
	ms.calls++
	ms.mu.Unlock()

	resp := ChatResponse{
		ID:     "chatcmpl-test",
		Object: "chat.completion",
		Model:  "gpt-4o-mini",
	}
	resp.Choices = make([]struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	}, 1)
	resp.Choices[0].Message.Role = "assistant"
	resp.Choices[0].Message.Content = call.Content
	resp.Choices[0].FinishReason = "stop"
	resp.Usage.PromptTokens = call.InputTokens
	resp.Usage.CompletionTokens = call.OutputTokens
	resp.Usage.TotalTokens = call.InputTokens + call.OutputTokens

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
