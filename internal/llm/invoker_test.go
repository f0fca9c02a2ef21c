package llm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/llm"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/testutil"
)

const validPayload = `{"message":"done","assumptions":[],"risk":{"level":"low","reasons":[]},"patch":{"ops":[]}}`

func newInvoker(t *testing.T, server *testutil.ModelServer) *llm.Invoker {
	t.Helper()
	t.Cleanup(server.Close)
	provider := llm.NewOpenAIProviderWithBaseURL("test-key", server.URL)
	return llm.NewInvoker(provider, "gpt-4o-mini")
}

func TestInvokeValidFirstTry(t *testing.T) {
	server := testutil.NewModelServer(
		testutil.ScriptedCall{Content: validPayload, InputTokens: 100, OutputTokens: 40},
	)
	inv := newInvoker(t, server)

	res, err := inv.Invoke(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, 1, server.Calls())
	assert.False(t, res.Repaired)
	assert.Equal(t, 100, res.TokensIn)
	assert.Equal(t, 40, res.TokensOut)
	assert.Equal(t, "done", res.Payload.Message)
	assert.Equal(t, "chatcmpl-test", res.ResponseID)
}

func TestInvokeRepairsOnce(t *testing.T) {
	server := testutil.NewModelServer(
		testutil.ScriptedCall{Content: "sorry, here is your JSON:", InputTokens: 100, OutputTokens: 10},
		testutil.ScriptedCall{Content: validPayload, InputTokens: 150, OutputTokens: 40},
	)
	inv := newInvoker(t, server)

	res, err := inv.Invoke(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, 2, server.Calls())
	assert.True(t, res.Repaired)
	// usage is summed across both calls
	assert.Equal(t, 250, res.TokensIn)
	assert.Equal(t, 50, res.TokensOut)
}

func TestInvokeGivesUpAfterOneRepair(t *testing.T) {
	server := testutil.NewModelServer(
		testutil.ScriptedCall{Content: "not json", InputTokens: 10, OutputTokens: 5},
		testutil.ScriptedCall{Content: `{"no_message": true}`, InputTokens: 10, OutputTokens: 5},
	)
	inv := newInvoker(t, server)

	_, err := inv.Invoke(context.Background(), "system", "user")
	require.ErrorIs(t, err, llm.ErrInvalidResponse)
	// bounded retry: exactly two round-trips, never a third
	assert.Equal(t, 2, server.Calls())
}
