package llmclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/evoengine/evoengine/pkg/config"
	"github.com/evoengine/evoengine/pkg/llmclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *llmclient.Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	t.Setenv("TEST_LLM_API_KEY", "secret")
	cfg := &config.LLMConfig{
		BaseURL:                server.URL,
		APIKeyEnv:              "TEST_LLM_API_KEY",
		NativeStructuredOutput: false,
		CallTimeout:            5 * time.Second,
	}
	return llmclient.New(cfg)
}

func TestAdapterCallParsesToleratly(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "```json\n{\"ideas\":[{\"idea_id\":\"VAR_GEN1_001\"}]}\n```"}},
			},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		}
		json.NewEncoder(w).Encode(resp)
	})

	result, err := adapter.Call(context.Background(), llmclient.CallInput{
		Model: "gpt-4o-mini",
		Phase: "variator",
		Messages: []llmclient.Message{
			{Role: llmclient.RoleUser, Content: "generate ideas"},
		},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ideas":[{"idea_id":"VAR_GEN1_001"}]}`, string(result.Parsed))
	assert.Equal(t, 15, result.Usage.TotalTokens)
}

func TestAdapterCallDoesNotRetryOn4xx(t *testing.T) {
	calls := 0
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := adapter.Call(context.Background(), llmclient.CallInput{Model: "m", Phase: "variator"})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestAdapterCallFailsOnUnparsableContent(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "not json at all"}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})

	_, err := adapter.Call(context.Background(), llmclient.CallInput{Model: "m", Phase: "enricher"})
	assert.ErrorIs(t, err, llmclient.ErrNoValidItems)
}
