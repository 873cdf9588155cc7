package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRouterBackend_Complete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "gen-1", "object": "chat.completion", "created": 1, "model": "openai/gpt-4o",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "The answer is B"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`)
	}))
	defer srv.Close()

	b := NewOpenRouterBackend("sk-test", srv.URL)
	temp := 0.2
	c, err := b.Complete(context.Background(), Request{
		Model:       "openai/gpt-4o",
		System:      "Answer with a letter",
		Input:       "Which?",
		Temperature: &temp,
	})
	require.NoError(t, err)
	assert.Equal(t, "The answer is B", c.Text)
	require.NotNil(t, c.InputTokens)
	assert.Equal(t, int64(12), *c.InputTokens)
	assert.Equal(t, int64(4), *c.OutputTokens)

	assert.Equal(t, "openai/gpt-4o", body["model"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.InDelta(t, 0.2, body["temperature"], 1e-9)
}

func TestOpenRouterBackend_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error": {"message": "No auth credentials found", "code": 401}}`)
	}))
	defer srv.Close()

	p := newTestProvider(NewOpenRouterBackend("bad", srv.URL))
	_, err := p.Forward(context.Background(), "hi", ForwardOptions{Model: "openai/gpt-4o"})
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeUnauthorized))
}

func TestOpenRouterBackend_ListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/models"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object": "list", "data": [
			{"id": "openai/gpt-4o", "object": "model", "created": 1, "owned_by": "openai"},
			{"id": "broken", "object": "model", "created": 1, "owned_by": "x"}
		]}`)
	}))
	defer srv.Close()

	p := New(NewOpenRouterBackend("k", srv.URL))
	infos, err := p.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1, "identifiers without an owner are dropped")
	assert.Equal(t, "openai", infos[0].Owner)
	assert.Equal(t, "gpt-4o", infos[0].Name)
}

func TestAnthropicBackend_Complete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-3-5-haiku-latest",
			"content": [{"type": "text", "text": "**C**"}],
			"stop_reason": "end_turn", "stop_sequence": null,
			"usage": {"input_tokens": 20, "output_tokens": 2}
		}`)
	}))
	defer srv.Close()

	b := NewAnthropicBackend("sk-ant", srv.URL)
	c, err := b.Complete(context.Background(), Request{
		Model:  "claude-3-5-haiku-latest",
		System: "Pick one",
		Input:  "Which?",
	})
	require.NoError(t, err)
	assert.Equal(t, "**C**", c.Text)
	assert.Equal(t, int64(20), *c.InputTokens)
	assert.Equal(t, int64(2), *c.OutputTokens)
	assert.EqualValues(t, defaultAnthropicMaxTokens, body["max_tokens"])
}

func TestAnthropicBackend_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"type": "error", "error": {"type": "authentication_error", "message": "invalid x-api-key"}}`)
	}))
	defer srv.Close()

	p := newTestProvider(NewAnthropicBackend("bad", srv.URL))
	_, err := p.Forward(context.Background(), "hi", ForwardOptions{Model: "claude-3-5-haiku-latest"})
	assert.True(t, HasCode(err, CodeUnauthorized))
}

func TestParseModelInfo(t *testing.T) {
	tests := []struct {
		name      string
		backend   Backend
		model     string
		wantOK    bool
		wantOwner string
		wantName  string
		wantTier  string
	}{
		{name: "openrouter owner/name", backend: NewOpenRouterBackend("", ""), model: "meta-llama/llama-3-70b", wantOK: true, wantOwner: "meta-llama", wantName: "llama-3-70b"},
		{name: "openrouter tier", backend: NewOpenRouterBackend("", ""), model: "google/gemma-2-9b-it:free", wantOK: true, wantOwner: "google", wantName: "gemma-2-9b-it", wantTier: "free"},
		{name: "openrouter bare name", backend: NewOpenRouterBackend("", ""), model: "gpt-4o"},
		{name: "openrouter empty name", backend: NewOpenRouterBackend("", ""), model: "openai/"},
		{name: "anthropic claude", backend: NewAnthropicBackend("", ""), model: "anthropic/claude-3-opus", wantOK: true, wantOwner: "anthropic", wantName: "claude-3-opus"},
		{name: "anthropic foreign", backend: NewAnthropicBackend("", ""), model: "gpt-4o"},
		{name: "gemini", backend: &GeminiBackend{}, model: "models/gemini-1.5-pro", wantOK: true, wantOwner: "google", wantName: "gemini-1.5-pro"},
		{name: "gemini foreign", backend: &GeminiBackend{}, model: "claude-3"},
		{name: "copilot openai family", backend: &CopilotBackend{}, model: "gpt-4.1", wantOK: true, wantOwner: "openai", wantName: "gpt-4.1"},
		{name: "copilot anthropic family", backend: &CopilotBackend{}, model: "claude-sonnet-4", wantOK: true, wantOwner: "anthropic", wantName: "claude-sonnet-4"},
		{name: "copilot empty", backend: &CopilotBackend{}, model: " "},
		{name: "mock bare", backend: NewMockBackend(""), model: "echo", wantOK: true, wantOwner: "mock", wantName: "echo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, ok := tt.backend.ParseModelInfo(tt.model)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				assert.Nil(t, info)
				return
			}
			assert.Equal(t, tt.wantOwner, info.Owner)
			assert.Equal(t, tt.wantName, info.Name)
			assert.Equal(t, tt.wantTier, info.Tier)
			assert.Equal(t, tt.backend.Identifier(), info.Provider)
		})
	}
}
