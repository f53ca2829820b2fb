package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedChat struct {
	Model          string  `json:"model"`
	Temperature    float32 `json:"temperature"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newOpenAITestServer(t *testing.T, content string, captured *capturedChat) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(captured))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  captured.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		})
	}))
}

func TestOpenAIClient_Generate(t *testing.T) {
	var captured capturedChat
	server := newOpenAITestServer(t, "```\nDear IRS\n```", &captured)
	defer server.Close()

	cfg := DefaultOpenAIConfig()
	cfg.BaseURL = server.URL + "/v1"
	client, err := NewOpenAIClient(cfg, "test-key")
	require.NoError(t, err)

	text, err := client.Generate(context.Background(), Request{
		System: "You write letters.",
		User:   "Write one.",
		Tier:   TierStandard,
	})
	require.NoError(t, err)
	assert.Equal(t, "Dear IRS", text)

	assert.Equal(t, "gpt-4o", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "Write one.", captured.Messages[1].Content)
	assert.Nil(t, captured.ResponseFormat)
	assert.InDelta(t, 0.2, captured.Temperature, 0.001)
}

func TestOpenAIClient_GenerateJSON_ReasoningModel(t *testing.T) {
	var captured capturedChat
	server := newOpenAITestServer(t, "```json\n{\"turns\":[]}\n```", &captured)
	defer server.Close()

	cfg := DefaultOpenAIConfig()
	cfg.BaseURL = server.URL + "/v1"
	client, err := NewOpenAIClient(cfg, "test-key")
	require.NoError(t, err)

	text, err := client.Generate(context.Background(), Request{User: "x", Tier: TierAdvanced, JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"turns":[]}`, text)

	assert.Equal(t, "o3-mini", captured.Model)
	assert.Zero(t, captured.Temperature)
	require.NotNil(t, captured.ResponseFormat)
	assert.Equal(t, "json_object", captured.ResponseFormat.Type)
	assert.Len(t, captured.Messages, 1)
}

func TestOpenAIClient_EmptyContent(t *testing.T) {
	var captured capturedChat
	server := newOpenAITestServer(t, "   ", &captured)
	defer server.Close()

	cfg := DefaultOpenAIConfig()
	cfg.BaseURL = server.URL + "/v1"
	client, err := NewOpenAIClient(cfg, "test-key")
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), Request{User: "x", Tier: TierLite})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAIClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer server.Close()

	cfg := DefaultOpenAIConfig()
	cfg.BaseURL = server.URL + "/v1"
	client, err := NewOpenAIClient(cfg, "test-key")
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), Request{User: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create chat completion")
}
