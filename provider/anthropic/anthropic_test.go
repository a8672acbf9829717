package anthropic_provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/mohammad-safakhou/citesearch/provider/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewClient("", time.Second)
	require.Error(t, err)
}

func TestGenerateConcatenatesTextBlocks(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "<answer>A</answer>"}, {"type": "text", "text": "<reasoning>R</reasoning>"}],
			"stop_reason": "end_turn", "usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer srv.Close()

	c, err := NewClient("test-key", time.Second, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	require.NoError(t, err)

	out, err := c.Generate(context.Background(), models.GenerateRequest{
		SystemPrompt: "sys", UserPrompt: "question", Model: "claude-sonnet-4-20250514", MaxTokens: 4096, Temperature: 0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, "<answer>A</answer><reasoning>R</reasoning>", out)
	assert.Equal(t, "claude-sonnet-4-20250514", body["model"])
	assert.EqualValues(t, 4096, body["max_tokens"])
}

func TestGenerateSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	c, err := NewClient("test-key", time.Second, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), models.GenerateRequest{Model: "m", MaxTokens: 10})
	require.Error(t, err)
}
