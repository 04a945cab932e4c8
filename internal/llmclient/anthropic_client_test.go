package llmclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest/observer"
)

const anthropicOK = `{
	"content": [{"type": "text", "text": "{\"element\": 3}"}],
	"stop_reason": "end_turn",
	"usage": {"input_tokens": 12, "output_tokens": 4}
}`

func setupAnthropicClient(t *testing.T, handler http.HandlerFunc) (*AnthropicClient, *observer.ObservedLogs) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger, logs := setupTestLogger(t)
	client, err := NewAnthropicClient(validProviderConfig(server.URL), logger)
	require.NoError(t, err)
	// Keep retries fast and bounded.
	client.backoffFactory = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
	}
	return client, logs
}

func TestNewAnthropicClient_MissingAPIKey(t *testing.T) {
	logger, _ := setupTestLogger(t)
	client, err := NewAnthropicClient(validProviderConfig(""), logger)
	require.NoError(t, err)
	assert.Equal(t, "https://api.anthropic.com/v1/messages", client.endpoint)

	cfg := validProviderConfig("")
	cfg.APIKey = ""
	client, err = NewAnthropicClient(cfg, logger)
	assert.Nil(t, client)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestAnthropicClient_Generate_Success(t *testing.T) {
	var captured anthropicRequestPayload
	client, logs := setupAnthropicClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-api-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(anthropicOK))
	})

	req := createTestRequest("claude-3-5-sonnet-latest")
	req.Options.ForceJSONFormat = true
	out, err := client.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, `{"element": 3}`, out)

	assert.Equal(t, "claude-3-5-sonnet-latest", captured.Model)
	assert.Equal(t, 256, captured.MaxTokens)
	assert.Contains(t, captured.System, "System prompt instructions.")
	assert.Contains(t, captured.System, "single JSON value")
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, anthropicMessage{Role: "user", Content: "User query."}, captured.Messages[0])

	entries := logs.FilterMessage("LLM generation complete (Anthropic)").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(12), entries[0].ContextMap()["input_tokens"])
}

func TestAnthropicClient_Generate_RetriesTransient(t *testing.T) {
	var calls int32
	client, _ := setupAnthropicClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(statusOverloaded)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error"}}`))
			return
		}
		_, _ = w.Write([]byte(anthropicOK))
	})

	out, err := client.Generate(context.Background(), createTestRequest("claude-3-5-sonnet-latest"))
	require.NoError(t, err)
	assert.Equal(t, `{"element": 3}`, out)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestAnthropicClient_Generate_PermanentError(t *testing.T) {
	var calls int32
	client, logs := setupAnthropicClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error"}}`))
	})

	_, err := client.Generate(context.Background(), createTestRequest("claude-3-5-sonnet-latest"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx must not be retried")
	assert.Equal(t, 1, logs.FilterMessage("Anthropic API returned error status").Len())
}

func TestAnthropicClient_Generate_EmptyContent(t *testing.T) {
	client, _ := setupAnthropicClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content": [], "stop_reason": "max_tokens"}`))
	})

	_, err := client.Generate(context.Background(), createTestRequest("claude-3-5-sonnet-latest"))
	assert.ErrorContains(t, err, "no text content (stop reason: max_tokens)")
}

func TestAnthropicClient_Generate_ContextCancelled(t *testing.T) {
	client, _ := setupAnthropicClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Generate(ctx, createTestRequest("claude-3-5-sonnet-latest"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
