package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepgen/deepgen/internal/config"
)

func TestResolveNone(t *testing.T) {
	rt := Resolve(config.LLMConfig{Backend: "none"})
	assert.Equal(t, "none", rt.Backend)
	assert.Empty(t, rt.Model)
	assert.Nil(t, rt.Client)
}

func TestResolveUnknownFallsBackToNone(t *testing.T) {
	rt := Resolve(config.LLMConfig{Backend: "mlx"})
	assert.Equal(t, "none", rt.Backend)
	assert.Nil(t, rt.Client)
}

func TestResolveOpenAIMissingKey(t *testing.T) {
	rt := Resolve(config.LLMConfig{
		Backend: "openai",
		OpenAI:  config.OpenAIConfig{Model: "gpt-4o-mini"},
	})
	assert.Equal(t, "openai", rt.Backend)
	assert.Equal(t, "gpt-4o-mini", rt.Model)
	// Backend is recorded but no client without credentials
	assert.Nil(t, rt.Client)
}

func TestResolveOpenAIWithKey(t *testing.T) {
	rt := Resolve(config.LLMConfig{
		Backend: "openai",
		OpenAI:  config.OpenAIConfig{Key: "sk-test", Model: "gpt-4o-mini"},
	})
	assert.NotNil(t, rt.Client)
}

func TestResolveAnthropic(t *testing.T) {
	rt := Resolve(config.LLMConfig{
		Backend:   "anthropic",
		Anthropic: config.AnthropicConfig{Key: "sk-ant", Model: "claude-haiku-4-5-20251001"},
	})
	assert.Equal(t, "anthropic", rt.Backend)
	assert.Equal(t, "claude-haiku-4-5-20251001", rt.Model)
	assert.NotNil(t, rt.Client)
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "  {\"claims\": []}  "}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAI("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL))
	out, err := c.Generate(context.Background(), "extract claims")
	require.NoError(t, err)
	assert.Equal(t, `{"claims": []}`, out)
}

func TestOpenAIGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOpenAI("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL))
	_, err := c.Generate(context.Background(), "extract claims")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 429")
}

func TestOpenAIGenerateEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	c := NewOpenAI("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL))
	_, err := c.Generate(context.Background(), "extract claims")
	assert.Error(t, err)
}
