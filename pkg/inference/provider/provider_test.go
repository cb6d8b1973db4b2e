package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatgate/pkg/inference"
	"github.com/papercomputeco/chatgate/pkg/inference/ollama"
	"github.com/papercomputeco/chatgate/pkg/inference/openai"
	"github.com/papercomputeco/chatgate/pkg/inference/provider"
	"github.com/papercomputeco/chatgate/pkg/llm"
)

func TestNew(t *testing.T) {
	log := zap.NewNop()

	c, err := provider.New(provider.Config{}, log)
	require.NoError(t, err)
	assert.IsType(t, &ollama.Client{}, c)

	temp := 0.2
	c, err = provider.New(provider.Config{Provider: provider.OpenAI, APIKey: "k", Temperature: &temp}, log)
	require.NoError(t, err)
	assert.IsType(t, &openai.Client{}, c)

	c, err = provider.New(provider.Config{Provider: provider.OpenAI}, log)
	require.NoError(t, err)
	_, err = c.GenerateText(context.Background(), "hi", "English")
	assert.ErrorIs(t, err, inference.ErrNotConfigured)

	c, err = provider.New(provider.Config{Provider: provider.None}, log)
	require.NoError(t, err)
	_, err = c.GenerateText(context.Background(), "hi", "English")
	assert.ErrorIs(t, err, inference.ErrNotConfigured)

	_, err = provider.New(provider.Config{Provider: "gemini"}, log)
	assert.ErrorContains(t, err, "unknown inference provider")
}

func TestOllamaGenerationOptions(t *testing.T) {
	var got llm.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: "ok"}, Done: true})
	}))
	t.Cleanup(srv.Close)

	temp, seed, maxTokens, ctxWindow := 0.7, 7, 128, 4096
	c, err := provider.New(provider.Config{
		BaseURL:       srv.URL,
		Temperature:   &temp,
		Seed:          &seed,
		MaxTokens:     &maxTokens,
		ContextWindow: &ctxWindow,
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = c.GenerateText(context.Background(), "hi", "English")
	require.NoError(t, err)

	require.NotNil(t, got.Options)
	assert.Equal(t, &llm.Options{
		Temperature: &temp,
		Seed:        &seed,
		NumPredict:  &maxTokens,
		NumCtx:      &ctxWindow,
	}, got.Options)
}

func TestOllamaWithoutOptions(t *testing.T) {
	var got llm.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: "ok"}, Done: true})
	}))
	t.Cleanup(srv.Close)

	c, err := provider.New(provider.Config{BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)

	_, err = c.GenerateText(context.Background(), "hi", "English")
	require.NoError(t, err)
	assert.Nil(t, got.Options)
}
