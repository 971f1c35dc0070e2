package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kahani-story-api/internal/config"
)

func TestEinoFactoryCachesModels(t *testing.T) {
	cfg := &config.Config{LLM: config.LLMConfig{
		DefaultProvider: "openai",
		Providers: map[string]config.ProviderConfig{
			"openai":   {APIKey: "sk-test", BaseURL: "http://127.0.0.1:1/v1", Model: "gpt-4o-mini", MaxTokens: 1024, Temperature: 0.8, Timeout: time.Second},
			"deepseek": {APIKey: "sk-test", BaseURL: "http://127.0.0.1:1/v1", Model: "deepseek-chat"},
		},
	}}
	f := NewEinoFactory(cfg)

	def, err := f.Get(context.Background(), "")
	require.NoError(t, err)
	named, err := f.Get(context.Background(), "openai")
	require.NoError(t, err)
	assert.Same(t, def, named)

	assert.Equal(t, []string{"deepseek", "openai"}, f.Providers())

	_, err = f.Get(context.Background(), "missing")
	assert.ErrorContains(t, err, "provider missing not found")
}
