package eino

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	llmctx "kahani-story-api/internal/domain/service"
	"kahani-story-api/pkg/metrics"
)

func TestChatModelCallbacksRecordMetrics(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := llmctx.WithWorkflowProvider(context.Background(), "story_generate", "cbtest")

	ctx = h.OnStart(ctx, nil, &model.CallbackInput{Config: &model.Config{Model: "m1"}})
	assert.Greater(t, time.Since(ctx.Value(startTimeKey{}).(time.Time)), time.Duration(-1))

	h.OnEnd(ctx, nil, &model.CallbackOutput{
		Message:    schema.AssistantMessage("ok", nil),
		Config:     &model.Config{Model: "m1"},
		TokenUsage: &model.TokenUsage{PromptTokens: 12, CompletionTokens: 30, TotalTokens: 42},
	})

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.LLMCallTotal.WithLabelValues("story_generate", "cbtest", "m1", "success")))
	assert.Equal(t, float64(12), testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("story_generate", "cbtest", "m1", "prompt")))
	assert.Equal(t, float64(30), testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("story_generate", "cbtest", "m1", "completion")))

	h.OnError(h.OnStart(ctx, nil, nil), nil, errors.New("upstream 500"))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.LLMCallTotal.WithLabelValues("story_generate", "cbtest", "", "error")))
}
