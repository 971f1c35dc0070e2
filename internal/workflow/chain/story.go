package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	llmctx "kahani-story-api/internal/domain/service"
	workflowport "kahani-story-api/internal/workflow/port"
)

const workflowStoryGenerate = "story_generate"

// StoryChain 通过 ChatModel 生成故事正文，实现 port.StoryGenerator
type StoryChain struct {
	factory  workflowport.ChatModelFactory
	provider string
}

// NewStoryChain provider 为空时使用工厂的默认提供商
func NewStoryChain(factory workflowport.ChatModelFactory, provider string) *StoryChain {
	return &StoryChain{factory: factory, provider: strings.TrimSpace(provider)}
}

var _ workflowport.StoryGenerator = (*StoryChain)(nil)

func (c *StoryChain) Generate(ctx context.Context, req workflowport.GenerationRequest) (string, error) {
	if c == nil || c.factory == nil {
		return "", fmt.Errorf("llm factory not configured")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("prompt is required")
	}

	ctx = llmctx.WithWorkflowProvider(ctx, workflowStoryGenerate, c.provider)
	ctx = llmctx.WithLanguage(ctx, req.Language)
	chatModel, err := c.factory.Get(ctx, c.provider)
	if err != nil {
		return "", err
	}

	outMsg, err := chatModel.Generate(ctx, formatStoryMessages(req), buildStoryModelOptions(req)...)
	if err != nil {
		return "", err
	}
	if outMsg == nil {
		return "", fmt.Errorf("empty llm response")
	}
	return strings.TrimSpace(outMsg.Content), nil
}

func formatStoryMessages(req workflowport.GenerationRequest) []*schema.Message {
	msgs := make([]*schema.Message, 0, 2)
	if sys := strings.TrimSpace(req.SystemInstruction); sys != "" {
		msgs = append(msgs, schema.SystemMessage(sys))
	}
	return append(msgs, schema.UserMessage(req.Prompt))
}

func buildStoryModelOptions(req workflowport.GenerationRequest) []model.Option {
	opts := make([]model.Option, 0, 1)
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	return opts
}
