// Package vision 实现图像理解协作方
package vision

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	openaigo "github.com/sashabaranov/go-openai"

	"kahani-story-api/internal/config"
	"kahani-story-api/internal/workflow/port"
	"kahani-story-api/pkg/logger"
)

const describePrompt = "Describe this image as material for a story writer. Cover the scene, the key elements, " +
	"the atmosphere and mood, and any people or animals visible. Answer with one short paragraph in English."

// OpenAIDescriber 通过多模态聊天接口描述图片
type OpenAIDescriber struct {
	client    *openaigo.Client
	model     string
	maxTokens int
}

// NewOpenAIDescriber 创建图像理解客户端
func NewOpenAIDescriber(cfg config.VisionConfig) *OpenAIDescriber {
	clientCfg := openaigo.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openaigo.GPT4oMini
	}
	return &OpenAIDescriber{
		client:    openaigo.NewClientWithConfig(clientCfg),
		model:     model,
		maxTokens: cfg.MaxTokens,
	}
}

var _ port.ImageDescriber = (*OpenAIDescriber)(nil)

func (d *OpenAIDescriber) Describe(ctx context.Context, imageRef string) (string, error) {
	resp, err := d.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model:     d.model,
		MaxTokens: d.maxTokens,
		Messages: []openaigo.ChatCompletionMessage{
			{
				Role: openaigo.ChatMessageRoleUser,
				MultiContent: []openaigo.ChatMessagePart{
					{Type: openaigo.ChatMessagePartTypeText, Text: describePrompt},
					{Type: openaigo.ChatMessagePartTypeImageURL, ImageURL: &openaigo.ChatMessageImageURL{
						URL:    imageRef,
						Detail: openaigo.ImageURLDetailLow,
					}},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai vision: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai vision: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// CachedDescriber 按图片引用缓存描述，同一张图重复提交不再调用上游
type CachedDescriber struct {
	next  port.ImageDescriber
	cache *gocache.Cache
}

// NewCachedDescriber ttl<=0 时不缓存，直接返回 next
func NewCachedDescriber(next port.ImageDescriber, ttl time.Duration) port.ImageDescriber {
	if ttl <= 0 {
		return next
	}
	return &CachedDescriber{next: next, cache: gocache.New(ttl, 2*ttl)}
}

func (c *CachedDescriber) Describe(ctx context.Context, imageRef string) (string, error) {
	if v, ok := c.cache.Get(imageRef); ok {
		logger.Debug(ctx, "image description served from cache")
		return v.(string), nil
	}
	desc, err := c.next.Describe(ctx, imageRef)
	if err != nil {
		return "", err
	}
	if desc != "" {
		c.cache.SetDefault(imageRef, desc)
	}
	return desc, nil
}
