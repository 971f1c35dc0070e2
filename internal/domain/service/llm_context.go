// Package service 保存跨层共享的 LLM 调用上下文
package service

import (
	"context"
	"strings"
)

type llmCtxKey string

const (
	llmCtxKeyWorkflow llmCtxKey = "llm_workflow"
	llmCtxKeyProvider llmCtxKey = "llm_provider"
	llmCtxKeyLanguage llmCtxKey = "llm_language"

	unknown = "unknown"
)

func withValue(ctx context.Context, key llmCtxKey, v string) context.Context {
	if ctx == nil {
		return nil
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func valueOf(ctx context.Context, key llmCtxKey) string {
	if ctx == nil {
		return unknown
	}
	s, ok := ctx.Value(key).(string)
	if !ok || s == "" {
		return unknown
	}
	return s
}

// WithWorkflow 标记当前调用所属的工作流，用于指标与追踪
func WithWorkflow(ctx context.Context, workflow string) context.Context {
	return withValue(ctx, llmCtxKeyWorkflow, workflow)
}

func WithProvider(ctx context.Context, provider string) context.Context {
	return withValue(ctx, llmCtxKeyProvider, provider)
}

// WithLanguage 故事语言
func WithLanguage(ctx context.Context, language string) context.Context {
	return withValue(ctx, llmCtxKeyLanguage, language)
}

func WithWorkflowProvider(ctx context.Context, workflow, provider string) context.Context {
	return WithProvider(WithWorkflow(ctx, workflow), provider)
}

func WorkflowFromContext(ctx context.Context) string { return valueOf(ctx, llmCtxKeyWorkflow) }

func ProviderFromContext(ctx context.Context) string { return valueOf(ctx, llmCtxKeyProvider) }

func LanguageFromContext(ctx context.Context) string { return valueOf(ctx, llmCtxKeyLanguage) }
