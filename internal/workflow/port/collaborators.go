// Package port 定义编排层依赖的外部协作方接口
package port

import (
	"context"

	"github.com/cloudwego/eino/components/model"
)

// ChatModelFactory 按 provider 名称取 ChatModel
type ChatModelFactory interface {
	Get(ctx context.Context, provider string) (model.BaseChatModel, error)
}

// GenerationRequest 文本生成请求
type GenerationRequest struct {
	// SystemInstruction 非英语时的本地化系统指令，可为空
	SystemInstruction string
	Prompt            string
	MaxTokens         int
	Language          string
}

// StoryGenerator 文本生成协作方
type StoryGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// NarrationRequest 旁白请求，Voice 为音色预设 ID
type NarrationRequest struct {
	JobID    string
	Text     string
	Language string
	Voice    string
	Emotion  string
	Speed    float64
}

// Narrator 语音合成协作方，返回可访问的音频引用
type Narrator interface {
	Narrate(ctx context.Context, req NarrationRequest) (string, error)
}

// ImageDescriber 图像理解协作方
type ImageDescriber interface {
	Describe(ctx context.Context, imageRef string) (string, error)
}

// AudioStore 旁白音频存储
type AudioStore interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
	Delete(ctx context.Context, ref string) error
}
