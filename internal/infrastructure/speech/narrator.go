// Package speech 实现旁白协作方：把故事正文合成为音频并写入音频存储
package speech

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"kahani-story-api/internal/config"
	"kahani-story-api/internal/workflow/port"
	"kahani-story-api/pkg/logger"
	"kahani-story-api/pkg/tracer"
)

// SynthesisRequest 单次合成请求，音色与风格已解析
type SynthesisRequest struct {
	Text     string
	Language string
	Voice    config.VoicePreset
	Emotion  string
	// Style SSML express-as 风格
	Style string
	Speed float64
}

// Synthesizer 文本转语音提供商
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error)
	// Extension 音频文件扩展名，不带点
	Extension() string
}

// Narrator 解析音色预设、合成音频并保存，实现 port.Narrator
type Narrator struct {
	synth   Synthesizer
	audio   port.AudioStore
	catalog *config.StoryCatalog
}

// NewNarrator 创建旁白协作方
func NewNarrator(synth Synthesizer, audio port.AudioStore, catalog *config.StoryCatalog) *Narrator {
	return &Narrator{synth: synth, audio: audio, catalog: catalog}
}

var _ port.Narrator = (*Narrator)(nil)

func (n *Narrator) Narrate(ctx context.Context, req port.NarrationRequest) (ref string, err error) {
	ctx, span := tracer.Start(ctx, "speech.narrate", trace.WithAttributes(
		attribute.String("story.job_id", req.JobID),
		attribute.String("story.language", req.Language),
		attribute.String("speech.voice", req.Voice),
	))
	defer func() {
		tracer.Fail(span, err)
		span.End()
	}()

	if strings.TrimSpace(req.Text) == "" {
		return "", fmt.Errorf("narration text is empty")
	}
	synthReq, err := n.resolve(req)
	if err != nil {
		return "", err
	}

	data, err := n.synth.Synthesize(ctx, synthReq)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("speech provider returned no audio")
	}

	name := fmt.Sprintf("%s.%s", req.JobID, n.synth.Extension())
	ref, err = n.audio.Save(ctx, name, data)
	if err != nil {
		return "", fmt.Errorf("save narration audio: %w", err)
	}
	logger.Info(ctx, "narration audio stored",
		"voice", synthReq.Voice.ID,
		"style", synthReq.Style,
		"bytes", len(data),
		"audio_ref", ref,
	)
	return ref, nil
}

// resolve 音色缺省时用该语言的旁白音色，没有则退回默认语言；情绪映射到 SSML 风格
func (n *Narrator) resolve(req port.NarrationRequest) (SynthesisRequest, error) {
	out := SynthesisRequest{
		Text:     req.Text,
		Language: req.Language,
		Emotion:  req.Emotion,
		Speed:    req.Speed,
	}

	var ok bool
	if req.Voice != "" {
		out.Voice, ok = n.catalog.Voice(req.Voice)
	} else if out.Voice, ok = n.catalog.NarratorVoice(req.Language); !ok {
		out.Voice, ok = n.catalog.NarratorVoice(n.catalog.DefaultLanguage())
	}
	if !ok {
		return out, fmt.Errorf("no voice available for voice %q language %q", req.Voice, req.Language)
	}

	if out.Emotion == "" {
		out.Emotion = n.catalog.DefaultEmotion()
	}
	if e, found := n.catalog.Emotion(out.Emotion); found {
		out.Style = e.Style
	}
	if out.Speed == 0 {
		_, _, def := n.catalog.SpeedBounds()
		out.Speed = def
	}
	return out, nil
}
