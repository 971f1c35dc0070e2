package speech

import (
	"context"
	"fmt"
	"io"

	openaigo "github.com/sashabaranov/go-openai"

	"kahani-story-api/internal/config"
)

// OpenAISynthesizer 基于 OpenAI TTS 接口
type OpenAISynthesizer struct {
	client *openaigo.Client
	model  string
	voice  string
}

// NewOpenAISynthesizer 创建 OpenAI 语音合成器
func NewOpenAISynthesizer(cfg config.OpenAISpeechConfig) *OpenAISynthesizer {
	clientCfg := openaigo.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = string(openaigo.TTSModel1)
	}
	voice := cfg.Voice
	if voice == "" {
		voice = string(openaigo.VoiceAlloy)
	}
	return &OpenAISynthesizer{client: openaigo.NewClientWithConfig(clientCfg), model: model, voice: voice}
}

func (s *OpenAISynthesizer) Extension() string { return "mp3" }

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error) {
	resp, err := s.client.CreateSpeech(ctx, openaigo.CreateSpeechRequest{
		Model:          openaigo.SpeechModel(s.model),
		Input:          req.Text,
		Voice:          s.voiceFor(req.Voice),
		ResponseFormat: openaigo.SpeechResponseFormatMp3,
		Speed:          req.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read openai speech body: %w", err)
	}
	return data, nil
}

// voiceFor OpenAI 没有按语言区分的音色，按角色类型挑选
func (s *OpenAISynthesizer) voiceFor(preset config.VoicePreset) openaigo.SpeechVoice {
	switch preset.CharacterType {
	case "child":
		return openaigo.VoiceNova
	case "adult_male":
		return openaigo.VoiceOnyx
	case "adult_female":
		return openaigo.VoiceShimmer
	case "elderly":
		return openaigo.VoiceFable
	default:
		return openaigo.SpeechVoice(s.voice)
	}
}
