// Package story 实现故事请求的规范化、任务编排与后台执行
package story

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"kahani-story-api/internal/config"
	"kahani-story-api/internal/domain/entity"
)

// RawInput 未经校验的客户端输入，Payload 的结构由 InputKind 决定
type RawInput struct {
	InputKind string          `json:"input_kind"`
	Payload   json.RawMessage `json:"payload"`
	Language  string          `json:"language"`
	Tone      string          `json:"tone"`
	Audience  string          `json:"target_audience"`
	Length    int             `json:"length"`
}

// RawOptions 未经校验的旁白选项
type RawOptions struct {
	GenerateAudio bool    `json:"generate_audio"`
	Voice         string  `json:"voice"`
	Emotion       string  `json:"emotion"`
	Speed         float64 `json:"speed"`
}

type scenarioInput struct {
	Scenario string `json:"scenario"`
}

type imageInput struct {
	ImageURL    string `json:"image_url"`
	Description string `json:"description"`
	Caption     string `json:"caption"`
}

type charactersInput struct {
	Characters []entity.Character `json:"characters"`
	Setting    string             `json:"setting"`
	Conflict   string             `json:"conflict"`
}

// Normalizer 将三种输入形态转换为 StoryRequest，不做任何 I/O
type Normalizer struct {
	catalog *config.StoryCatalog
}

// NewNormalizer 创建规范化器
func NewNormalizer(catalog *config.StoryCatalog) *Normalizer {
	return &Normalizer{catalog: catalog}
}

// Normalize 校验并构建 StoryRequest
func (n *Normalizer) Normalize(raw RawInput) (entity.StoryRequest, error) {
	kind := entity.InputKind(strings.ToLower(strings.TrimSpace(raw.InputKind)))
	if !kind.Valid() {
		return entity.StoryRequest{}, &entity.UnsupportedInputKindError{Kind: raw.InputKind}
	}

	req := entity.StoryRequest{InputKind: kind}
	var err error
	switch kind {
	case entity.InputKindScenario:
		req.Scenario, err = n.scenario(raw.Payload)
	case entity.InputKindImage:
		req.Image, err = n.image(raw.Payload)
	case entity.InputKindCharacters:
		req.Characters, err = n.characters(raw.Payload)
	}
	if err != nil {
		return entity.StoryRequest{}, err
	}

	if req.Language, err = n.enum("language", raw.Language, n.catalog.DefaultLanguage(), n.catalog.HasLanguage); err != nil {
		return entity.StoryRequest{}, err
	}
	if req.Tone, err = n.enum("tone", raw.Tone, n.catalog.DefaultTone(), n.catalog.HasTone); err != nil {
		return entity.StoryRequest{}, err
	}
	if req.Audience, err = n.enum("target_audience", raw.Audience, n.catalog.DefaultAudience(), n.catalog.HasAudience); err != nil {
		return entity.StoryRequest{}, err
	}
	if req.Length, err = n.length(raw.Length); err != nil {
		return entity.StoryRequest{}, err
	}
	return req, nil
}

// NormalizeOptions 校验旁白选项；未请求音频时只校验显式给出的字段
func (n *Normalizer) NormalizeOptions(raw RawOptions, language string) (entity.NarrationOptions, error) {
	opts := entity.NarrationOptions{GenerateAudio: raw.GenerateAudio}

	voice := strings.TrimSpace(raw.Voice)
	if voice != "" {
		v, ok := n.catalog.Voice(voice)
		if !ok {
			return opts, &entity.ValidationError{Field: "voice", Reason: fmt.Sprintf("unknown voice preset %q", voice)}
		}
		if v.Language != "" && v.Language != language {
			return opts, &entity.ValidationError{Field: "voice", Reason: fmt.Sprintf("voice preset %q does not support language %q", voice, language)}
		}
	} else if raw.GenerateAudio {
		if v, ok := n.catalog.NarratorVoice(language); ok {
			voice = v.ID
		}
	}
	opts.Voice = voice

	emotion := strings.ToLower(strings.TrimSpace(raw.Emotion))
	if emotion == "" && raw.GenerateAudio {
		emotion = n.catalog.DefaultEmotion()
	}
	if emotion != "" && !n.catalog.HasEmotion(emotion) {
		return opts, &entity.ValidationError{Field: "emotion", Reason: fmt.Sprintf("unknown emotion %q", emotion)}
	}
	opts.Emotion = emotion

	lo, hi, def := n.catalog.SpeedBounds()
	speed := raw.Speed
	if speed == 0 && raw.GenerateAudio {
		speed = def
	}
	if speed != 0 && (speed < lo || speed > hi) {
		return opts, &entity.ValidationError{Field: "speed", Reason: fmt.Sprintf("must be between %.2f and %.2f", lo, hi)}
	}
	opts.Speed = speed
	return opts, nil
}

func (n *Normalizer) scenario(payload json.RawMessage) (*entity.ScenarioPayload, error) {
	var in scenarioInput
	if err := decodePayload(payload, &in); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(in.Scenario)
	if text == "" {
		return nil, &entity.ValidationError{Field: "scenario", Reason: "must not be empty"}
	}
	if limit := n.catalog.MaxScenarioChars(); utf8.RuneCountInString(text) > limit {
		return nil, &entity.ValidationError{Field: "scenario", Reason: fmt.Sprintf("must be at most %d characters", limit)}
	}
	return &entity.ScenarioPayload{Text: text}, nil
}

func (n *Normalizer) image(payload json.RawMessage) (*entity.ImagePayload, error) {
	var in imageInput
	if err := decodePayload(payload, &in); err != nil {
		return nil, err
	}
	ref := strings.TrimSpace(in.ImageURL)
	if ref == "" {
		return nil, &entity.ValidationError{Field: "image_url", Reason: "an image reference is required"}
	}
	return &entity.ImagePayload{
		ImageRef:    ref,
		Description: strings.TrimSpace(in.Description),
		Caption:     strings.TrimSpace(in.Caption),
	}, nil
}

func (n *Normalizer) characters(payload json.RawMessage) (*entity.CharactersPayload, error) {
	var in charactersInput
	if err := decodePayload(payload, &in); err != nil {
		return nil, err
	}
	if len(in.Characters) == 0 {
		return nil, &entity.ValidationError{Field: "characters", Reason: "at least one character is required"}
	}
	if limit := n.catalog.MaxCharacters(); len(in.Characters) > limit {
		return nil, &entity.ValidationError{Field: "characters", Reason: fmt.Sprintf("at most %d characters are allowed", limit)}
	}

	out := &entity.CharactersPayload{
		Characters: make([]entity.Character, 0, len(in.Characters)),
		Setting:    strings.TrimSpace(in.Setting),
		Conflict:   strings.TrimSpace(in.Conflict),
	}
	for i, c := range in.Characters {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, &entity.ValidationError{Field: fmt.Sprintf("characters[%d].name", i), Reason: "must not be empty"}
		}
		out.Characters = append(out.Characters, entity.Character{Name: name, Traits: strings.TrimSpace(c.Traits)})
	}
	return out, nil
}

func (n *Normalizer) enum(field, value, def string, known func(string) bool) (string, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return def, nil
	}
	if !known(v) {
		return "", &entity.ValidationError{Field: field, Reason: fmt.Sprintf("unsupported value %q", value)}
	}
	return v, nil
}

// length 越界直接拒绝，不做截断
func (n *Normalizer) length(v int) (int, error) {
	lo, hi, def := n.catalog.LengthBounds()
	if v == 0 {
		return def, nil
	}
	if v < lo || v > hi {
		return 0, &entity.ValidationError{Field: "length", Reason: fmt.Sprintf("must be between %d and %d words", lo, hi)}
	}
	return v, nil
}

func decodePayload(payload json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return &entity.ValidationError{Field: "payload", Reason: "is required"}
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return &entity.ValidationError{Field: "payload", Reason: "does not match the input kind"}
	}
	return nil
}
