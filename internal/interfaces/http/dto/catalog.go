package dto

import (
	"kahani-story-api/internal/config"
	"kahani-story-api/internal/infrastructure/fixture"
)

// LengthBounds 故事长度（词）
type LengthBounds struct {
	Min     int `json:"min"`
	Max     int `json:"max"`
	Default int `json:"default"`
}

// SpeedBounds 旁白语速
type SpeedBounds struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
}

// CatalogResponse 可接受的语言、语气、受众与长度范围
type CatalogResponse struct {
	Languages       []config.LanguageSpec `json:"languages"`
	Tones           []string              `json:"tones"`
	Audiences       []string              `json:"audiences"`
	InputKinds      []string              `json:"input_kinds"`
	Length          LengthBounds          `json:"length"`
	DefaultLanguage string                `json:"default_language"`
	DefaultTone     string                `json:"default_tone"`
	DefaultAudience string                `json:"default_audience"`
}

// ToCatalogResponse 从故事目录生成响应
func ToCatalogResponse(c *config.StoryCatalog) *CatalogResponse {
	minLen, maxLen, defLen := c.LengthBounds()
	return &CatalogResponse{
		Languages:       c.Languages(),
		Tones:           c.Tones(),
		Audiences:       c.Audiences(),
		InputKinds:      []string{"scenario", "image", "characters"},
		Length:          LengthBounds{Min: minLen, Max: maxLen, Default: defLen},
		DefaultLanguage: c.DefaultLanguage(),
		DefaultTone:     c.DefaultTone(),
		DefaultAudience: c.DefaultAudience(),
	}
}

// VoicesResponse 某语言可用音色
type VoicesResponse struct {
	Language string               `json:"language,omitempty"`
	Voices   []config.VoicePreset `json:"voices"`
	Speed    SpeedBounds          `json:"speed"`
}

// EmotionsResponse 可用旁白情绪
type EmotionsResponse struct {
	Emotions []config.EmotionSpec `json:"emotions"`
	Default  string               `json:"default"`
}

// SamplesResponse 示例场景与角色组
type SamplesResponse struct {
	Scenarios     map[string][]string    `json:"scenarios"`
	CharacterSets []fixture.CharacterSet `json:"character_sets"`
}
