package config

import (
	"fmt"
	"slices"
	"strings"
)

// StoryConfig 故事目录的原始配置（语言、语气、受众、长度边界、占位符、语音）
type StoryConfig struct {
	Languages        []LanguageSpec `yaml:"languages" mapstructure:"languages"`
	Tones            []string       `yaml:"tones" mapstructure:"tones"`
	Audiences        []string       `yaml:"audiences" mapstructure:"audiences"`
	DefaultLanguage  string         `yaml:"default_language" mapstructure:"default_language"`
	DefaultTone      string         `yaml:"default_tone" mapstructure:"default_tone"`
	DefaultAudience  string         `yaml:"default_audience" mapstructure:"default_audience"`
	MinLength        int            `yaml:"min_length" mapstructure:"min_length"`
	MaxLength        int            `yaml:"max_length" mapstructure:"max_length"`
	DefaultLength    int            `yaml:"default_length" mapstructure:"default_length"`
	MaxScenarioChars int            `yaml:"max_scenario_chars" mapstructure:"max_scenario_chars"`
	MaxCharacters    int            `yaml:"max_characters" mapstructure:"max_characters"`

	PlaceholderSetting  string  `yaml:"placeholder_setting" mapstructure:"placeholder_setting"`
	PlaceholderConflict string  `yaml:"placeholder_conflict" mapstructure:"placeholder_conflict"`
	CharacterSeparator  string  `yaml:"character_separator" mapstructure:"character_separator"`
	TokensPerWord       float64 `yaml:"tokens_per_word" mapstructure:"tokens_per_word"`

	Voices         []VoicePreset `yaml:"voices" mapstructure:"voices"`
	Emotions       []EmotionSpec `yaml:"emotions" mapstructure:"emotions"`
	DefaultEmotion string        `yaml:"default_emotion" mapstructure:"default_emotion"`
	MinSpeed       float64       `yaml:"min_speed" mapstructure:"min_speed"`
	MaxSpeed       float64       `yaml:"max_speed" mapstructure:"max_speed"`
	DefaultSpeed   float64       `yaml:"default_speed" mapstructure:"default_speed"`
}

// LanguageSpec 可接受的语言
type LanguageSpec struct {
	Code       string `yaml:"code" mapstructure:"code" json:"code"`
	Name       string `yaml:"name" mapstructure:"name" json:"name"`
	NativeName string `yaml:"native_name" mapstructure:"native_name" json:"native_name"`
	Script     string `yaml:"script" mapstructure:"script" json:"script"`
}

// VoicePreset 旁白音色预设
type VoicePreset struct {
	ID            string `yaml:"id" mapstructure:"id" json:"id"`
	Name          string `yaml:"name" mapstructure:"name" json:"name"`
	Language      string `yaml:"language" mapstructure:"language" json:"language"`
	VoiceID       string `yaml:"voice_id" mapstructure:"voice_id" json:"voice_id"`
	CharacterType string `yaml:"character_type" mapstructure:"character_type" json:"character_type"`
	Emotion       string `yaml:"emotion" mapstructure:"emotion" json:"emotion"`
	Description   string `yaml:"description" mapstructure:"description" json:"description"`
}

// EmotionSpec 旁白情绪，Style 为 SSML express-as 风格
type EmotionSpec struct {
	ID          string `yaml:"id" mapstructure:"id" json:"id"`
	Name        string `yaml:"name" mapstructure:"name" json:"name"`
	Description string `yaml:"description" mapstructure:"description" json:"description"`
	Style       string `yaml:"style" mapstructure:"style" json:"-"`
}

// DefaultStoryConfig 返回内置故事目录
func DefaultStoryConfig() StoryConfig {
	return StoryConfig{
		Languages: []LanguageSpec{
			{Code: "en", Name: "English", NativeName: "English", Script: "Latin"},
			{Code: "hi", Name: "Hindi", NativeName: "हिन्दी", Script: "Devanagari"},
			{Code: "ta", Name: "Tamil", NativeName: "தமிழ்", Script: "Tamil"},
			{Code: "bn", Name: "Bengali", NativeName: "বাংলা", Script: "Bengali"},
			{Code: "te", Name: "Telugu", NativeName: "తెలుగు", Script: "Telugu"},
			{Code: "mr", Name: "Marathi", NativeName: "मराठी", Script: "Devanagari"},
			{Code: "fr", Name: "French", NativeName: "Français", Script: "Latin"},
			{Code: "es", Name: "Spanish", NativeName: "Español", Script: "Latin"},
			{Code: "de", Name: "German", NativeName: "Deutsch", Script: "Latin"},
		},
		Tones: []string{
			"cheerful", "adventurous", "calm", "mysterious", "whimsical",
			"educational", "funny", "heartwarming", "exciting",
		},
		Audiences:        []string{"toddlers", "preschool", "kids", "children", "teens", "adults", "family"},
		DefaultLanguage:  "en",
		DefaultTone:      "cheerful",
		DefaultAudience:  "kids",
		MinLength:        100,
		MaxLength:        2000,
		DefaultLength:    500,
		MaxScenarioChars: 1000,
		MaxCharacters:    8,

		PlaceholderSetting:  "an ordinary day",
		PlaceholderConflict: "an unexpected challenge",
		CharacterSeparator:  ", ",
		TokensPerWord:       2.0,

		Voices: []VoicePreset{
			{ID: "narrator_en", Name: "English Narrator", Language: "en", VoiceID: "en-US-AriaNeural", CharacterType: "narrator", Emotion: "calm", Description: "Clear, engaging narrator voice"},
			{ID: "narrator_hi", Name: "Hindi Narrator", Language: "hi", VoiceID: "hi-IN-SwaraNeural", CharacterType: "narrator", Emotion: "calm", Description: "Clear Hindi narrator voice"},
			{ID: "narrator_ta", Name: "Tamil Narrator", Language: "ta", VoiceID: "ta-IN-PallaviNeural", CharacterType: "narrator", Emotion: "calm", Description: "Clear Tamil narrator voice"},
			{ID: "child_en", Name: "English Child", Language: "en", VoiceID: "en-US-JennyNeural", CharacterType: "child", Emotion: "cheerful", Description: "Playful child character voice"},
			{ID: "hero_en", Name: "English Hero", Language: "en", VoiceID: "en-US-GuyNeural", CharacterType: "adult_male", Emotion: "excited", Description: "Strong, heroic character voice"},
			{ID: "hero_hi", Name: "Hindi Hero", Language: "hi", VoiceID: "hi-IN-MadhurNeural", CharacterType: "adult_male", Emotion: "excited", Description: "Strong Hindi hero voice"},
		},
		Emotions: []EmotionSpec{
			{ID: "neutral", Name: "Neutral", Description: "Natural, conversational tone", Style: "chat"},
			{ID: "cheerful", Name: "Cheerful", Description: "Happy and upbeat", Style: "cheerful"},
			{ID: "excited", Name: "Excited", Description: "Energetic and enthusiastic", Style: "excited"},
			{ID: "calm", Name: "Calm", Description: "Peaceful and soothing", Style: "calm"},
			{ID: "sad", Name: "Sad", Description: "Melancholic and gentle", Style: "sad"},
			{ID: "angry", Name: "Angry", Description: "Intense and forceful", Style: "angry"},
			{ID: "gentle", Name: "Gentle", Description: "Soft and caring", Style: "gentle"},
		},
		DefaultEmotion: "neutral",
		MinSpeed:       0.5,
		MaxSpeed:       2.0,
		DefaultSpeed:   1.0,
	}
}

// withDefaults 用内置目录补齐缺失字段
func (s StoryConfig) withDefaults() StoryConfig {
	d := DefaultStoryConfig()
	if len(s.Languages) == 0 {
		s.Languages = d.Languages
	}
	if len(s.Tones) == 0 {
		s.Tones = d.Tones
	}
	if len(s.Audiences) == 0 {
		s.Audiences = d.Audiences
	}
	if len(s.Voices) == 0 {
		s.Voices = d.Voices
	}
	if len(s.Emotions) == 0 {
		s.Emotions = d.Emotions
	}
	if s.DefaultLanguage == "" {
		s.DefaultLanguage = d.DefaultLanguage
	}
	if s.DefaultTone == "" {
		s.DefaultTone = d.DefaultTone
	}
	if s.DefaultAudience == "" {
		s.DefaultAudience = d.DefaultAudience
	}
	if s.DefaultEmotion == "" {
		s.DefaultEmotion = d.DefaultEmotion
	}
	if s.MinLength <= 0 {
		s.MinLength = d.MinLength
	}
	if s.MaxLength <= 0 {
		s.MaxLength = d.MaxLength
	}
	if s.DefaultLength <= 0 {
		s.DefaultLength = d.DefaultLength
	}
	if s.MaxScenarioChars <= 0 {
		s.MaxScenarioChars = d.MaxScenarioChars
	}
	if s.MaxCharacters <= 0 {
		s.MaxCharacters = d.MaxCharacters
	}
	if s.PlaceholderSetting == "" {
		s.PlaceholderSetting = d.PlaceholderSetting
	}
	if s.PlaceholderConflict == "" {
		s.PlaceholderConflict = d.PlaceholderConflict
	}
	if s.CharacterSeparator == "" {
		s.CharacterSeparator = d.CharacterSeparator
	}
	if s.TokensPerWord <= 0 {
		s.TokensPerWord = d.TokensPerWord
	}
	if s.MinSpeed <= 0 {
		s.MinSpeed = d.MinSpeed
	}
	if s.MaxSpeed <= 0 {
		s.MaxSpeed = d.MaxSpeed
	}
	if s.DefaultSpeed <= 0 {
		s.DefaultSpeed = d.DefaultSpeed
	}
	return s
}

// StoryCatalog 进程启动时构建一次的只读故事目录，显式传入 Normalizer 与 Prompt Builder
type StoryCatalog struct {
	cfg       StoryConfig
	languages map[string]LanguageSpec
	tones     map[string]struct{}
	audiences map[string]struct{}
	voices    map[string]VoicePreset
	emotions  map[string]EmotionSpec
}

// NewStoryCatalog 校验配置并构建目录，缺失字段使用内置默认值
func NewStoryCatalog(raw StoryConfig) (*StoryCatalog, error) {
	s := raw.withDefaults()

	if s.MinLength > s.MaxLength {
		return nil, fmt.Errorf("story catalog: min_length %d exceeds max_length %d", s.MinLength, s.MaxLength)
	}
	if s.DefaultLength < s.MinLength || s.DefaultLength > s.MaxLength {
		return nil, fmt.Errorf("story catalog: default_length %d outside [%d, %d]", s.DefaultLength, s.MinLength, s.MaxLength)
	}
	if s.MinSpeed > s.MaxSpeed {
		return nil, fmt.Errorf("story catalog: min_speed %.2f exceeds max_speed %.2f", s.MinSpeed, s.MaxSpeed)
	}

	c := &StoryCatalog{
		cfg:       cloneStoryConfig(s),
		languages: make(map[string]LanguageSpec, len(s.Languages)),
		tones:     make(map[string]struct{}, len(s.Tones)),
		audiences: make(map[string]struct{}, len(s.Audiences)),
		voices:    make(map[string]VoicePreset, len(s.Voices)),
		emotions:  make(map[string]EmotionSpec, len(s.Emotions)),
	}
	for _, l := range s.Languages {
		code := strings.ToLower(strings.TrimSpace(l.Code))
		if code == "" {
			return nil, fmt.Errorf("story catalog: language with empty code")
		}
		l.Code = code
		c.languages[code] = l
	}
	for _, t := range s.Tones {
		c.tones[strings.ToLower(t)] = struct{}{}
	}
	for _, a := range s.Audiences {
		c.audiences[strings.ToLower(a)] = struct{}{}
	}
	for _, v := range s.Voices {
		c.voices[v.ID] = v
	}
	for _, e := range s.Emotions {
		c.emotions[e.ID] = e
	}

	for field, value := range map[string]string{
		"default_language": s.DefaultLanguage,
		"default_tone":     s.DefaultTone,
		"default_audience": s.DefaultAudience,
		"default_emotion":  s.DefaultEmotion,
	} {
		if !c.known(field, value) {
			return nil, fmt.Errorf("story catalog: %s %q is not in its enumeration", field, value)
		}
	}
	return c, nil
}

// DefaultStoryCatalog 内置目录，构建失败说明内置数据有误
func DefaultStoryCatalog() *StoryCatalog {
	c, err := NewStoryCatalog(DefaultStoryConfig())
	if err != nil {
		panic(err)
	}
	return c
}

func (c *StoryCatalog) known(field, value string) bool {
	switch field {
	case "default_language":
		return c.HasLanguage(value)
	case "default_tone":
		return c.HasTone(value)
	case "default_audience":
		return c.HasAudience(value)
	case "default_emotion":
		return c.HasEmotion(value)
	}
	return false
}

func cloneStoryConfig(s StoryConfig) StoryConfig {
	s.Languages = slices.Clone(s.Languages)
	s.Tones = slices.Clone(s.Tones)
	s.Audiences = slices.Clone(s.Audiences)
	s.Voices = slices.Clone(s.Voices)
	s.Emotions = slices.Clone(s.Emotions)
	return s
}

func (c *StoryCatalog) HasLanguage(code string) bool {
	_, ok := c.languages[strings.ToLower(code)]
	return ok
}

func (c *StoryCatalog) HasTone(tone string) bool {
	_, ok := c.tones[strings.ToLower(tone)]
	return ok
}

func (c *StoryCatalog) HasAudience(audience string) bool {
	_, ok := c.audiences[strings.ToLower(audience)]
	return ok
}

func (c *StoryCatalog) HasEmotion(id string) bool {
	_, ok := c.emotions[id]
	return ok
}

// Language 按代码查找语言
func (c *StoryCatalog) Language(code string) (LanguageSpec, bool) {
	l, ok := c.languages[strings.ToLower(code)]
	return l, ok
}

// Voice 按 ID 查找音色预设
func (c *StoryCatalog) Voice(id string) (VoicePreset, bool) {
	v, ok := c.voices[id]
	return v, ok
}

// Emotion 按 ID 查找情绪
func (c *StoryCatalog) Emotion(id string) (EmotionSpec, bool) {
	e, ok := c.emotions[id]
	return e, ok
}

// NarratorVoice 返回语言对应的默认旁白预设
func (c *StoryCatalog) NarratorVoice(language string) (VoicePreset, bool) {
	for _, v := range c.cfg.Voices {
		if v.Language == language && v.CharacterType == "narrator" {
			return v, true
		}
	}
	return VoicePreset{}, false
}

func (c *StoryCatalog) Languages() []LanguageSpec { return slices.Clone(c.cfg.Languages) }
func (c *StoryCatalog) Tones() []string           { return slices.Clone(c.cfg.Tones) }
func (c *StoryCatalog) Audiences() []string       { return slices.Clone(c.cfg.Audiences) }
func (c *StoryCatalog) Emotions() []EmotionSpec   { return slices.Clone(c.cfg.Emotions) }

// Voices 返回音色预设，language 为空时返回全部
func (c *StoryCatalog) Voices(language string) []VoicePreset {
	out := make([]VoicePreset, 0, len(c.cfg.Voices))
	for _, v := range c.cfg.Voices {
		if language == "" || v.Language == language {
			out = append(out, v)
		}
	}
	return out
}

func (c *StoryCatalog) DefaultLanguage() string { return c.cfg.DefaultLanguage }
func (c *StoryCatalog) DefaultTone() string     { return c.cfg.DefaultTone }
func (c *StoryCatalog) DefaultAudience() string { return c.cfg.DefaultAudience }
func (c *StoryCatalog) DefaultEmotion() string  { return c.cfg.DefaultEmotion }

// LengthBounds 返回 (min, max, default)
func (c *StoryCatalog) LengthBounds() (int, int, int) {
	return c.cfg.MinLength, c.cfg.MaxLength, c.cfg.DefaultLength
}

// SpeedBounds 返回 (min, max, default)
func (c *StoryCatalog) SpeedBounds() (float64, float64, float64) {
	return c.cfg.MinSpeed, c.cfg.MaxSpeed, c.cfg.DefaultSpeed
}

func (c *StoryCatalog) MaxScenarioChars() int { return c.cfg.MaxScenarioChars }
func (c *StoryCatalog) MaxCharacters() int    { return c.cfg.MaxCharacters }

// Placeholders 返回缺省的 setting 与 conflict
func (c *StoryCatalog) Placeholders() (setting, conflict string) {
	return c.cfg.PlaceholderSetting, c.cfg.PlaceholderConflict
}

func (c *StoryCatalog) CharacterSeparator() string { return c.cfg.CharacterSeparator }

// MaxTokensFor 将目标字数换算为生成 token 上限
func (c *StoryCatalog) MaxTokensFor(words int) int {
	return int(float64(words)*c.cfg.TokensPerWord + 0.5)
}
