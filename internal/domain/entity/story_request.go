package entity

import "strings"

// InputKind 故事输入类型
type InputKind string

const (
	InputKindScenario   InputKind = "scenario"
	InputKindImage      InputKind = "image"
	InputKindCharacters InputKind = "characters"
)

// Valid 是否为已知输入类型
func (k InputKind) Valid() bool {
	switch k {
	case InputKindScenario, InputKindImage, InputKindCharacters:
		return true
	}
	return false
}

// Character 角色，Traits 可为空
type Character struct {
	Name   string `json:"name"`
	Traits string `json:"traits,omitempty"`
}

// ScenarioPayload 场景输入
type ScenarioPayload struct {
	Text string `json:"text"`
}

// ImagePayload 图片输入
// Description 为视觉服务给出的图像描述，提交时可能为空，由后台任务补齐；
// Caption 为用户补充说明，只追加不替换。
type ImagePayload struct {
	ImageRef    string `json:"image_ref"`
	Description string `json:"description,omitempty"`
	Caption     string `json:"caption,omitempty"`
}

// CharactersPayload 角色输入
type CharactersPayload struct {
	Characters []Character `json:"characters"`
	Setting    string      `json:"setting,omitempty"`
	Conflict   string      `json:"conflict,omitempty"`
}

// StoryRequest 规范化后的故事请求，构建后不可变；三种载荷只有与 InputKind 对应的一个非空
type StoryRequest struct {
	InputKind  InputKind          `json:"input_kind"`
	Scenario   *ScenarioPayload   `json:"scenario,omitempty"`
	Image      *ImagePayload      `json:"image,omitempty"`
	Characters *CharactersPayload `json:"characters,omitempty"`
	Language   string             `json:"language"`
	Tone       string             `json:"tone"`
	Audience   string             `json:"audience"`
	Length     int                `json:"length"`
}

// PayloadConsistent 校验恰有一个载荷且与 InputKind 匹配
func (r StoryRequest) PayloadConsistent() bool {
	n := 0
	if r.Scenario != nil {
		n++
	}
	if r.Image != nil {
		n++
	}
	if r.Characters != nil {
		n++
	}
	if n != 1 {
		return false
	}
	switch r.InputKind {
	case InputKindScenario:
		return r.Scenario != nil
	case InputKindImage:
		return r.Image != nil
	case InputKindCharacters:
		return r.Characters != nil
	}
	return false
}

// NeedsVision 图片输入且缺少图像描述
func (r StoryRequest) NeedsVision() bool {
	return r.InputKind == InputKindImage && r.Image != nil && strings.TrimSpace(r.Image.Description) == ""
}

// WithImageDescription 返回带图像描述的副本，原请求不变
func (r StoryRequest) WithImageDescription(desc string) StoryRequest {
	if r.Image == nil {
		return r
	}
	img := *r.Image
	img.Description = desc
	r.Image = &img
	return r
}

// Clone 深拷贝
func (r StoryRequest) Clone() StoryRequest {
	if r.Scenario != nil {
		s := *r.Scenario
		r.Scenario = &s
	}
	if r.Image != nil {
		img := *r.Image
		r.Image = &img
	}
	if r.Characters != nil {
		c := *r.Characters
		c.Characters = append([]Character(nil), r.Characters.Characters...)
		r.Characters = &c
	}
	return r
}
