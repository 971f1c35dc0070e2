package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"kahani-story-api/internal/config"
	"kahani-story-api/internal/domain/entity"
)

// PromptSpec 一次请求渲染出的提示词，不持久化
type PromptSpec struct {
	TemplateID        string
	Language          string
	Tone              string
	Audience          string
	Length            int
	SystemInstruction string
	RenderedText      string
	MaxTokens         int
}

// Builder 根据请求与模板表渲染提示词，纯函数，不回退到其他语言
type Builder struct {
	registry *Registry
	catalog  *config.StoryCatalog
}

// NewBuilder 创建提示词构建器
func NewBuilder(registry *Registry, catalog *config.StoryCatalog) *Builder {
	return &Builder{registry: registry, catalog: catalog}
}

// Build 渲染 header + body + directives
func (b *Builder) Build(ctx context.Context, req entity.StoryRequest) (*PromptSpec, error) {
	if !req.PayloadConsistent() {
		return nil, &entity.ValidationError{Field: "input_kind", Reason: "payload does not match input kind"}
	}
	if req.InputKind == entity.InputKindImage && strings.TrimSpace(req.Image.Description) == "" {
		return nil, &entity.ValidationError{Field: "image", Reason: "image has not been described"}
	}

	key := TemplateKey{Kind: req.InputKind, Language: req.Language}
	c, err := b.registry.chatTemplate(key)
	if err != nil {
		return nil, err
	}

	msgs, err := c.tpl.Format(ctx, b.variables(req, c.captionLabel))
	if err != nil {
		return nil, &entity.TemplateError{Language: req.Language, InputKind: req.InputKind, Reason: "render failed: " + err.Error()}
	}

	spec := &PromptSpec{
		TemplateID: key.ID(),
		Language:   req.Language,
		Tone:       req.Tone,
		Audience:   req.Audience,
		Length:     req.Length,
		MaxTokens:  b.catalog.MaxTokensFor(req.Length),
	}
	for _, m := range msgs {
		switch m.Role {
		case schema.System:
			spec.SystemInstruction = m.Content
		case schema.User:
			spec.RenderedText = m.Content
		}
	}
	return spec, nil
}

func (b *Builder) variables(req entity.StoryRequest, captionLabel string) map[string]any {
	langName, nativeName := req.Language, req.Language
	if l, ok := b.catalog.Language(req.Language); ok {
		langName, nativeName = l.Name, l.NativeName
	}
	setting, conflict := b.catalog.Placeholders()

	vars := map[string]any{
		"language_name":     langName,
		"native_name":       nativeName,
		"tone":              req.Tone,
		"audience":          req.Audience,
		"length":            req.Length,
		"scenario":          "",
		"image_description": "",
		"caption_line":      "",
		"characters":        "",
		"setting":           setting,
		"conflict":          conflict,
	}

	switch req.InputKind {
	case entity.InputKindScenario:
		vars["scenario"] = req.Scenario.Text
	case entity.InputKindImage:
		vars["image_description"] = req.Image.Description
		if req.Image.Caption != "" {
			vars["caption_line"] = "\n" + captionLabel + " " + req.Image.Caption
		}
	case entity.InputKindCharacters:
		vars["characters"] = formatCharacters(req.Characters.Characters, b.catalog.CharacterSeparator())
		if req.Characters.Setting != "" {
			vars["setting"] = req.Characters.Setting
		}
		if req.Characters.Conflict != "" {
			vars["conflict"] = req.Characters.Conflict
		}
	}
	return vars
}

// formatCharacters 格式化为 "{name} ({traits})"，无特征时只保留名字
func formatCharacters(chars []entity.Character, sep string) string {
	parts := make([]string, 0, len(chars))
	for _, c := range chars {
		if c.Traits == "" {
			parts = append(parts, c.Name)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", c.Name, c.Traits))
	}
	return strings.Join(parts, sep)
}
