package fixture

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"kahani-story-api/internal/domain/entity"
)

//go:embed data/samples.json
var samplesJSON []byte

// CharacterSet 一组示例角色
type CharacterSet struct {
	Characters []entity.Character `json:"characters"`
	Setting    string             `json:"setting"`
	Conflict   string             `json:"conflict"`
}

// Samples 示例场景（按语言）与示例角色组
type Samples struct {
	Scenarios     map[string][]string `json:"scenarios"`
	CharacterSets []CharacterSet      `json:"character_sets"`
}

// LoadSamples 解析内置示例
func LoadSamples() (*Samples, error) {
	var s Samples
	if err := json.Unmarshal(samplesJSON, &s); err != nil {
		return nil, fmt.Errorf("parse samples: %w", err)
	}
	return &s, nil
}

// ScenariosFor 指定语言的示例场景，语言为空时返回全部语言
func (s *Samples) ScenariosFor(language string) map[string][]string {
	out := make(map[string][]string)
	for lang, list := range s.Scenarios {
		if language != "" && lang != language {
			continue
		}
		out[lang] = append([]string(nil), list...)
	}
	return out
}
