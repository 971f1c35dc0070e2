package entity

import (
	"strings"
	"unicode/utf8"
)

const maxTitleRunes = 120

// SetStoryText 记录生成文本，并提取标题与字数
func (j *StoryJob) SetStoryText(text string) {
	text = strings.TrimSpace(text)
	j.StoryText = text
	j.Title = ExtractTitle(text)
	j.WordCount = CountWords(text)
}

// ExtractTitle 取首行的 "Title:" 或 Markdown 标题作为故事标题，没有则返回空
func ExtractTitle(text string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	first = strings.TrimSpace(first)

	var title string
	switch {
	case strings.HasPrefix(first, "#"):
		title = strings.TrimLeft(first, "# ")
	case len(first) >= 6 && strings.EqualFold(first[:6], "title:"):
		title = first[6:]
	default:
		return ""
	}
	title = strings.Trim(strings.TrimSpace(title), `*"`)
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = string([]rune(title)[:maxTitleRunes])
	}
	return title
}

// CountWords 按空白切分计数，适用于天城文与泰米尔文
func CountWords(text string) int {
	return len(strings.Fields(text))
}
