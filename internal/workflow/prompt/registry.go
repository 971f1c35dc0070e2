// Package prompt 管理按 (输入类型, 语言) 注册的故事提示词模板
package prompt

import (
	"embed"
	"errors"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"kahani-story-api/internal/domain/entity"
)

//go:embed templates/*.txt templates/*/*.txt
var templatesFS embed.FS

// ReasonUnsupportedLanguage 语言没有注册模板
const ReasonUnsupportedLanguage = "unsupported language for templates"

// TemplateKey 模板策略键
type TemplateKey struct {
	Kind     entity.InputKind
	Language string
}

// ID 模板标识，如 "characters/hi"
func (k TemplateKey) ID() string {
	return string(k.Kind) + "/" + k.Language
}

type compiled struct {
	tpl          einoprompt.ChatTemplate
	captionLabel string
	hasSystem    bool
}

// Registry 惰性编译并缓存 eino ChatTemplate；每种语言一个目录，
// 目录内 header.txt 为与输入类型无关的母语头部，system.txt 为可选的本地化系统指令。
type Registry struct {
	fsys  fs.FS
	mu    sync.RWMutex
	cache map[TemplateKey]*compiled
}

// NewRegistry 使用内嵌模板
func NewRegistry() *Registry {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		panic(err)
	}
	return NewRegistryFS(sub)
}

// NewRegistryFS 使用指定的模板目录，便于测试替换模板表
func NewRegistryFS(fsys fs.FS) *Registry {
	return &Registry{
		fsys:  fsys,
		cache: make(map[TemplateKey]*compiled),
	}
}

// Languages 返回已注册模板的语言，按代码排序
func (r *Registry) Languages() []string {
	entries, err := fs.ReadDir(r.fsys, ".")
	if err != nil {
		return nil
	}
	var langs []string
	for _, e := range entries {
		if e.IsDir() && r.exists(path.Join(e.Name(), "header.txt")) {
			langs = append(langs, e.Name())
		}
	}
	sort.Strings(langs)
	return langs
}

// Supports 是否存在 (kind, language) 的模板
func (r *Registry) Supports(kind entity.InputKind, language string) bool {
	return r.exists(path.Join(language, "header.txt")) && r.exists(path.Join(language, string(kind)+".txt"))
}

func (r *Registry) chatTemplate(key TemplateKey) (*compiled, error) {
	r.mu.RLock()
	if c, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return c, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.cache[key]; ok {
		return c, nil
	}

	if key.Language == "" || strings.ContainsAny(key.Language, "/.") || !r.Supports(key.Kind, key.Language) {
		return nil, &entity.TemplateError{Language: key.Language, InputKind: key.Kind, Reason: ReasonUnsupportedLanguage}
	}

	header, err := r.read(path.Join(key.Language, "header.txt"))
	if err != nil {
		return nil, err
	}
	body, err := r.read(path.Join(key.Language, string(key.Kind)+".txt"))
	if err != nil {
		return nil, err
	}
	directives, err := r.read("directives.txt")
	if err != nil {
		return nil, err
	}
	captionLabel, err := r.readOptional(path.Join(key.Language, "caption.txt"))
	if err != nil {
		return nil, err
	}
	system, err := r.readOptional(path.Join(key.Language, "system.txt"))
	if err != nil {
		return nil, err
	}

	user := schema.UserMessage(header + "\n\n" + body + "\n\n" + directives)
	var tpl einoprompt.ChatTemplate
	if system != "" {
		tpl = einoprompt.FromMessages(schema.FString, schema.SystemMessage(system), user)
	} else {
		tpl = einoprompt.FromMessages(schema.FString, user)
	}

	c := &compiled{tpl: tpl, captionLabel: captionLabel, hasSystem: system != ""}
	r.cache[key] = c
	return c, nil
}

func (r *Registry) exists(name string) bool {
	_, err := fs.Stat(r.fsys, name)
	return err == nil
}

func (r *Registry) read(name string) (string, error) {
	b, err := fs.ReadFile(r.fsys, name)
	if err != nil {
		return "", &entity.TemplateError{Reason: "template file " + name + " is unreadable: " + err.Error()}
	}
	return strings.TrimSpace(string(b)), nil
}

func (r *Registry) readOptional(name string) (string, error) {
	b, err := fs.ReadFile(r.fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
