// Package entity 定义领域实体
package entity

import (
	"time"
)

// JobKind 任务类型
type JobKind string

const (
	// JobKindStory 生成故事，可选带旁白
	JobKindStory JobKind = "story"
	// JobKindNarration 为已完成的故事重新生成旁白
	JobKindNarration JobKind = "narration"
)

// Stage 任务阶段
type Stage string

const (
	StageQueued     Stage = "queued"
	StageGenerating Stage = "generating"
	StageGenerated  Stage = "generated"
	StageNarrating  Stage = "narrating"
	StageComplete   Stage = "complete"
	StageFailed     Stage = "failed"
)

// AllStages 全部阶段，按生命周期顺序
var AllStages = []Stage{StageQueued, StageGenerating, StageGenerated, StageNarrating, StageComplete, StageFailed}

// IsTerminal 是否终态
func (s Stage) IsTerminal() bool {
	return s == StageComplete || s == StageFailed
}

// Valid 是否为已知阶段
func (s Stage) Valid() bool {
	for _, st := range AllStages {
		if s == st {
			return true
		}
	}
	return false
}

var storyTransitions = map[Stage][]Stage{
	StageQueued:     {StageGenerating, StageFailed},
	StageGenerating: {StageGenerated, StageFailed},
	StageGenerated:  {StageNarrating, StageComplete, StageFailed},
	StageNarrating:  {StageComplete, StageFailed},
}

var narrationTransitions = map[Stage][]Stage{
	StageQueued:    {StageNarrating, StageFailed},
	StageNarrating: {StageComplete, StageFailed},
}

// CanTransition 判断某类任务从 from 到 to 是否合法，终态没有出边
func CanTransition(kind JobKind, from, to Stage) bool {
	table := storyTransitions
	if kind == JobKindNarration {
		table = narrationTransitions
	}
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

// FailureKind 失败类型，对外稳定
type FailureKind string

const (
	FailureValidation         FailureKind = "validation"
	FailureTemplate           FailureKind = "template"
	FailureGenerationUpstream FailureKind = "generation_upstream"
	FailureNarrationUpstream  FailureKind = "narration_upstream"
	FailureVisionUpstream     FailureKind = "vision_upstream"
	FailureDispatch           FailureKind = "dispatch"
)

// Failure 失败信息，仅在 failed 阶段存在
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// NarrationOptions 旁白选项
type NarrationOptions struct {
	GenerateAudio bool    `json:"generate_audio"`
	Voice         string  `json:"voice,omitempty"`
	Emotion       string  `json:"emotion,omitempty"`
	Speed         float64 `json:"speed,omitempty"`
}

// StoryJob 故事任务
type StoryJob struct {
	ID       string           `json:"id"`
	Kind     JobKind          `json:"kind"`
	ParentID string           `json:"parent_id,omitempty"`
	Request  StoryRequest     `json:"request"`
	Options  NarrationOptions `json:"options"`
	Stage    Stage            `json:"stage"`

	// ImageDescription 后台视觉步骤得到的图像描述
	ImageDescription string `json:"image_description,omitempty"`

	Title     string   `json:"title,omitempty"`
	StoryText string   `json:"story_text,omitempty"`
	WordCount int      `json:"word_count,omitempty"`
	AudioRef  string   `json:"audio_ref,omitempty"`
	Failure   *Failure `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewStoryJob 创建 queued 状态的故事任务
func NewStoryJob(id string, req StoryRequest, opts NarrationOptions, now time.Time) *StoryJob {
	return &StoryJob{
		ID:        id,
		Kind:      JobKindStory,
		Request:   req,
		Options:   opts,
		Stage:     StageQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewNarrationJob 为已完成的故事创建独立的旁白任务
func NewNarrationJob(id string, parent *StoryJob, opts NarrationOptions, now time.Time) *StoryJob {
	opts.GenerateAudio = true
	return &StoryJob{
		ID:        id,
		Kind:      JobKindNarration,
		ParentID:  parent.ID,
		Request:   parent.Request.Clone(),
		Options:   opts,
		Stage:     StageQueued,
		Title:     parent.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo 推进阶段，非法迁移返回 *ConsistencyError 且不修改任务
func (j *StoryJob) TransitionTo(to Stage, now time.Time) error {
	if !CanTransition(j.Kind, j.Stage, to) {
		return &ConsistencyError{JobID: j.ID, Kind: j.Kind, From: j.Stage, To: to}
	}
	j.Stage = to
	j.UpdatedAt = now
	if to.IsTerminal() {
		t := now
		j.CompletedAt = &t
	}
	return nil
}

// Fail 迁移到 failed 并记录失败信息
func (j *StoryJob) Fail(kind FailureKind, message string, now time.Time) error {
	if err := j.TransitionTo(StageFailed, now); err != nil {
		return err
	}
	j.Failure = &Failure{Kind: kind, Message: message}
	return nil
}

// HasAudio 是否已有旁白音频
func (j *StoryJob) HasAudio() bool {
	return j.AudioRef != ""
}

// Clone 深拷贝，用于返回只读快照
func (j *StoryJob) Clone() *StoryJob {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Request = j.Request.Clone()
	if j.Failure != nil {
		f := *j.Failure
		cp.Failure = &f
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// StoryJobSummary 列表用的轻量投影
type StoryJobSummary struct {
	ID          string      `json:"id"`
	Kind        JobKind     `json:"kind"`
	ParentID    string      `json:"parent_id,omitempty"`
	InputKind   InputKind   `json:"input_kind"`
	Language    string      `json:"language"`
	Stage       Stage       `json:"stage"`
	Title       string      `json:"title,omitempty"`
	HasAudio    bool        `json:"has_audio"`
	FailureKind FailureKind `json:"failure_kind,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Summary 生成轻量投影
func (j *StoryJob) Summary() StoryJobSummary {
	s := StoryJobSummary{
		ID:        j.ID,
		Kind:      j.Kind,
		ParentID:  j.ParentID,
		InputKind: j.Request.InputKind,
		Language:  j.Request.Language,
		Stage:     j.Stage,
		Title:     j.Title,
		HasAudio:  j.HasAudio(),
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
	if j.Failure != nil {
		s.FailureKind = j.Failure.Kind
	}
	return s
}
