package dto

import (
	"encoding/json"
	"time"

	"kahani-story-api/internal/application/story"
	"kahani-story-api/internal/domain/entity"
)

// NarrationOptionsRequest 旁白选项
type NarrationOptionsRequest struct {
	GenerateAudio bool    `json:"generate_audio"`
	Voice         string  `json:"voice,omitempty"`
	Emotion       string  `json:"emotion,omitempty"`
	Speed         float64 `json:"speed,omitempty"`
}

// ToRawOptions 转为未校验的旁白选项
func (r NarrationOptionsRequest) ToRawOptions() story.RawOptions {
	return story.RawOptions{
		GenerateAudio: r.GenerateAudio,
		Voice:         r.Voice,
		Emotion:       r.Emotion,
		Speed:         r.Speed,
	}
}

// SubmitStoryRequest 提交故事请求，payload 的结构由 input_kind 决定
type SubmitStoryRequest struct {
	InputKind      string                  `json:"input_kind"`
	Payload        json.RawMessage         `json:"payload"`
	Language       string                  `json:"language,omitempty"`
	Tone           string                  `json:"tone,omitempty"`
	TargetAudience string                  `json:"target_audience,omitempty"`
	Length         int                     `json:"length,omitempty"`
	Options        NarrationOptionsRequest `json:"options"`
}

// ToRawInput 转为未校验的输入
func (r SubmitStoryRequest) ToRawInput() story.RawInput {
	return story.RawInput{
		InputKind: r.InputKind,
		Payload:   r.Payload,
		Language:  r.Language,
		Tone:      r.Tone,
		Audience:  r.TargetAudience,
		Length:    r.Length,
	}
}

// SubmitStoryResponse 提交结果
type SubmitStoryResponse struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Stage    string `json:"stage"`
	ParentID string `json:"parent_id,omitempty"`
}

// ToSubmitStoryResponse 将任务转换为提交结果
func ToSubmitStoryResponse(job *entity.StoryJob) *SubmitStoryResponse {
	return &SubmitStoryResponse{
		ID:       job.ID,
		Kind:     string(job.Kind),
		Stage:    string(job.Stage),
		ParentID: job.ParentID,
	}
}

// FailureResponse 失败信息
type FailureResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// StoryResponse 任务状态快照
type StoryResponse struct {
	ID               string                  `json:"id"`
	Kind             string                  `json:"kind"`
	ParentID         string                  `json:"parent_id,omitempty"`
	Stage            string                  `json:"stage"`
	Request          entity.StoryRequest     `json:"request"`
	Options          entity.NarrationOptions `json:"options"`
	ImageDescription string                  `json:"image_description,omitempty"`
	Title            string                  `json:"title,omitempty"`
	StoryText        string                  `json:"story_text,omitempty"`
	WordCount        int                     `json:"word_count,omitempty"`
	AudioRef         string                  `json:"audio_ref,omitempty"`
	Error            *FailureResponse        `json:"error,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
	CompletedAt      *time.Time              `json:"completed_at,omitempty"`
}

// ToStoryResponse 将领域实体转换为响应 DTO
func ToStoryResponse(job *entity.StoryJob) *StoryResponse {
	if job == nil {
		return nil
	}
	resp := &StoryResponse{
		ID:               job.ID,
		Kind:             string(job.Kind),
		ParentID:         job.ParentID,
		Stage:            string(job.Stage),
		Request:          job.Request,
		Options:          job.Options,
		ImageDescription: job.ImageDescription,
		Title:            job.Title,
		StoryText:        job.StoryText,
		WordCount:        job.WordCount,
		AudioRef:         job.AudioRef,
		CreatedAt:        job.CreatedAt,
		UpdatedAt:        job.UpdatedAt,
		CompletedAt:      job.CompletedAt,
	}
	if job.Failure != nil {
		resp.Error = &FailureResponse{Kind: string(job.Failure.Kind), Message: job.Failure.Message}
	}
	return resp
}

// StoryEvent SSE 阶段事件
type StoryEvent struct {
	ID       string           `json:"id"`
	Stage    string           `json:"stage"`
	Title    string           `json:"title,omitempty"`
	AudioRef string           `json:"audio_ref,omitempty"`
	Error    *FailureResponse `json:"error,omitempty"`
}

// ToStoryEvent 从快照生成阶段事件
func ToStoryEvent(job *entity.StoryJob) StoryEvent {
	ev := StoryEvent{
		ID:       job.ID,
		Stage:    string(job.Stage),
		Title:    job.Title,
		AudioRef: job.AudioRef,
	}
	if job.Failure != nil {
		ev.Error = &FailureResponse{Kind: string(job.Failure.Kind), Message: job.Failure.Message}
	}
	return ev
}
