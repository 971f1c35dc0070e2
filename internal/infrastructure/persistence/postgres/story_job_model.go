package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"kahani-story-api/internal/domain/entity"
)

// storyJobModel story_jobs 表；请求与旁白选项以 JSONB 保存
type storyJobModel struct {
	ID               string     `gorm:"primaryKey;type:varchar(36)"`
	Kind             string     `gorm:"type:varchar(16);not null;index"`
	ParentID         string     `gorm:"type:varchar(36);index"`
	InputKind        string     `gorm:"type:varchar(16);not null"`
	Language         string     `gorm:"type:varchar(8);not null;index"`
	Stage            string     `gorm:"type:varchar(16);not null;index"`
	Request          string     `gorm:"type:jsonb;not null"`
	Options          string     `gorm:"type:jsonb;not null"`
	ImageDescription string     `gorm:"type:text"`
	Title            string     `gorm:"type:varchar(255)"`
	StoryText        string     `gorm:"type:text"`
	WordCount        int        `gorm:"not null;default:0"`
	AudioRef         string     `gorm:"type:varchar(512)"`
	FailureKind      string     `gorm:"type:varchar(32)"`
	FailureMessage   string     `gorm:"type:text"`
	CreatedAt        time.Time  `gorm:"not null;index"`
	UpdatedAt        time.Time  `gorm:"not null"`
	CompletedAt      *time.Time `gorm:"index"`
}

func (storyJobModel) TableName() string {
	return "story_jobs"
}

func toModel(job *entity.StoryJob) (*storyJobModel, error) {
	req, err := json.Marshal(job.Request)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	opts, err := json.Marshal(job.Options)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}
	m := &storyJobModel{
		ID:               job.ID,
		Kind:             string(job.Kind),
		ParentID:         job.ParentID,
		InputKind:        string(job.Request.InputKind),
		Language:         job.Request.Language,
		Stage:            string(job.Stage),
		Request:          string(req),
		Options:          string(opts),
		ImageDescription: job.ImageDescription,
		Title:            job.Title,
		StoryText:        job.StoryText,
		WordCount:        job.WordCount,
		AudioRef:         job.AudioRef,
		CreatedAt:        job.CreatedAt.UTC(),
		UpdatedAt:        job.UpdatedAt.UTC(),
	}
	if job.Failure != nil {
		m.FailureKind = string(job.Failure.Kind)
		m.FailureMessage = job.Failure.Message
	}
	if job.CompletedAt != nil {
		t := job.CompletedAt.UTC()
		m.CompletedAt = &t
	}
	return m, nil
}

func (m *storyJobModel) toEntity() (*entity.StoryJob, error) {
	job := &entity.StoryJob{
		ID:               m.ID,
		Kind:             entity.JobKind(m.Kind),
		ParentID:         m.ParentID,
		Stage:            entity.Stage(m.Stage),
		ImageDescription: m.ImageDescription,
		Title:            m.Title,
		StoryText:        m.StoryText,
		WordCount:        m.WordCount,
		AudioRef:         m.AudioRef,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
		CompletedAt:      m.CompletedAt,
	}
	if err := json.Unmarshal([]byte(m.Request), &job.Request); err != nil {
		return nil, fmt.Errorf("unmarshal request of job %s: %w", m.ID, err)
	}
	if err := json.Unmarshal([]byte(m.Options), &job.Options); err != nil {
		return nil, fmt.Errorf("unmarshal options of job %s: %w", m.ID, err)
	}
	if m.FailureKind != "" {
		job.Failure = &entity.Failure{Kind: entity.FailureKind(m.FailureKind), Message: m.FailureMessage}
	}
	return job, nil
}
