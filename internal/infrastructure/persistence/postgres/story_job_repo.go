package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"kahani-story-api/internal/domain/entity"
	"kahani-story-api/internal/domain/repository"
)

// StoryJobRepository 故事任务仓储实现
type StoryJobRepository struct {
	client *Client
}

// NewStoryJobRepository 创建任务仓储
func NewStoryJobRepository(client *Client) *StoryJobRepository {
	return &StoryJobRepository{client: client}
}

var _ repository.StoryJobRepository = (*StoryJobRepository)(nil)

// Create 创建任务
func (r *StoryJobRepository) Create(ctx context.Context, job *entity.StoryJob) error {
	ctx, span := tracer.Start(ctx, "postgres.StoryJobRepository.Create")
	defer span.End()

	m, err := toModel(job)
	if err != nil {
		return err
	}
	db := getDB(ctx, r.client.db)
	if err := db.Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repository.ErrAlreadyExists
		}
		span.RecordError(err)
		return fmt.Errorf("failed to create story job: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取任务
func (r *StoryJobRepository) GetByID(ctx context.Context, id string) (*entity.StoryJob, error) {
	ctx, span := tracer.Start(ctx, "postgres.StoryJobRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var m storyJobModel
	if err := db.First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get story job: %w", err)
	}
	return m.toEntity()
}

// UpdateStage 以 stage 为条件整行更新
func (r *StoryJobRepository) UpdateStage(ctx context.Context, job *entity.StoryJob, from entity.Stage) error {
	ctx, span := tracer.Start(ctx, "postgres.StoryJobRepository.UpdateStage")
	defer span.End()

	m, err := toModel(job)
	if err != nil {
		return err
	}
	db := getDB(ctx, r.client.db)
	result := db.Model(&storyJobModel{}).
		Where("id = ? AND stage = ?", job.ID, string(from)).
		Updates(map[string]interface{}{
			"stage":             m.Stage,
			"options":           m.Options,
			"image_description": m.ImageDescription,
			"title":             m.Title,
			"story_text":        m.StoryText,
			"word_count":        m.WordCount,
			"audio_ref":         m.AudioRef,
			"failure_kind":      m.FailureKind,
			"failure_message":   m.FailureMessage,
			"updated_at":        m.UpdatedAt,
			"completed_at":      m.CompletedAt,
		})
	if result.Error != nil {
		span.RecordError(result.Error)
		return fmt.Errorf("failed to update story job: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := db.Model(&storyJobModel{}).Where("id = ?", job.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check story job: %w", err)
	}
	if count == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrStageConflict
}

// List 获取任务列表
func (r *StoryJobRepository) List(ctx context.Context, filter *repository.StoryJobFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.StoryJob], error) {
	ctx, span := tracer.Start(ctx, "postgres.StoryJobRepository.List")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&storyJobModel{})
	if filter != nil {
		if filter.Kind != "" {
			query = query.Where("kind = ?", string(filter.Kind))
		}
		if filter.Stage != "" {
			query = query.Where("stage = ?", string(filter.Stage))
		}
		if filter.Language != "" {
			query = query.Where("language = ?", filter.Language)
		}
		if filter.InputKind != "" {
			query = query.Where("input_kind = ?", string(filter.InputKind))
		}
		if filter.ParentID != "" {
			query = query.Where("parent_id = ?", filter.ParentID)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count story jobs: %w", err)
	}

	var rows []storyJobModel
	if err := query.Order("created_at DESC, id DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list story jobs: %w", err)
	}

	jobs, err := toEntities(rows)
	if err != nil {
		return nil, err
	}
	return repository.NewPagedResult(jobs, total, pagination), nil
}

// Delete 删除任务
func (r *StoryJobRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.StoryJobRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Delete(&storyJobModel{}, "id = ?", id)
	if result.Error != nil {
		span.RecordError(result.Error)
		return fmt.Errorf("failed to delete story job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListFinishedBefore 按完成时间升序返回过期终态任务
func (r *StoryJobRepository) ListFinishedBefore(ctx context.Context, t time.Time, limit int) ([]*entity.StoryJob, error) {
	ctx, span := tracer.Start(ctx, "postgres.StoryJobRepository.ListFinishedBefore")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Where("stage IN ? AND completed_at < ?",
		[]string{string(entity.StageComplete), string(entity.StageFailed)}, t.UTC()).
		Order("completed_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []storyJobModel
	if err := query.Find(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list expired story jobs: %w", err)
	}
	return toEntities(rows)
}

// ListStalledBefore 按更新时间升序返回长时间未推进的非终态任务
func (r *StoryJobRepository) ListStalledBefore(ctx context.Context, t time.Time, limit int) ([]*entity.StoryJob, error) {
	ctx, span := tracer.Start(ctx, "postgres.StoryJobRepository.ListStalledBefore")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Where("stage NOT IN ? AND updated_at < ?",
		[]string{string(entity.StageComplete), string(entity.StageFailed)}, t.UTC()).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []storyJobModel
	if err := query.Find(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list stalled story jobs: %w", err)
	}
	return toEntities(rows)
}

func toEntities(rows []storyJobModel) ([]*entity.StoryJob, error) {
	jobs := make([]*entity.StoryJob, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toEntity()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
