// Package memory 提供进程内的任务存储，用于本地运行与测试
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"kahani-story-api/internal/domain/entity"
	"kahani-story-api/internal/domain/repository"
)

// StoryJobRepository 基于 map 的任务仓储，读写均复制快照
type StoryJobRepository struct {
	mu   sync.RWMutex
	jobs map[string]*entity.StoryJob
}

// NewStoryJobRepository 创建内存仓储
func NewStoryJobRepository() *StoryJobRepository {
	return &StoryJobRepository{jobs: make(map[string]*entity.StoryJob)}
}

var _ repository.StoryJobRepository = (*StoryJobRepository)(nil)

func (r *StoryJobRepository) Create(ctx context.Context, job *entity.StoryJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return repository.ErrAlreadyExists
	}
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *StoryJobRepository) GetByID(ctx context.Context, id string) (*entity.StoryJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	return job.Clone(), nil
}

func (r *StoryJobRepository) UpdateStage(ctx context.Context, job *entity.StoryJob, from entity.Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.jobs[job.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Stage != from {
		return repository.ErrStageConflict
	}
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *StoryJobRepository) List(ctx context.Context, filter *repository.StoryJobFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.StoryJob], error) {
	r.mu.RLock()
	matched := make([]*entity.StoryJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		if matches(job, filter) {
			matched = append(matched, job.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := pagination.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + pagination.Limit()
	if end > len(matched) {
		end = len(matched)
	}
	return repository.NewPagedResult(matched[start:end], total, pagination), nil
}

func (r *StoryJobRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.jobs, id)
	return nil
}

func (r *StoryJobRepository) ListFinishedBefore(ctx context.Context, t time.Time, limit int) ([]*entity.StoryJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.StoryJob
	for _, job := range r.jobs {
		if limit > 0 && len(out) >= limit {
			break
		}
		if job.Stage.IsTerminal() && job.CompletedAt != nil && job.CompletedAt.Before(t) {
			out = append(out, job.Clone())
		}
	}
	return out, nil
}

func (r *StoryJobRepository) ListStalledBefore(ctx context.Context, t time.Time, limit int) ([]*entity.StoryJob, error) {
	r.mu.RLock()
	var out []*entity.StoryJob
	for _, job := range r.jobs {
		if !job.Stage.IsTerminal() && job.UpdatedAt.Before(t) {
			out = append(out, job.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matches(job *entity.StoryJob, f *repository.StoryJobFilter) bool {
	if f == nil {
		return true
	}
	if f.Kind != "" && job.Kind != f.Kind {
		return false
	}
	if f.Stage != "" && job.Stage != f.Stage {
		return false
	}
	if f.Language != "" && job.Request.Language != f.Language {
		return false
	}
	if f.InputKind != "" && job.Request.InputKind != f.InputKind {
		return false
	}
	if f.ParentID != "" && job.ParentID != f.ParentID {
		return false
	}
	return true
}
