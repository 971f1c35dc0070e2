package repository

import (
	"context"
	"errors"
	"time"

	"kahani-story-api/internal/domain/entity"
)

var (
	// ErrNotFound 任务不存在
	ErrNotFound = errors.New("story job not found")
	// ErrStageConflict CAS 失败：存储中的阶段与预期不一致
	ErrStageConflict = errors.New("story job stage changed concurrently")
	// ErrAlreadyExists 任务 ID 重复
	ErrAlreadyExists = errors.New("story job already exists")
)

// StoryJobFilter 任务过滤条件，零值字段不参与过滤
type StoryJobFilter struct {
	Kind      entity.JobKind
	Stage     entity.Stage
	Language  string
	InputKind entity.InputKind
	ParentID  string
}

// StoryJobRepository 故事任务仓储，进程间唯一的共享可变资源
type StoryJobRepository interface {
	// Create 持久化新任务
	Create(ctx context.Context, job *entity.StoryJob) error

	// GetByID 读取最新提交的快照，不存在时返回 (nil, nil)
	GetByID(ctx context.Context, id string) (*entity.StoryJob, error)

	// UpdateStage 以 from 为预期阶段做比较并交换，整体写入 job
	UpdateStage(ctx context.Context, job *entity.StoryJob, from entity.Stage) error

	// List 按创建时间倒序分页
	List(ctx context.Context, filter *StoryJobFilter, pagination Pagination) (*PagedResult[*entity.StoryJob], error)

	// Delete 删除任务，不存在时返回 ErrNotFound
	Delete(ctx context.Context, id string) error

	// ListFinishedBefore 返回在 t 之前进入终态的任务
	ListFinishedBefore(ctx context.Context, t time.Time, limit int) ([]*entity.StoryJob, error)

	// ListStalledBefore 返回最后一次提交早于 t 的非终态任务，按更新时间升序
	ListStalledBefore(ctx context.Context, t time.Time, limit int) ([]*entity.StoryJob, error)
}
