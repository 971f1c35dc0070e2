package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kahani-story-api/internal/domain/entity"
	"kahani-story-api/internal/domain/repository"
	"kahani-story-api/pkg/logger"
)

const snapshotKeyPrefix = "story:job:"

// tombstone 标记已删除的任务，阻止并发回源把旧快照写回缓存
var tombstone = []byte("-")

// SnapshotRepository 在任务仓储外层缓存终态快照。
// 非终态任务始终读底层仓储；终态快照不再变化，提交即写入缓存，删除时写墓碑。
type SnapshotRepository struct {
	repository.StoryJobRepository
	cache *Cache
	ttl   time.Duration
}

// NewSnapshotRepository ttl<=0 时使用 10 分钟
func NewSnapshotRepository(next repository.StoryJobRepository, cache *Cache, ttl time.Duration) *SnapshotRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SnapshotRepository{StoryJobRepository: next, cache: cache, ttl: ttl}
}

var _ repository.StoryJobRepository = (*SnapshotRepository)(nil)

func snapshotKey(id string) string {
	return snapshotKeyPrefix + id
}

// GetByID 终态快照命中缓存，其余回源
func (r *SnapshotRepository) GetByID(ctx context.Context, id string) (*entity.StoryJob, error) {
	var (
		loaded  *entity.StoryJob
		loadErr error
	)
	data, err := r.cache.GetOrLoad(ctx, snapshotKey(id), r.ttl, func() ([]byte, bool, error) {
		job, err := r.StoryJobRepository.GetByID(ctx, id)
		if err != nil {
			loadErr = err
			return nil, false, err
		}
		if job == nil {
			return nil, false, nil
		}
		loaded = job
		if !job.Stage.IsTerminal() {
			return nil, false, nil
		}
		b, err := json.Marshal(job)
		if err != nil {
			return nil, false, err
		}
		return b, true, nil
	})
	if err != nil {
		if loadErr != nil {
			return nil, loadErr
		}
		logger.Warn(ctx, "snapshot cache unavailable, reading repository", "job_id", id, "error", err.Error())
		return r.StoryJobRepository.GetByID(ctx, id)
	}
	if loaded != nil {
		return loaded, nil
	}
	if len(data) == 0 {
		// 共享了其他调用方的回源，但该任务不可缓存
		return r.StoryJobRepository.GetByID(ctx, id)
	}
	if bytes.Equal(data, tombstone) {
		return nil, nil
	}

	var job entity.StoryJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode cached story job: %w", err)
	}
	return &job, nil
}

// UpdateStage 提交成功且进入终态后写入缓存
func (r *SnapshotRepository) UpdateStage(ctx context.Context, job *entity.StoryJob, from entity.Stage) error {
	if err := r.StoryJobRepository.UpdateStage(ctx, job, from); err != nil {
		return err
	}
	if !job.Stage.IsTerminal() {
		return nil
	}
	b, err := json.Marshal(job)
	if err != nil {
		return nil
	}
	if err := r.cache.Set(ctx, snapshotKey(job.ID), b, r.ttl); err != nil {
		logger.Warn(ctx, "failed to cache story job snapshot", "job_id", job.ID, "error", err.Error())
	}
	return nil
}

// Delete 删除后写入墓碑；底层已不存在时清掉残留快照
func (r *SnapshotRepository) Delete(ctx context.Context, id string) error {
	if err := r.StoryJobRepository.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if err := r.cache.Delete(ctx, snapshotKey(id)); err != nil {
				logger.Warn(ctx, "failed to purge stale story job snapshot", "job_id", id, "error", err.Error())
			}
		}
		return err
	}
	if err := r.cache.Set(ctx, snapshotKey(id), tombstone, r.ttl); err != nil {
		logger.Warn(ctx, "failed to mark story job deleted in cache", "job_id", id, "error", err.Error())
	}
	return nil
}
