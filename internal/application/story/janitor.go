package story

import (
	"context"
	"errors"
	"time"

	"kahani-story-api/internal/domain/entity"
	"kahani-story-api/internal/domain/repository"
	"kahani-story-api/internal/workflow/port"
	"kahani-story-api/pkg/logger"
	"kahani-story-api/pkg/metrics"
)

const janitorBatch = 200

// StallReaper 收尾一个长时间没有推进的非终态任务
type StallReaper interface {
	FailStalled(ctx context.Context, job *entity.StoryJob) error
}

// Janitor 定期删除超过保留期的终态任务及其音频，并收尾卡死的任务
type Janitor struct {
	repo       repository.StoryJobRepository
	audio      port.AudioStore
	retention  time.Duration
	interval   time.Duration
	reaper     StallReaper
	stallAfter time.Duration
	now        func() time.Time
}

// NewJanitor retention 或 interval 为 0 时 Run 直接返回
func NewJanitor(repo repository.StoryJobRepository, audio port.AudioStore, retention, interval time.Duration) *Janitor {
	return &Janitor{
		repo:      repo,
		audio:     audio,
		retention: retention,
		interval:  interval,
		now:       time.Now,
	}
}

// WithStallReaper after 为 0 时不收尾卡死任务
func (j *Janitor) WithStallReaper(reaper StallReaper, after time.Duration) *Janitor {
	j.reaper = reaper
	j.stallAfter = after
	return j
}

func (j *Janitor) reaping() bool {
	return j.reaper != nil && j.stallAfter > 0
}

// Run 阻塞直到 ctx 结束
func (j *Janitor) Run(ctx context.Context) {
	if j.interval <= 0 || (j.retention <= 0 && !j.reaping()) {
		logger.Info(ctx, "story janitor disabled")
		return
	}
	ctx = logger.WithContext(ctx, logger.WorkerKey, "janitor")
	logger.Info(ctx, "story janitor started",
		"retention", j.retention.String(),
		"stall_timeout", j.stallAfter.String(),
		"interval", j.interval.String(),
	)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := j.Sweep(ctx); err != nil {
				logger.Error(ctx, "story janitor sweep failed", err, "deleted", n)
			} else if n > 0 {
				logger.Info(ctx, "story janitor removed expired jobs", "deleted", n)
			}
			if n, err := j.Reap(ctx); err != nil {
				logger.Error(ctx, "story janitor reap failed", err, "reaped", n)
			} else if n > 0 {
				logger.Warn(ctx, "story janitor settled stalled jobs", "reaped", n)
			}
		}
	}
}

// Sweep 删除一轮过期任务，返回删除数量
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	if j.retention <= 0 {
		return 0, nil
	}
	cutoff := j.now().Add(-j.retention)
	deleted := 0
	for {
		jobs, err := j.repo.ListFinishedBefore(ctx, cutoff, janitorBatch)
		if err != nil {
			return deleted, err
		}
		if len(jobs) == 0 {
			return deleted, nil
		}

		progressed := false
		for _, job := range jobs {
			if err := j.repo.Delete(ctx, job.ID); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					continue
				}
				return deleted, err
			}
			progressed = true
			deleted++
			metrics.JanitorDeleted.Inc()
			if job.AudioRef != "" && j.audio != nil {
				if err := j.audio.Delete(ctx, job.AudioRef); err != nil {
					logger.Warn(ctx, "failed to delete expired narration audio", "job_id", job.ID, "error", err.Error())
				}
			}
		}
		if !progressed || len(jobs) < janitorBatch {
			return deleted, nil
		}
	}
}

// Reap 把超过 stallAfter 未推进的非终态任务交给 reaper 收尾，返回处理数量
func (j *Janitor) Reap(ctx context.Context) (int, error) {
	if !j.reaping() {
		return 0, nil
	}
	jobs, err := j.repo.ListStalledBefore(ctx, j.now().Add(-j.stallAfter), janitorBatch)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, job := range jobs {
		if err := j.reaper.FailStalled(ctx, job); err != nil {
			return reaped, err
		}
		reaped++
		metrics.JanitorReaped.Inc()
	}
	return reaped, nil
}
