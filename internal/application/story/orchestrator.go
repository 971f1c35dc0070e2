package story

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kahani-story-api/internal/config"
	"kahani-story-api/internal/domain/entity"
	"kahani-story-api/internal/domain/repository"
	"kahani-story-api/internal/workflow/port"
	"kahani-story-api/internal/workflow/prompt"
	"kahani-story-api/pkg/logger"
	"kahani-story-api/pkg/metrics"
)

// PromptBuilder 渲染提示词
type PromptBuilder interface {
	Build(ctx context.Context, req entity.StoryRequest) (*prompt.PromptSpec, error)
}

// Options 后台执行参数
type Options struct {
	GenerationTimeout time.Duration
	NarrationTimeout  time.Duration
	VisionTimeout     time.Duration
	// StallGrace 阶段超时之外的余量，超过后重复投递接管卡住的任务
	StallGrace time.Duration
}

const defaultStallGrace = 30 * time.Second

// OptionsFromConfig 从 worker 配置读取超时
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		GenerationTimeout: cfg.Worker.GenerationTimeout,
		NarrationTimeout:  cfg.Worker.NarrationTimeout,
		VisionTimeout:     cfg.Worker.VisionTimeout,
		StallGrace:        cfg.Worker.StallGrace,
	}
}

// Collaborators 外部协作方
type Collaborators struct {
	Generator port.StoryGenerator
	Narrator  port.Narrator
	Describer port.ImageDescriber
	Audio     port.AudioStore
}

// Orchestrator 负责故事任务的生命周期：同步校验并入队，后台推进阶段
type Orchestrator struct {
	repo       repository.StoryJobRepository
	normalizer *Normalizer
	builder    PromptBuilder
	collab     Collaborators
	queue      JobQueue
	locks      *KeyedLock
	opts       Options

	now   func() time.Time
	newID func() string
}

// NewOrchestrator 创建编排器
func NewOrchestrator(
	repo repository.StoryJobRepository,
	normalizer *Normalizer,
	builder PromptBuilder,
	collab Collaborators,
	queue JobQueue,
	opts Options,
) *Orchestrator {
	return &Orchestrator{
		repo:       repo,
		normalizer: normalizer,
		builder:    builder,
		collab:     collab,
		queue:      queue,
		locks:      NewKeyedLock(),
		opts:       opts,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Submit 规范化输入并创建 queued 任务，立即返回；校验错误不创建任务
func (o *Orchestrator) Submit(ctx context.Context, raw RawInput, rawOpts RawOptions) (*entity.StoryJob, error) {
	req, err := o.normalizer.Normalize(raw)
	if err != nil {
		return nil, err
	}
	opts, err := o.normalizer.NormalizeOptions(rawOpts, req.Language)
	if err != nil {
		return nil, err
	}

	job := entity.NewStoryJob(o.newID(), req, opts, o.now())
	if err := o.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create story job: %w", err)
	}
	metrics.StoryJobsSubmitted.WithLabelValues(string(job.Kind), string(req.InputKind)).Inc()
	logger.Info(logger.WithContext(ctx, logger.JobIDKey, job.ID), "story job accepted",
		"input_kind", req.InputKind,
		"language", req.Language,
		"generate_audio", opts.GenerateAudio,
	)

	if err := o.dispatch(ctx, job); err != nil {
		return job, err
	}
	return job.Clone(), nil
}

// Renarrate 为已完成的故事创建独立的旁白任务
func (o *Orchestrator) Renarrate(ctx context.Context, storyID string, rawOpts RawOptions) (*entity.StoryJob, error) {
	parent, err := o.GetStatus(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if parent.Kind != entity.JobKindStory || parent.Stage != entity.StageComplete {
		return nil, ErrNotReady
	}

	rawOpts.GenerateAudio = true
	opts, err := o.normalizer.NormalizeOptions(rawOpts, parent.Request.Language)
	if err != nil {
		return nil, err
	}

	job := entity.NewNarrationJob(o.newID(), parent, opts, o.now())
	if err := o.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create narration job: %w", err)
	}
	metrics.StoryJobsSubmitted.WithLabelValues(string(job.Kind), string(job.Request.InputKind)).Inc()
	logger.Info(logger.WithContext(ctx, logger.JobIDKey, job.ID), "narration job accepted", "story_id", parent.ID, "voice", opts.Voice)

	if err := o.dispatch(ctx, job); err != nil {
		return job, err
	}
	return job.Clone(), nil
}

// dispatch 投递失败时任务转为 failed/dispatch，返回 ErrDispatch
func (o *Orchestrator) dispatch(ctx context.Context, job *entity.StoryJob) error {
	task := Task{JobID: job.ID, Kind: job.Kind}
	if rid, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		task.RequestID = rid
	}
	err := o.queue.Enqueue(ctx, task)
	if err == nil {
		return nil
	}

	logger.Error(ctx, "failed to enqueue story job", err, "job_id", job.ID)
	if ferr := o.fail(context.WithoutCancel(ctx), job, entity.FailureDispatch, err.Error()); ferr != nil {
		logger.Error(ctx, "failed to record dispatch failure", ferr, "job_id", job.ID)
	}
	return fmt.Errorf("%w: %v", ErrDispatch, err)
}

// GetStatus 返回最新提交的只读快照
func (o *Orchestrator) GetStatus(ctx context.Context, id string) (*entity.StoryJob, error) {
	job, err := o.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get story job: %w", err)
	}
	if job == nil {
		return nil, ErrNotFound
	}
	return job, nil
}

// List 返回轻量投影
func (o *Orchestrator) List(ctx context.Context, filter *repository.StoryJobFilter, pagination repository.Pagination) (*repository.PagedResult[entity.StoryJobSummary], error) {
	page, err := o.repo.List(ctx, filter, pagination)
	if err != nil {
		return nil, fmt.Errorf("list story jobs: %w", err)
	}
	return repository.MapItems(page, (*entity.StoryJob).Summary), nil
}

// ListNarrations 列出某个故事的旁白任务
func (o *Orchestrator) ListNarrations(ctx context.Context, storyID string, pagination repository.Pagination) (*repository.PagedResult[entity.StoryJobSummary], error) {
	if _, err := o.GetStatus(ctx, storyID); err != nil {
		return nil, err
	}
	return o.List(ctx, &repository.StoryJobFilter{Kind: entity.JobKindNarration, ParentID: storyID}, pagination)
}

// Delete 删除任务及其旁白任务与音频
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	job, err := o.deleteOne(ctx, id)
	if err != nil {
		return err
	}
	if job.Kind != entity.JobKindStory {
		return nil
	}

	children, err := o.narrationIDs(ctx, id)
	if err != nil {
		logger.Warn(ctx, "failed to list narration jobs for cleanup", "story_id", id, "error", err.Error())
	}
	for _, childID := range children {
		if _, err := o.deleteOne(ctx, childID); err != nil && !errors.Is(err, ErrNotFound) {
			logger.Warn(ctx, "failed to delete narration job", "job_id", childID, "error", err.Error())
		}
	}
	return nil
}

// narrationIDs 逐页收集故事的全部旁白任务 ID
func (o *Orchestrator) narrationIDs(ctx context.Context, storyID string) ([]string, error) {
	filter := &repository.StoryJobFilter{ParentID: storyID}
	var ids []string
	for page := 1; ; page++ {
		result, err := o.repo.List(ctx, filter, repository.NewPagination(page, repository.MaxPageSize))
		if err != nil {
			return ids, err
		}
		for _, child := range result.Items {
			ids = append(ids, child.ID)
		}
		if len(result.Items) == 0 || page >= result.TotalPages {
			return ids, nil
		}
	}
}

func (o *Orchestrator) deleteOne(ctx context.Context, id string) (*entity.StoryJob, error) {
	unlock := o.locks.Lock(id)
	defer unlock()

	job, err := o.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := o.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("delete story job: %w", err)
	}
	o.removeAudio(ctx, job)
	logger.Info(logger.WithContext(ctx, logger.JobIDKey, id), "story job deleted", "stage", job.Stage)
	return job, nil
}

func (o *Orchestrator) removeAudio(ctx context.Context, job *entity.StoryJob) {
	if job.AudioRef == "" || o.collab.Audio == nil {
		return
	}
	if err := o.collab.Audio.Delete(ctx, job.AudioRef); err != nil {
		logger.Warn(ctx, "failed to delete narration audio", "job_id", job.ID, "audio_ref", job.AudioRef, "error", err.Error())
	}
}
