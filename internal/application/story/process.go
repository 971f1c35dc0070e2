package story

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kahani-story-api/internal/domain/entity"
	"kahani-story-api/internal/domain/repository"
	"kahani-story-api/internal/workflow/port"
	"kahani-story-api/pkg/logger"
	"kahani-story-api/pkg/metrics"
)

// Process 执行一个任务的后台单元。重复投递是安全的：已在推进中的任务直接跳过，
// 只有超过阶段超时加余量仍未推进的任务才会被接管并从当前阶段继续。
func (o *Orchestrator) Process(ctx context.Context, task Task) error {
	ctx = logger.WithContext(ctx, logger.JobIDKey, task.JobID)
	if task.RequestID != "" {
		ctx = logger.WithContext(ctx, logger.RequestIDKey, task.RequestID)
	}

	job, err := o.repo.GetByID(ctx, task.JobID)
	if err != nil {
		return fmt.Errorf("load story job: %w", err)
	}
	if job == nil {
		logger.Warn(ctx, "story job vanished before processing")
		return nil
	}
	if job.Stage != entity.StageQueued {
		if !o.stalled(job) {
			logger.Debug(ctx, "story job already picked up", "stage", job.Stage)
			return nil
		}
		logger.Warn(ctx, "taking over stalled story job",
			"stage", job.Stage,
			"idle", o.now().Sub(job.UpdatedAt).String(),
		)
	}

	// 已提交的任务必须走到终态，提交阶段不跟随调用方取消
	commitCtx := context.WithoutCancel(ctx)

	switch job.Kind {
	case entity.JobKindNarration:
		err = o.runNarration(ctx, commitCtx, job)
	default:
		err = o.runStory(ctx, commitCtx, job)
	}
	return o.settle(ctx, err)
}

// settle 并发删除或被其他 worker 抢先推进不算错误
func (o *Orchestrator) settle(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		logger.Warn(ctx, "story job deleted while processing")
		return nil
	case errors.Is(err, repository.ErrStageConflict):
		logger.Warn(ctx, "story job advanced by another worker")
		return nil
	default:
		return err
	}
}

// stalled 判断非终态任务是否已超过当前阶段的协作方超时加余量；未配置超时的阶段不接管
func (o *Orchestrator) stalled(job *entity.StoryJob) bool {
	var budget time.Duration
	switch job.Stage {
	case entity.StageGenerating:
		budget = o.opts.GenerationTimeout
	case entity.StageNarrating:
		budget = o.opts.NarrationTimeout
	case entity.StageGenerated:
	default:
		return false
	}
	if budget <= 0 && job.Stage != entity.StageGenerated {
		return false
	}
	grace := o.opts.StallGrace
	if grace <= 0 {
		grace = defaultStallGrace
	}
	return o.now().Sub(job.UpdatedAt) > budget+grace
}

// FailStalled 收尾长时间无人推进的任务：已有正文且无需旁白的直接完成，其余按所在阶段失败
func (o *Orchestrator) FailStalled(ctx context.Context, job *entity.StoryJob) error {
	ctx = logger.WithContext(ctx, logger.JobIDKey, job.ID)
	msg := fmt.Sprintf("job stalled in stage %s", job.Stage)

	var err error
	switch job.Stage {
	case entity.StageQueued:
		err = o.fail(ctx, job, entity.FailureDispatch, msg)
	case entity.StageGenerating:
		err = o.fail(ctx, job, entity.FailureGenerationUpstream, msg)
	case entity.StageGenerated:
		if job.Options.GenerateAudio {
			err = o.fail(ctx, job, entity.FailureNarrationUpstream, msg)
		} else {
			err = o.advance(ctx, job, entity.StageComplete, nil)
		}
	case entity.StageNarrating:
		err = o.fail(ctx, job, entity.FailureNarrationUpstream, msg)
	default:
		return nil
	}
	return o.settle(ctx, err)
}

func (o *Orchestrator) runStory(ctx, commitCtx context.Context, job *entity.StoryJob) error {
	if job.Stage == entity.StageQueued || job.Stage == entity.StageGenerating {
		if err := o.generate(ctx, commitCtx, job); err != nil {
			return err
		}
		if job.Stage != entity.StageGenerated {
			return nil
		}
	}

	if job.Stage == entity.StageGenerated && !job.Options.GenerateAudio {
		return o.advance(commitCtx, job, entity.StageComplete, nil)
	}
	return o.narrate(ctx, commitCtx, job, job.StoryText)
}

// generate 从 queued 或被接管的 generating 推进到 generated；失败时任务已进入 failed
func (o *Orchestrator) generate(ctx, commitCtx context.Context, job *entity.StoryJob) error {
	req := job.Request
	description := job.ImageDescription

	if req.NeedsVision() && description == "" {
		desc, err := call(ctx, o.opts.VisionTimeout, entity.CollaboratorVision, func(ctx context.Context) (string, error) {
			return o.collab.Describer.Describe(ctx, req.Image.ImageRef)
		})
		if err != nil {
			return o.fail(commitCtx, job, entity.FailureVisionUpstream, err.Error())
		}
		if strings.TrimSpace(desc) == "" {
			return o.fail(commitCtx, job, entity.FailureVisionUpstream, "vision collaborator returned an empty description")
		}
		description = strings.TrimSpace(desc)
	}
	if description != "" {
		req = req.WithImageDescription(description)
	}

	spec, err := o.builder.Build(ctx, req)
	if err != nil {
		var ve *entity.ValidationError
		if errors.As(err, &ve) {
			return o.fail(commitCtx, job, entity.FailureValidation, err.Error())
		}
		return o.fail(commitCtx, job, entity.FailureTemplate, err.Error())
	}

	if job.Stage == entity.StageQueued {
		if err := o.advance(commitCtx, job, entity.StageGenerating, func(j *entity.StoryJob) {
			j.ImageDescription = description
		}); err != nil {
			return err
		}
	}

	text, err := call(ctx, o.opts.GenerationTimeout, entity.CollaboratorGeneration, func(ctx context.Context) (string, error) {
		return o.collab.Generator.Generate(ctx, port.GenerationRequest{
			SystemInstruction: spec.SystemInstruction,
			Prompt:            spec.RenderedText,
			MaxTokens:         spec.MaxTokens,
			Language:          spec.Language,
		})
	})
	if err != nil {
		return o.fail(commitCtx, job, entity.FailureGenerationUpstream, err.Error())
	}
	if strings.TrimSpace(text) == "" {
		return o.fail(commitCtx, job, entity.FailureGenerationUpstream, "generation collaborator returned empty text")
	}

	if err := o.advance(commitCtx, job, entity.StageGenerated, func(j *entity.StoryJob) {
		j.ImageDescription = description
		j.SetStoryText(text)
	}); err != nil {
		return err
	}
	metrics.StoryWordCount.WithLabelValues(job.Request.Language).Observe(float64(job.WordCount))
	return nil
}

func (o *Orchestrator) runNarration(ctx, commitCtx context.Context, job *entity.StoryJob) error {
	parent, err := o.repo.GetByID(ctx, job.ParentID)
	if err != nil {
		return fmt.Errorf("load parent story: %w", err)
	}
	if parent == nil || parent.StoryText == "" {
		return o.fail(commitCtx, job, entity.FailureValidation, "parent story is no longer available")
	}
	return o.narrate(ctx, commitCtx, job, parent.StoryText)
}

// narrate 只在 story_text 已提交后调用；接管的 narrating 任务不再重复迁移
func (o *Orchestrator) narrate(ctx, commitCtx context.Context, job *entity.StoryJob, text string) error {
	if job.Stage != entity.StageNarrating {
		if err := o.advance(commitCtx, job, entity.StageNarrating, nil); err != nil {
			return err
		}
	}

	ref, err := call(ctx, o.opts.NarrationTimeout, entity.CollaboratorNarration, func(ctx context.Context) (string, error) {
		return o.collab.Narrator.Narrate(ctx, port.NarrationRequest{
			JobID:    job.ID,
			Text:     text,
			Language: job.Request.Language,
			Voice:    job.Options.Voice,
			Emotion:  job.Options.Emotion,
			Speed:    job.Options.Speed,
		})
	})
	if err != nil {
		return o.fail(commitCtx, job, entity.FailureNarrationUpstream, err.Error())
	}
	if ref == "" {
		return o.fail(commitCtx, job, entity.FailureNarrationUpstream, "narration collaborator returned no audio reference")
	}

	return o.advance(commitCtx, job, entity.StageComplete, func(j *entity.StoryJob) {
		j.AudioRef = ref
	})
}

// advance 在任务锁内对副本应用修改、校验迁移并以 CAS 提交；成功后才回写 job
func (o *Orchestrator) advance(ctx context.Context, job *entity.StoryJob, to entity.Stage, apply func(j *entity.StoryJob)) error {
	unlock := o.locks.Lock(job.ID)
	defer unlock()

	next := job.Clone()
	from := next.Stage
	if apply != nil {
		apply(next)
	}
	if err := next.TransitionTo(to, o.now()); err != nil {
		o.reportConsistency(ctx, err)
		return err
	}
	if err := o.repo.UpdateStage(ctx, next, from); err != nil {
		return err
	}
	*job = *next

	metrics.StageTransitions.WithLabelValues(string(from), string(to)).Inc()
	args := []any{"from", from, "to", to}
	if job.Failure != nil {
		args = append(args, "failure_kind", job.Failure.Kind, "failure", job.Failure.Message)
	}
	logger.Info(ctx, "story job stage changed", args...)

	if to.IsTerminal() {
		failureKind := ""
		if job.Failure != nil {
			failureKind = string(job.Failure.Kind)
		}
		metrics.StoryJobsFinished.WithLabelValues(string(job.Kind), string(to), failureKind).Inc()
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, job *entity.StoryJob, kind entity.FailureKind, message string) error {
	return o.advance(ctx, job, entity.StageFailed, func(j *entity.StoryJob) {
		j.Failure = &entity.Failure{Kind: kind, Message: message}
	})
}

func (o *Orchestrator) reportConsistency(ctx context.Context, err error) {
	var ce *entity.ConsistencyError
	if errors.As(err, &ce) {
		metrics.ConsistencyViolations.WithLabelValues(string(ce.From), string(ce.To)).Inc()
		logger.Error(ctx, "illegal story job transition", err,
			"consistency_violation", true,
			"from", ce.From,
			"to", ce.To,
		)
		return
	}
	logger.Error(ctx, "story job transition rejected", err)
}

// call 以超时方式调用协作方；超时即返回，不等待协作方退出
func call[T any](ctx context.Context, timeout time.Duration, who entity.Collaborator, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	cctx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		v, err := fn(cctx)
		done <- result{v: v, err: err}
	}()

	observe := func(status string) {
		metrics.UpstreamCallDuration.WithLabelValues(string(who)).Observe(time.Since(start).Seconds())
		metrics.UpstreamCallTotal.WithLabelValues(string(who), status).Inc()
	}

	select {
	case r := <-done:
		if r.err != nil {
			timedOut := errors.Is(r.err, context.DeadlineExceeded)
			if timedOut {
				observe("timeout")
			} else {
				observe("error")
			}
			return zero, &entity.UpstreamError{Collaborator: who, Timeout: timedOut, Err: r.err}
		}
		observe("success")
		return r.v, nil
	case <-cctx.Done():
		timedOut := errors.Is(cctx.Err(), context.DeadlineExceeded)
		if timedOut {
			observe("timeout")
		} else {
			observe("cancelled")
		}
		return zero, &entity.UpstreamError{Collaborator: who, Timeout: timedOut, Err: cctx.Err()}
	}
}
