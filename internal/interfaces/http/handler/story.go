// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	stderrors "errors"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"kahani-story-api/internal/application/story"
	"kahani-story-api/internal/domain/entity"
	"kahani-story-api/internal/domain/repository"
	"kahani-story-api/internal/interfaces/http/dto"
	"kahani-story-api/pkg/errors"
	"kahani-story-api/pkg/logger"
)

// StoryService 故事任务编排
type StoryService interface {
	Submit(ctx context.Context, raw story.RawInput, opts story.RawOptions) (*entity.StoryJob, error)
	Renarrate(ctx context.Context, storyID string, opts story.RawOptions) (*entity.StoryJob, error)
	GetStatus(ctx context.Context, id string) (*entity.StoryJob, error)
	List(ctx context.Context, filter *repository.StoryJobFilter, pagination repository.Pagination) (*repository.PagedResult[entity.StoryJobSummary], error)
	ListNarrations(ctx context.Context, storyID string, pagination repository.Pagination) (*repository.PagedResult[entity.StoryJobSummary], error)
	Delete(ctx context.Context, id string) error
}

// StoryHandler 故事任务处理器
type StoryHandler struct {
	stories      StoryService
	pollInterval time.Duration
}

// NewStoryHandler 创建故事任务处理器
func NewStoryHandler(stories StoryService) *StoryHandler {
	return &StoryHandler{stories: stories, pollInterval: 500 * time.Millisecond}
}

// SubmitStory 提交故事
// @Summary 提交故事生成任务
// @Tags Stories
// @Accept json
// @Produce json
// @Param body body dto.SubmitStoryRequest true "故事输入"
// @Success 202 {object} dto.Response[dto.SubmitStoryResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/stories [post]
func (h *StoryHandler) SubmitStory(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.SubmitStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	job, err := h.stories.Submit(ctx, req.ToRawInput(), req.Options.ToRawOptions())
	if err != nil {
		h.fail(c, job, err)
		return
	}
	dto.Accepted(c, dto.ToSubmitStoryResponse(job))
}

// ListStories 获取任务列表
// @Summary 任务列表
// @Tags Stories
// @Produce json
// @Param stage query string false "阶段"
// @Param language query string false "语言"
// @Param input_kind query string false "输入类型"
// @Param kind query string false "任务类型"
// @Success 200 {object} dto.Response[[]entity.StoryJobSummary]
// @Router /v1/stories [get]
func (h *StoryHandler) ListStories(c *gin.Context) {
	ctx := c.Request.Context()

	filter := &repository.StoryJobFilter{
		Kind:      entity.JobKind(c.Query("kind")),
		Stage:     entity.Stage(c.Query("stage")),
		Language:  c.Query("language"),
		InputKind: entity.InputKind(c.Query("input_kind")),
	}
	if filter.Stage != "" && !filter.Stage.Valid() {
		dto.BadRequest(c, "unknown stage: "+string(filter.Stage))
		return
	}
	if filter.InputKind != "" && !filter.InputKind.Valid() {
		dto.BadRequest(c, "unknown input_kind: "+string(filter.InputKind))
		return
	}
	if filter.Kind != "" && filter.Kind != entity.JobKindStory && filter.Kind != entity.JobKindNarration {
		dto.BadRequest(c, "unknown kind: "+string(filter.Kind))
		return
	}

	page := dto.BindPage(c)
	result, err := h.stories.List(ctx, filter, page.Pagination())
	if err != nil {
		h.fail(c, nil, err)
		return
	}
	dto.SuccessWithPage(c, result.Items, dto.NewPageMeta(result.Page, result.PageSize, int(result.Total)))
}

// GetStory 获取任务状态
// @Summary 获取任务状态快照
// @Tags Stories
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} dto.Response[dto.StoryResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/stories/{id} [get]
func (h *StoryHandler) GetStory(c *gin.Context) {
	job, err := h.stories.GetStatus(c.Request.Context(), dto.BindStoryID(c))
	if err != nil {
		h.fail(c, nil, err)
		return
	}
	dto.Success(c, dto.ToStoryResponse(job))
}

// DeleteStory 删除任务
// @Summary 删除任务及其旁白
// @Tags Stories
// @Param id path string true "任务 ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/stories/{id} [delete]
func (h *StoryHandler) DeleteStory(c *gin.Context) {
	if err := h.stories.Delete(c.Request.Context(), dto.BindStoryID(c)); err != nil {
		h.fail(c, nil, err)
		return
	}
	dto.NoContent(c)
}

// Renarrate 为已完成的故事重新生成旁白
// @Summary 重新生成旁白
// @Tags Stories
// @Accept json
// @Produce json
// @Param id path string true "故事 ID"
// @Param body body dto.NarrationOptionsRequest false "旁白选项"
// @Success 202 {object} dto.Response[dto.SubmitStoryResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/stories/{id}/narrations [post]
func (h *StoryHandler) Renarrate(c *gin.Context) {
	var req dto.NarrationOptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil && !stderrors.Is(err, io.EOF) {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	job, err := h.stories.Renarrate(c.Request.Context(), dto.BindStoryID(c), req.ToRawOptions())
	if err != nil {
		h.fail(c, job, err)
		return
	}
	dto.Accepted(c, dto.ToSubmitStoryResponse(job))
}

// ListNarrations 故事的旁白任务
// @Summary 旁白任务列表
// @Tags Stories
// @Produce json
// @Param id path string true "故事 ID"
// @Success 200 {object} dto.Response[[]entity.StoryJobSummary]
// @Router /v1/stories/{id}/narrations [get]
func (h *StoryHandler) ListNarrations(c *gin.Context) {
	page := dto.BindPage(c)
	result, err := h.stories.ListNarrations(c.Request.Context(), dto.BindStoryID(c), page.Pagination())
	if err != nil {
		h.fail(c, nil, err)
		return
	}
	dto.SuccessWithPage(c, result.Items, dto.NewPageMeta(result.Page, result.PageSize, int(result.Total)))
}

// StreamEvents 以 SSE 推送阶段变化，任务进入终态后结束
// @Summary 任务阶段事件流
// @Tags Stories
// @Produce text/event-stream
// @Param id path string true "任务 ID"
// @Success 200 "SSE stream"
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/stories/{id}/events [get]
func (h *StoryHandler) StreamEvents(c *gin.Context) {
	ctx := c.Request.Context()
	id := dto.BindStoryID(c)

	job, err := h.stories.GetStatus(ctx, id)
	if err != nil {
		h.fail(c, nil, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	var lastStage entity.Stage
	c.Stream(func(w io.Writer) bool {
		if job.Stage != lastStage {
			c.SSEvent("stage", dto.ToStoryEvent(job))
			lastStage = job.Stage
		}
		if job.Stage.IsTerminal() {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}

		next, err := h.stories.GetStatus(ctx, id)
		if err != nil {
			if !stderrors.Is(err, story.ErrNotFound) {
				logger.Error(ctx, "failed to poll story status", err, "story_id", id)
			}
			c.SSEvent("error", gin.H{"message": err.Error()})
			return false
		}
		job = next
		return true
	})
}

// fail 将编排错误映射为 HTTP 响应
func (h *StoryHandler) fail(c *gin.Context, job *entity.StoryJob, err error) {
	appErr := mapStoryError(err)
	if appErr.HTTPStatus >= 500 {
		args := []any{}
		if job != nil {
			args = append(args, "job_id", job.ID)
		}
		logger.Error(c.Request.Context(), "story request failed", err, args...)
	}
	if job != nil && stderrors.Is(err, story.ErrDispatch) {
		appErr = appErr.WithDetail("job " + job.ID + " was recorded as failed")
	}
	dto.AppError(c, appErr)
}

func mapStoryError(err error) *errors.AppError {
	var ve *entity.ValidationError
	var uk *entity.UnsupportedInputKindError
	switch {
	case stderrors.As(err, &ve):
		return errors.ErrValidationFailed.WithDetail(ve.Error()).WithError(err)
	case stderrors.As(err, &uk):
		return errors.New(errors.CodeUnsupportedInputKind, "unsupported input kind").WithDetail(uk.Error())
	case stderrors.Is(err, story.ErrNotFound):
		return errors.ErrStoryNotFound
	case stderrors.Is(err, story.ErrNotReady):
		return errors.ErrStoryNotReady
	case stderrors.Is(err, story.ErrDispatch):
		return errors.ErrQueueUnavailable.WithError(err)
	case errors.IsAppError(err):
		return errors.AsAppError(err)
	default:
		return errors.ErrInternalError.WithError(err)
	}
}
