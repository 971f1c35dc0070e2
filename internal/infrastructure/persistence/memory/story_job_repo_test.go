package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kahani-story-api/internal/domain/entity"
	"kahani-story-api/internal/domain/repository"
)

func newJob(id string, lang string, created time.Time) *entity.StoryJob {
	return entity.NewStoryJob(id, entity.StoryRequest{
		InputKind: entity.InputKindScenario,
		Scenario:  &entity.ScenarioPayload{Text: "A brave little mouse finds a key"},
		Language:  lang,
	}, entity.NarrationOptions{}, created)
}

func TestCreateGetReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewStoryJobRepository()
	job := newJob("a", "en", time.Now())
	require.NoError(t, repo.Create(ctx, job))
	assert.ErrorIs(t, repo.Create(ctx, job), repository.ErrAlreadyExists)

	job.Stage = entity.StageFailed
	got, err := repo.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, entity.StageQueued, got.Stage)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateStageCompareAndSet(t *testing.T) {
	ctx := context.Background()
	repo := NewStoryJobRepository()
	job := newJob("a", "en", time.Now())
	require.NoError(t, repo.Create(ctx, job))

	require.NoError(t, job.TransitionTo(entity.StageGenerating, time.Now()))
	require.NoError(t, repo.UpdateStage(ctx, job, entity.StageQueued))

	// 预期阶段已过期
	assert.ErrorIs(t, repo.UpdateStage(ctx, job, entity.StageQueued), repository.ErrStageConflict)

	ghost := newJob("ghost", "en", time.Now())
	assert.ErrorIs(t, repo.UpdateStage(ctx, ghost, entity.StageQueued), repository.ErrNotFound)
}

func TestListFiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	repo := NewStoryJobRepository()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		lang := "en"
		if i%2 == 1 {
			lang = "hi"
		}
		require.NoError(t, repo.Create(ctx, newJob(fmt.Sprintf("job-%d", i), lang, base.Add(time.Duration(i)*time.Minute))))
	}

	page, err := repo.List(ctx, &repository.StoryJobFilter{Language: "en"}, repository.NewPagination(1, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "job-4", page.Items[0].ID)
	assert.Equal(t, "job-2", page.Items[1].ID)

	page, err = repo.List(ctx, nil, repository.NewPagination(3, 2))
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "job-0", page.Items[0].ID)

	page, err = repo.List(ctx, nil, repository.NewPagination(9, 2))
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestDeleteAndFinishedBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewStoryJobRepository()
	old := time.Now().Add(-200 * time.Hour)

	done := newJob("done", "en", old)
	require.NoError(t, done.Fail(entity.FailureTemplate, "no template", old))
	require.NoError(t, repo.Create(ctx, done))
	require.NoError(t, repo.Create(ctx, newJob("queued", "en", old)))

	finished, err := repo.ListFinishedBefore(ctx, time.Now().Add(-168*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, finished, 1)
	assert.Equal(t, "done", finished[0].ID)

	require.NoError(t, repo.Delete(ctx, "done"))
	assert.ErrorIs(t, repo.Delete(ctx, "done"), repository.ErrNotFound)
}

func TestListStalledBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewStoryJobRepository()
	now := time.Now()

	require.NoError(t, repo.Create(ctx, newJob("older", "en", now.Add(-3*time.Hour))))
	require.NoError(t, repo.Create(ctx, newJob("old", "en", now.Add(-2*time.Hour))))
	require.NoError(t, repo.Create(ctx, newJob("fresh", "en", now)))
	done := newJob("done", "en", now.Add(-5*time.Hour))
	require.NoError(t, done.Fail(entity.FailureTemplate, "no template", now.Add(-5*time.Hour)))
	require.NoError(t, repo.Create(ctx, done))

	stalled, err := repo.ListStalledBefore(ctx, now.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stalled, 2)
	assert.Equal(t, "older", stalled[0].ID)
	assert.Equal(t, "old", stalled[1].ID)

	stalled, err = repo.ListStalledBefore(ctx, now.Add(-time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	assert.Equal(t, "older", stalled[0].ID)
}
