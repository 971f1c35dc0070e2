package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kahani-story-api/internal/domain/entity"
	"kahani-story-api/internal/domain/repository"
	"kahani-story-api/internal/infrastructure/persistence/memory"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Wrap(rdb), mr
}

func newJob(id string) *entity.StoryJob {
	return entity.NewStoryJob(id, entity.StoryRequest{
		InputKind: entity.InputKindScenario,
		Scenario:  &entity.ScenarioPayload{Text: "A kite that wanted to fly higher"},
		Language:  "en",
		Tone:      "calm",
		Audience:  "kids",
		Length:    200,
	}, entity.NarrationOptions{}, time.Now())
}

func TestSnapshotRepositoryCachesOnlyTerminalJobs(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()
	repo := NewSnapshotRepository(memory.NewStoryJobRepository(), NewCache(client), time.Minute)

	job := newJob("job-1")
	require.NoError(t, repo.Create(ctx, job))

	got, err := repo.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StageQueued, got.Stage)
	assert.False(t, mr.Exists(snapshotKey("job-1")))

	next := job.Clone()
	require.NoError(t, next.Fail(entity.FailureDispatch, "queue down", time.Now()))
	require.NoError(t, repo.UpdateStage(ctx, next, entity.StageQueued))
	assert.True(t, mr.Exists(snapshotKey("job-1")))

	got, err = repo.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StageFailed, got.Stage)
	require.NotNil(t, got.Failure)
	assert.Equal(t, entity.FailureDispatch, got.Failure.Kind)
}

func TestSnapshotRepositoryLoadsTerminalJobIntoCache(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()
	inner := memory.NewStoryJobRepository()
	repo := NewSnapshotRepository(inner, NewCache(client), time.Minute)

	job := newJob("job-1")
	require.NoError(t, job.Fail(entity.FailureValidation, "bad", time.Now()))
	require.NoError(t, inner.Create(ctx, job))

	got, err := repo.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StageFailed, got.Stage)
	assert.True(t, mr.Exists(snapshotKey("job-1")))
}

func TestSnapshotRepositoryDeleteLeavesTombstone(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()
	repo := NewSnapshotRepository(memory.NewStoryJobRepository(), NewCache(client), time.Minute)

	job := newJob("job-1")
	require.NoError(t, repo.Create(ctx, job))
	next := job.Clone()
	require.NoError(t, next.Fail(entity.FailureTemplate, "no template", time.Now()))
	require.NoError(t, repo.UpdateStage(ctx, next, entity.StageQueued))

	require.NoError(t, repo.Delete(ctx, "job-1"))
	got, err := repo.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSnapshotRepositoryFallsBackWhenRedisIsDown(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()
	repo := NewSnapshotRepository(memory.NewStoryJobRepository(), NewCache(client), time.Minute)
	require.NoError(t, repo.Create(ctx, newJob("job-1")))

	mr.Close()
	got, err := repo.GetByID(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "job-1", got.ID)
}

func TestSnapshotRepositoryDeletePurgesOrphanedSnapshot(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()
	cache := NewCache(client)
	repo := NewSnapshotRepository(memory.NewStoryJobRepository(), cache, time.Minute)

	// 快照残留在缓存里，底层记录已被其他实例删除
	orphan := newJob("job-orphan")
	b, err := json.Marshal(orphan)
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, snapshotKey(orphan.ID), b, time.Minute))

	got, err := repo.GetByID(ctx, orphan.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.ErrorIs(t, repo.Delete(ctx, orphan.ID), repository.ErrNotFound)
	assert.False(t, mr.Exists(snapshotKey(orphan.ID)))

	got, err = repo.GetByID(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()
	limiter := NewRateLimiter(client)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	key := "ratelimit:10.0.0.1:POST /v1/stories"
	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := limiter.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := limiter.Remaining(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	now = now.Add(2 * time.Minute)
	ok, err = limiter.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
