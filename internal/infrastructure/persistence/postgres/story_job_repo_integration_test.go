//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"kahani-story-api/internal/config"
	"kahani-story-api/internal/domain/entity"
	"kahani-story-api/internal/domain/repository"
)

type StoryJobRepoSuite struct {
	suite.Suite
	ctx       context.Context
	container *tcpostgres.PostgresContainer
	client    *Client
	repo      *StoryJobRepository
}

func TestStoryJobRepoSuite(t *testing.T) {
	suite.Run(t, new(StoryJobRepoSuite))
}

func (s *StoryJobRepoSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := tcpostgres.Run(s.ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("kahani_test"),
		tcpostgres.WithUsername("kahani"),
		tcpostgres.WithPassword("kahani"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	require.NoError(s.T(), err)
	s.container = container

	dsn, err := container.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err)

	s.client, err = Open(dsn, &config.PostgresConfig{AutoMigrate: true})
	require.NoError(s.T(), err)
	s.repo = NewStoryJobRepository(s.client)
}

func (s *StoryJobRepoSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *StoryJobRepoSuite) SetupTest() {
	require.NoError(s.T(), s.client.DB().Exec("TRUNCATE story_jobs").Error)
}

func (s *StoryJobRepoSuite) newJob(id string, created time.Time) *entity.StoryJob {
	return entity.NewStoryJob(id, entity.StoryRequest{
		InputKind: entity.InputKindScenario,
		Scenario:  &entity.ScenarioPayload{Text: "A fox learns to share"},
		Language:  "en",
		Tone:      "cheerful",
		Audience:  "kids",
		Length:    300,
	}, entity.NarrationOptions{}, created)
}

func (s *StoryJobRepoSuite) TestCreateAndGet() {
	job := s.newJob("job-1", time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(s.repo.Create(s.ctx, job))
	s.ErrorIs(s.repo.Create(s.ctx, job), repository.ErrAlreadyExists)

	got, err := s.repo.GetByID(s.ctx, "job-1")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(entity.StageQueued, got.Stage)
	s.Equal("A fox learns to share", got.Request.Scenario.Text)

	missing, err := s.repo.GetByID(s.ctx, "nope")
	s.NoError(err)
	s.Nil(missing)
}

func (s *StoryJobRepoSuite) TestUpdateStageCompareAndSwap() {
	now := time.Now().UTC()
	job := s.newJob("job-1", now)
	s.Require().NoError(s.repo.Create(s.ctx, job))

	next := job.Clone()
	s.Require().NoError(next.TransitionTo(entity.StageGenerating, now))
	s.Require().NoError(s.repo.UpdateStage(s.ctx, next, entity.StageQueued))

	stale := job.Clone()
	s.Require().NoError(stale.TransitionTo(entity.StageFailed, now))
	s.ErrorIs(s.repo.UpdateStage(s.ctx, stale, entity.StageQueued), repository.ErrStageConflict)

	ghost := s.newJob("ghost", now)
	s.ErrorIs(s.repo.UpdateStage(s.ctx, ghost, entity.StageQueued), repository.ErrNotFound)

	got, err := s.repo.GetByID(s.ctx, "job-1")
	s.Require().NoError(err)
	s.Equal(entity.StageGenerating, got.Stage)
}

func (s *StoryJobRepoSuite) TestListFilterAndExpiry() {
	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"a", "b", "c"} {
		s.Require().NoError(s.repo.Create(s.ctx, s.newJob(id, base.Add(time.Duration(i)*time.Minute))))
	}
	done, err := s.repo.GetByID(s.ctx, "a")
	s.Require().NoError(err)
	s.Require().NoError(done.Fail(entity.FailureDispatch, "queue down", base))
	s.Require().NoError(s.repo.UpdateStage(s.ctx, done, entity.StageQueued))

	page, err := s.repo.List(s.ctx, nil, repository.NewPagination(1, 2))
	s.Require().NoError(err)
	s.Equal(int64(3), page.Total)
	s.Require().Len(page.Items, 2)
	s.Equal("c", page.Items[0].ID)

	failed, err := s.repo.List(s.ctx, &repository.StoryJobFilter{Stage: entity.StageFailed}, repository.NewPagination(1, 10))
	s.Require().NoError(err)
	s.Require().Len(failed.Items, 1)
	s.Equal(entity.FailureDispatch, failed.Items[0].Failure.Kind)

	expired, err := s.repo.ListFinishedBefore(s.ctx, time.Now().UTC(), 10)
	s.Require().NoError(err)
	s.Require().Len(expired, 1)
	s.Equal("a", expired[0].ID)

	stalled, err := s.repo.ListStalledBefore(s.ctx, time.Now().UTC().Add(-30*time.Minute), 10)
	s.Require().NoError(err)
	s.Require().Len(stalled, 2)
	s.Equal("b", stalled[0].ID)
	s.Equal("c", stalled[1].ID)

	s.Require().NoError(s.repo.Delete(s.ctx, "a"))
	s.ErrorIs(s.repo.Delete(s.ctx, "a"), repository.ErrNotFound)
}
