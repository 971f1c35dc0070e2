package entity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoryTransitionGrid(t *testing.T) {
	legal := map[Stage][]Stage{
		StageQueued:     {StageGenerating, StageFailed},
		StageGenerating: {StageGenerated, StageFailed},
		StageGenerated:  {StageNarrating, StageComplete, StageFailed},
		StageNarrating:  {StageComplete, StageFailed},
		StageComplete:   nil,
		StageFailed:     nil,
	}
	now := time.Now()

	for _, from := range AllStages {
		for _, to := range AllStages {
			job := &StoryJob{ID: "j1", Kind: JobKindStory, Stage: from}
			err := job.TransitionTo(to, now)

			if contains(legal[from], to) {
				require.NoError(t, err, "%s -> %s should be legal", from, to)
				assert.Equal(t, to, job.Stage)
				continue
			}

			var ce *ConsistencyError
			require.True(t, errors.As(err, &ce), "%s -> %s should be rejected", from, to)
			assert.Equal(t, from, ce.From)
			assert.Equal(t, to, ce.To)
			assert.Equal(t, from, job.Stage, "rejected transition must not mutate the job")
		}
	}
}

func TestNarrationTransitionGrid(t *testing.T) {
	legal := map[Stage][]Stage{
		StageQueued:    {StageNarrating, StageFailed},
		StageNarrating: {StageComplete, StageFailed},
	}
	for _, from := range AllStages {
		for _, to := range AllStages {
			assert.Equal(t, contains(legal[from], to), CanTransition(JobKindNarration, from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalTransitionSetsCompletedAt(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	job := NewStoryJob("j1", StoryRequest{}, NarrationOptions{}, now)
	require.NoError(t, job.TransitionTo(StageGenerating, now))
	assert.Nil(t, job.CompletedAt)

	require.NoError(t, job.Fail(FailureGenerationUpstream, "boom", now.Add(time.Second)))
	require.NotNil(t, job.CompletedAt)
	assert.Equal(t, now.Add(time.Second), *job.CompletedAt)
	assert.Equal(t, &Failure{Kind: FailureGenerationUpstream, Message: "boom"}, job.Failure)

	// 终态之后再次失败同样是一致性错误
	var ce *ConsistencyError
	assert.ErrorAs(t, job.Fail(FailureTemplate, "again", now), &ce)
	assert.Equal(t, FailureGenerationUpstream, job.Failure.Kind)
}

func TestCloneIsDeep(t *testing.T) {
	job := NewStoryJob("j1", StoryRequest{
		InputKind:  InputKindCharacters,
		Characters: &CharactersPayload{Characters: []Character{{Name: "Maya"}}},
	}, NarrationOptions{}, time.Now())
	job.Failure = &Failure{Kind: FailureTemplate}

	cp := job.Clone()
	cp.Request.Characters.Characters[0].Name = "Ravi"
	cp.Failure.Message = "changed"

	assert.Equal(t, "Maya", job.Request.Characters.Characters[0].Name)
	assert.Empty(t, job.Failure.Message)
}

func TestNewNarrationJobCopiesParent(t *testing.T) {
	parent := NewStoryJob("p1", StoryRequest{InputKind: InputKindScenario, Scenario: &ScenarioPayload{Text: "x"}, Language: "hi"}, NarrationOptions{}, time.Now())
	parent.Title = "Jungle"

	job := NewNarrationJob("n1", parent, NarrationOptions{Voice: "narrator_hi"}, time.Now())
	assert.Equal(t, JobKindNarration, job.Kind)
	assert.Equal(t, "p1", job.ParentID)
	assert.True(t, job.Options.GenerateAudio)
	assert.Equal(t, "hi", job.Summary().Language)
	assert.Equal(t, "Jungle", job.Title)
}

func TestSetStoryText(t *testing.T) {
	job := &StoryJob{}
	job.SetStoryText("Title: The Brave Mouse\n\nOnce upon a time a mouse found a key.")
	assert.Equal(t, "The Brave Mouse", job.Title)
	assert.Equal(t, 13, job.WordCount)

	assert.Equal(t, "Lost Key", ExtractTitle("## **Lost Key**\nbody"))
	assert.Empty(t, ExtractTitle("Once upon a time"))
	assert.Equal(t, 4, CountWords("एक छोटी लड़की  थी"))
}

func TestStoryRequestPayloadConsistent(t *testing.T) {
	ok := StoryRequest{InputKind: InputKindScenario, Scenario: &ScenarioPayload{Text: "a"}}
	assert.True(t, ok.PayloadConsistent())

	mismatched := StoryRequest{InputKind: InputKindImage, Scenario: &ScenarioPayload{Text: "a"}}
	assert.False(t, mismatched.PayloadConsistent())

	both := StoryRequest{InputKind: InputKindScenario, Scenario: &ScenarioPayload{}, Image: &ImagePayload{}}
	assert.False(t, both.PayloadConsistent())
}

func TestWithImageDescriptionLeavesOriginal(t *testing.T) {
	req := StoryRequest{InputKind: InputKindImage, Image: &ImagePayload{ImageRef: "img://1", Caption: "my cat"}}
	assert.True(t, req.NeedsVision())

	described := req.WithImageDescription("a cat on a wall")
	assert.Equal(t, "a cat on a wall", described.Image.Description)
	assert.Equal(t, "my cat", described.Image.Caption)
	assert.Empty(t, req.Image.Description)
	assert.False(t, described.NeedsVision())
}

func contains(stages []Stage, s Stage) bool {
	for _, st := range stages {
		if st == s {
			return true
		}
	}
	return false
}
