package fixture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kahani-story-api/internal/config"
	"kahani-story-api/internal/domain/entity"
	"kahani-story-api/internal/infrastructure/speech"
	"kahani-story-api/internal/workflow/port"
)

func TestGeneratorIsDeterministic(t *testing.T) {
	g := NewGenerator(0)
	req := port.GenerationRequest{Prompt: "Scenario: a fox", Language: "hi"}

	a, err := g.Generate(context.Background(), req)
	require.NoError(t, err)
	b, err := g.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	job := &entity.StoryJob{}
	job.SetStoryText(a)
	assert.NotEmpty(t, job.Title)
	assert.NotContains(t, job.Title, "Title:")
	assert.Greater(t, job.WordCount, 10)
}

func TestGeneratorFallsBackToEnglish(t *testing.T) {
	out, err := NewGenerator(0).Generate(context.Background(), port.GenerationRequest{Prompt: "x", Language: "bn"})
	require.NoError(t, err)
	assert.Contains(t, out, "Once upon a time")
}

func TestGeneratorHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := NewGenerator(time.Second).Generate(ctx, port.GenerationRequest{Prompt: "x"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSynthesizerAndDescriber(t *testing.T) {
	data, err := NewSynthesizer(0).Synthesize(context.Background(), speech.SynthesisRequest{
		Text: "hello", Voice: config.VoicePreset{VoiceID: "en-US-AriaNeural"}, Style: "chat", Speed: 1,
	})
	require.NoError(t, err)
	assert.Contains(t, string(data), "voice=en-US-AriaNeural")

	desc, err := NewDescriber().Describe(context.Background(), "img://1")
	require.NoError(t, err)
	assert.NotEmpty(t, desc)
	_, err = NewDescriber().Describe(context.Background(), " ")
	assert.Error(t, err)
}

func TestLoadSamples(t *testing.T) {
	s, err := LoadSamples()
	require.NoError(t, err)
	assert.Len(t, s.CharacterSets, 3)
	assert.Equal(t, "Maya", s.CharacterSets[0].Characters[0].Name)

	hi := s.ScenariosFor("hi")
	assert.Len(t, hi, 1)
	assert.Len(t, hi["hi"], 3)
	assert.Len(t, s.ScenariosFor(""), 3)
	assert.Empty(t, s.ScenariosFor("fr"))
}
