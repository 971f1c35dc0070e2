package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"kahani-story-api/internal/config"
	"kahani-story-api/internal/workflow/port"
	"kahani-story-api/internal/workflow/port/mocks"
)

func TestNewLimiterDisabled(t *testing.T) {
	assert.Nil(t, NewLimiter(config.RateConfig{}))

	gen := &mocks.MockStoryGenerator{}
	assert.Same(t, gen, Generator(gen, nil))
}

func TestGeneratorWaitsForToken(t *testing.T) {
	gen := &mocks.MockStoryGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).Return("story", nil)

	g := Generator(gen, NewLimiter(config.RateConfig{PerSecond: 1, Burst: 1}))
	out, err := g.Generate(context.Background(), port.GenerationRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "story", out)

	// 第二次需要约 1s 的令牌，deadline 更短时直接失败
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Generate(ctx, port.GenerationRequest{Prompt: "p"})
	assert.Error(t, err)
	gen.AssertNumberOfCalls(t, "Generate", 1)
}

func TestNarratorAndDescriberPassThrough(t *testing.T) {
	limiter := NewLimiter(config.RateConfig{PerSecond: 100, Burst: 5})

	nar := &mocks.MockNarrator{}
	nar.On("Narrate", mock.Anything, mock.Anything).Return("/media/audio/a.mp3", nil).Once()
	ref, err := Narrator(nar, limiter).Narrate(context.Background(), port.NarrationRequest{Text: "t"})
	require.NoError(t, err)
	assert.Equal(t, "/media/audio/a.mp3", ref)

	desc := &mocks.MockImageDescriber{}
	desc.On("Describe", mock.Anything, "img://1").Return("a cat", nil).Once()
	out, err := Describer(desc, limiter).Describe(context.Background(), "img://1")
	require.NoError(t, err)
	assert.Equal(t, "a cat", out)
}
