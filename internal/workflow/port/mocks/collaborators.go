// Package mocks 提供协作方接口的 testify mock
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"kahani-story-api/internal/workflow/port"
)

// MockStoryGenerator mock of port.StoryGenerator
type MockStoryGenerator struct {
	mock.Mock
}

func (m *MockStoryGenerator) Generate(ctx context.Context, req port.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// MockNarrator mock of port.Narrator
type MockNarrator struct {
	mock.Mock
}

func (m *MockNarrator) Narrate(ctx context.Context, req port.NarrationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// MockImageDescriber mock of port.ImageDescriber
type MockImageDescriber struct {
	mock.Mock
}

func (m *MockImageDescriber) Describe(ctx context.Context, imageRef string) (string, error) {
	args := m.Called(ctx, imageRef)
	return args.String(0), args.Error(1)
}

// MockAudioStore mock of port.AudioStore
type MockAudioStore struct {
	mock.Mock
}

func (m *MockAudioStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	args := m.Called(ctx, name, data)
	return args.String(0), args.Error(1)
}

func (m *MockAudioStore) Delete(ctx context.Context, ref string) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

var (
	_ port.StoryGenerator = (*MockStoryGenerator)(nil)
	_ port.Narrator       = (*MockNarrator)(nil)
	_ port.ImageDescriber = (*MockImageDescriber)(nil)
	_ port.AudioStore     = (*MockAudioStore)(nil)
)
