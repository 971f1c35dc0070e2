package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmctx "kahani-story-api/internal/domain/service"
	workflowport "kahani-story-api/internal/workflow/port"
)

type fakeChatModel struct {
	reply     string
	err       error
	got       []*schema.Message
	maxTokens *int
	workflow  string
	provider  string
}

func (m *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.got = input
	m.maxTokens = model.GetCommonOptions(&model.Options{}, opts...).MaxTokens
	m.workflow = llmctx.WorkflowFromContext(ctx)
	m.provider = llmctx.ProviderFromContext(ctx)
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

type fakeFactory struct {
	model   model.BaseChatModel
	err     error
	lastKey string
}

func (f *fakeFactory) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	f.lastKey = name
	return f.model, f.err
}

func TestStoryChainGenerate(t *testing.T) {
	cm := &fakeChatModel{reply: "  Title: Moon\n\nOnce upon a time.  "}
	f := &fakeFactory{model: cm}
	c := NewStoryChain(f, "openai")

	text, err := c.Generate(context.Background(), workflowport.GenerationRequest{
		SystemInstruction: "Write only in Hindi.",
		Prompt:            "Scenario: a moon",
		MaxTokens:         400,
		Language:          "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "Title: Moon\n\nOnce upon a time.", text)
	assert.Equal(t, "openai", f.lastKey)

	require.Len(t, cm.got, 2)
	assert.Equal(t, schema.System, cm.got[0].Role)
	assert.Equal(t, "Write only in Hindi.", cm.got[0].Content)
	assert.Equal(t, schema.User, cm.got[1].Role)
	require.NotNil(t, cm.maxTokens)
	assert.Equal(t, 400, *cm.maxTokens)
	assert.Equal(t, "story_generate", cm.workflow)
	assert.Equal(t, "openai", cm.provider)
}

func TestStoryChainWithoutSystemInstruction(t *testing.T) {
	cm := &fakeChatModel{reply: "story"}
	c := NewStoryChain(&fakeFactory{model: cm}, "")

	_, err := c.Generate(context.Background(), workflowport.GenerationRequest{Prompt: "Scenario: x"})
	require.NoError(t, err)
	require.Len(t, cm.got, 1)
	assert.Equal(t, schema.User, cm.got[0].Role)
	assert.Nil(t, cm.maxTokens)
	assert.Equal(t, "unknown", cm.provider)
}

func TestStoryChainErrors(t *testing.T) {
	ctx := context.Background()
	req := workflowport.GenerationRequest{Prompt: "Scenario: x"}

	_, err := NewStoryChain(&fakeFactory{err: errors.New("provider missing")}, "x").Generate(ctx, req)
	assert.EqualError(t, err, "provider missing")

	_, err = NewStoryChain(&fakeFactory{model: &fakeChatModel{err: errors.New("429")}}, "").Generate(ctx, req)
	assert.EqualError(t, err, "429")

	_, err = NewStoryChain(&fakeFactory{model: &fakeChatModel{}}, "").Generate(ctx, workflowport.GenerationRequest{})
	assert.Error(t, err)

	_, err = NewStoryChain(nil, "").Generate(ctx, req)
	assert.Error(t, err)
}
