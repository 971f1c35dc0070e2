package vision

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"kahani-story-api/internal/config"
	"kahani-story-api/internal/workflow/port/mocks"
)

func TestOpenAIDescriber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"image_url":{"url":"https://img.example/cat.png","detail":"low"}`)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  A cat on a windowsill.  "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	d := NewOpenAIDescriber(config.VisionConfig{APIKey: "sk", BaseURL: srv.URL, Model: "gpt-4o-mini", MaxTokens: 100})
	desc, err := d.Describe(context.Background(), "https://img.example/cat.png")
	require.NoError(t, err)
	assert.Equal(t, "A cat on a windowsill.", desc)
}

func TestCachedDescriber(t *testing.T) {
	next := &mocks.MockImageDescriber{}
	next.On("Describe", mock.Anything, "img://1").Return("a fox", nil).Once()
	next.On("Describe", mock.Anything, "img://2").Return("", errors.New("boom")).Twice()

	d := NewCachedDescriber(next, time.Minute)
	for i := 0; i < 3; i++ {
		desc, err := d.Describe(context.Background(), "img://1")
		require.NoError(t, err)
		assert.Equal(t, "a fox", desc)
	}
	for i := 0; i < 2; i++ {
		_, err := d.Describe(context.Background(), "img://2")
		assert.Error(t, err)
	}
	next.AssertExpectations(t)

	assert.Same(t, next, NewCachedDescriber(next, 0))
}
