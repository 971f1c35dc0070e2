package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kahani-story-api/internal/application/story"
	"kahani-story-api/internal/config"
	"kahani-story-api/internal/infrastructure/fixture"
	"kahani-story-api/internal/infrastructure/persistence/memory"
	"kahani-story-api/internal/infrastructure/speech"
	"kahani-story-api/internal/infrastructure/storage"
	"kahani-story-api/internal/interfaces/http/handler"
	"kahani-story-api/internal/interfaces/http/middleware"
	"kahani-story-api/internal/interfaces/http/router"
	"kahani-story-api/internal/workflow/prompt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type capturingQueue struct {
	mu    sync.Mutex
	tasks []story.Task
	err   error
}

func (q *capturingQueue) Enqueue(ctx context.Context, task story.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *capturingQueue) drain() []story.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.tasks
	q.tasks = nil
	return out
}

type stubChecker struct{ err error }

func (s stubChecker) HealthCheck(ctx context.Context) error { return s.err }

type limitOption struct {
	enabled bool
	limiter middleware.RateLimiter
}

type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return false, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		ErrorCode string `json:"error_code"`
		Details   string `json:"details"`
	} `json:"error"`
}

type testServer struct {
	engine *gin.Engine
	orch   *story.Orchestrator
	queue  *capturingQueue
}

func newTestServer(t *testing.T, checks map[string]handler.HealthChecker, limit limitOption) *testServer {
	t.Helper()
	catalog := config.DefaultStoryCatalog()
	audioCfg := config.AudioStorageConfig{Dir: t.TempDir(), BaseURL: "/media/audio"}
	audio, err := storage.NewLocalAudioStore(audioCfg)
	require.NoError(t, err)

	queue := &capturingQueue{}
	orch := story.NewOrchestrator(
		memory.NewStoryJobRepository(),
		story.NewNormalizer(catalog),
		prompt.NewBuilder(prompt.NewRegistry(), catalog),
		story.Collaborators{
			Generator: fixture.NewGenerator(0),
			Narrator:  speech.NewNarrator(fixture.NewSynthesizer(0), audio, catalog),
			Describer: fixture.NewDescriber(),
			Audio:     audio,
		},
		queue,
		story.Options{GenerationTimeout: time.Second, NarrationTimeout: time.Second, VisionTimeout: time.Second},
	)
	samples, err := fixture.LoadSamples()
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.Storage.Audio = audioCfg
	cfg.Security.RateLimit.Enabled = limit.enabled

	r := router.New(cfg, router.Handlers{
		Health:  handler.NewHealthHandler("test", checks),
		Story:   handler.NewStoryHandler(orch),
		Catalog: handler.NewCatalogHandler(catalog, samples),
	}, limit.limiter)
	return &testServer{engine: r.Engine(), orch: orch, queue: queue}
}

func (s *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func (s *testServer) runQueued(t *testing.T) {
	t.Helper()
	for _, task := range s.queue.drain() {
		require.NoError(t, s.orch.Process(context.Background(), task))
	}
}

func (s *testServer) submit(t *testing.T, body string) string {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/v1/stories", body)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var data struct {
		ID    string `json:"id"`
		Stage string `json:"stage"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "queued", data.Stage)
	return data.ID
}

const scenarioBody = `{"input_kind":"scenario","payload":{"scenario":"A shy elephant learns to dance"},"language":"en","tone":"funny","target_audience":"kids","length":200}`

func TestSubmitAndPollStory(t *testing.T) {
	s := newTestServer(t, nil, limitOption{})
	id := s.submit(t, scenarioBody)

	w, env := s.do(t, http.MethodGet, "/v1/stories/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"stage":"queued"`)

	s.runQueued(t)

	w, env = s.do(t, http.MethodGet, "/v1/stories/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	var job struct {
		Stage     string `json:"stage"`
		StoryText string `json:"story_text"`
		WordCount int    `json:"word_count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &job))
	assert.Equal(t, "complete", job.Stage)
	assert.NotEmpty(t, job.StoryText)
	assert.Positive(t, job.WordCount)
}

func TestSubmitWithAudioServesNarration(t *testing.T) {
	s := newTestServer(t, nil, limitOption{})
	body := `{"input_kind":"characters","payload":{"characters":[{"name":"Meera","traits":"curious"}]},"language":"hi","options":{"generate_audio":true}}`
	id := s.submit(t, body)
	s.runQueued(t)

	_, env := s.do(t, http.MethodGet, "/v1/stories/"+id, "")
	var job struct {
		Stage    string `json:"stage"`
		AudioRef string `json:"audio_ref"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &job))
	require.Equal(t, "complete", job.Stage)
	require.True(t, strings.HasPrefix(job.AudioRef, "/media/audio/"))

	req := httptest.NewRequest(http.MethodGet, job.AudioRef, nil)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotZero(t, w.Body.Len())
}

func TestSubmitErrors(t *testing.T) {
	s := newTestServer(t, nil, limitOption{})

	tests := []struct {
		name      string
		body      string
		status    int
		errorCode string
	}{
		{"malformed json", `{"input_kind":`, http.StatusBadRequest, ""},
		{"unsupported kind", `{"input_kind":"poem","payload":{}}`, http.StatusBadRequest, "4000"},
		{"empty scenario", `{"input_kind":"scenario","payload":{"scenario":"   "}}`, http.StatusUnprocessableEntity, "4002"},
		{"unknown voice", `{"input_kind":"scenario","payload":{"scenario":"A cat"},"options":{"generate_audio":true,"voice":"robot"}}`, http.StatusUnprocessableEntity, "4002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := s.do(t, http.MethodPost, "/v1/stories", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.errorCode != "" {
				require.NotNil(t, env.Error)
				assert.Equal(t, tt.errorCode, env.Error.ErrorCode)
			}
		})
	}
	assert.Empty(t, s.queue.drain())

	w, env := s.do(t, http.MethodGet, "/v1/stories", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestSubmitDispatchFailureReturns503(t *testing.T) {
	s := newTestServer(t, nil, limitOption{})
	s.queue.err = errors.New("queue down")

	w, env := s.do(t, http.MethodPost, "/v1/stories", scenarioBody)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "5003", env.Error.ErrorCode)

	w, env = s.do(t, http.MethodGet, "/v1/stories?stage=failed", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"failure_kind":"dispatch"`)
}

func TestGetAndDeleteUnknownStory(t *testing.T) {
	s := newTestServer(t, nil, limitOption{})

	w, env := s.do(t, http.MethodGet, "/v1/stories/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "3001", env.Error.ErrorCode)

	w, _ = s.do(t, http.MethodDelete, "/v1/stories/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteStory(t *testing.T) {
	s := newTestServer(t, nil, limitOption{})
	id := s.submit(t, scenarioBody)
	s.runQueued(t)

	w, _ := s.do(t, http.MethodDelete, "/v1/stories/"+id, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = s.do(t, http.MethodGet, "/v1/stories/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRejectsUnknownStage(t *testing.T) {
	s := newTestServer(t, nil, limitOption{})
	w, _ := s.do(t, http.MethodGet, "/v1/stories?stage=paused", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRenarrateFlow(t *testing.T) {
	s := newTestServer(t, nil, limitOption{})
	id := s.submit(t, scenarioBody)

	w, env := s.do(t, http.MethodPost, "/v1/stories/"+id+"/narrations", `{"voice":"child_en"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "4007", env.Error.ErrorCode)

	s.runQueued(t)

	w, env = s.do(t, http.MethodPost, "/v1/stories/"+id+"/narrations", "")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var accepted struct {
		ID       string `json:"id"`
		Kind     string `json:"kind"`
		ParentID string `json:"parent_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &accepted))
	assert.Equal(t, "narration", accepted.Kind)
	assert.Equal(t, id, accepted.ParentID)

	s.runQueued(t)

	w, env = s.do(t, http.MethodGet, "/v1/stories/"+id+"/narrations", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), accepted.ID)
	assert.Contains(t, string(env.Data), `"has_audio":true`)
}

func TestStreamEventsEndsOnTerminalStage(t *testing.T) {
	s := newTestServer(t, nil, limitOption{})
	id := s.submit(t, scenarioBody)
	s.runQueued(t)

	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/stories/" + id + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "text/event-stream", mediaType)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "event:stage")
	assert.Contains(t, string(body), `"stage":"complete"`)
}

func TestCatalogEndpoints(t *testing.T) {
	s := newTestServer(t, nil, limitOption{})

	w, env := s.do(t, http.MethodGet, "/v1/catalog", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"code":"hi"`)

	w, env = s.do(t, http.MethodGet, "/v1/voices?language=ta", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "narrator_ta")
	assert.NotContains(t, string(env.Data), "narrator_en")

	w, _ = s.do(t, http.MethodGet, "/v1/voices?language=xx", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(t, http.MethodGet, "/v1/voices/emotions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "cheerful")

	w, env = s.do(t, http.MethodGet, "/v1/samples?language=en", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"en"`)
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, map[string]handler.HealthChecker{
		"postgres": stubChecker{err: errors.New("connection refused")},
		"redis":    nil,
	}, limitOption{})

	w, _ := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.True(t, bytes.Contains(w.Body.Bytes(), []byte(`"redis":{"status":"disabled"}`)))
}

func TestRateLimitRejects(t *testing.T) {
	s := newTestServer(t, nil, limitOption{enabled: true, limiter: denyLimiter{}})

	w, env := s.do(t, http.MethodGet, "/v1/catalog", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, http.StatusTooManyRequests, env.Code)

	w, _ = s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
