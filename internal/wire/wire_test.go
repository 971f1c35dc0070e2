package wire

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kahani-story-api/internal/config"
	"kahani-story-api/internal/infrastructure/persistence/memory"
	"kahani-story-api/internal/infrastructure/persistence/redis"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.App.Version = "test"
	cfg.Storage.Driver = "memory"
	cfg.Storage.Audio = config.AudioStorageConfig{Dir: t.TempDir(), BaseURL: "/media/audio"}
	cfg.Messaging.Driver = "local"
	cfg.LLM.DefaultProvider = "fixture"
	cfg.Speech.Provider = "fixture"
	cfg.Vision.Provider = "fixture"
	return cfg
}

func TestInitializeAppWithFixtures(t *testing.T) {
	cfg := testConfig(t)

	app, cleanup, err := InitializeApp(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()

	require.NotNil(t, app.Dispatcher.Local)
	assert.Nil(t, app.Dispatcher.Rabbit)

	w := httptest.NewRecorder()
	app.Router.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"postgres":{"status":"disabled"}`)

	w = httptest.NewRecorder()
	app.Router.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/catalog", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInitializeWorkerRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Messaging.Driver = "kafka"

	_, _, err := InitializeWorker(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown messaging driver")
}

func TestProvideDispatcherRedisStreamNeedsRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Messaging.Driver = "redis_stream"

	_, _, err := ProvideDispatcher(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestProvideStoryJobRepository(t *testing.T) {
	cfg := testConfig(t)

	repo, err := ProvideStoryJobRepository(cfg, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &memory.StoryJobRepository{}, repo)

	mr := miniredis.RunT(t)
	rc := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	defer rc.Close()

	repo, err = ProvideStoryJobRepository(cfg, nil, rc)
	require.NoError(t, err)
	assert.IsType(t, &redis.SnapshotRepository{}, repo)

	cfg.Storage.Driver = "postgres"
	_, err = ProvideStoryJobRepository(cfg, nil, nil)
	assert.Error(t, err)
}

func TestProvideHealthChecksRegistersDisabled(t *testing.T) {
	checks := ProvideHealthChecks(nil, nil)
	require.Len(t, checks, 2)
	assert.Nil(t, checks["postgres"])
	assert.Nil(t, checks["redis"])
}

func TestProvideRateLimiterWithoutRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.RateLimit.Enabled = true
	assert.Nil(t, ProvideRateLimiter(context.Background(), cfg, nil))
}

func TestProvideCollaboratorsRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	catalog, err := ProvideStoryCatalog(cfg)
	require.NoError(t, err)
	audio, err := ProvideAudioStore(cfg)
	require.NoError(t, err)

	cfg.LLM.DefaultProvider = "openai"
	_, err = ProvideCollaborators(context.Background(), cfg, catalog, audio)
	assert.ErrorContains(t, err, "not configured")

	cfg.LLM.DefaultProvider = "fixture"
	cfg.Speech.Provider = "espeak"
	_, err = ProvideCollaborators(context.Background(), cfg, catalog, audio)
	assert.ErrorContains(t, err, "unknown speech provider")
}
