package wire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drm-scribe-orchestra/internal/application/orchestrator"
	"drm-scribe-orchestra/internal/config"
	"drm-scribe-orchestra/internal/infrastructure/persistence/memory"
	"drm-scribe-orchestra/internal/infrastructure/remote"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func loadTestConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	t.Setenv("APP_ENV", "test")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	cfg, err := config.LoadFrom(dir)
	require.NoError(t, err)
	return cfg
}

func fakeFunction(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ContentType string `json:"contentType"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"content": "remote:" + req.ContentType,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInitializeApp_RemoteInvokerWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	fn := fakeFunction(t)

	cfg := loadTestConfig(t, fmt.Sprintf(`
generation:
  function_url: %s
  project_id: proj-1
session:
  store: redis
  ttl: 1h
cache:
  redis:
    enabled: true
    host: %s
    port: %s
messaging:
  redis_stream:
    enabled: true
observability:
  metrics:
    enabled: false
`, fn.URL, mr.Host(), mr.Port()))

	ctx := context.Background()
	app, cleanup, err := InitializeApp(ctx, cfg, "test")
	require.NoError(t, err)
	defer cleanup()
	defer func() { _ = app.Orchestrator.Drain(ctx) }()

	engine := app.Router.Engine()
	post := func(path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, &buf))
		return w
	}

	w := post("/v1/sessions", map[string]string{"input": "オンライン講座"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	sid := created.Data.ID

	w = post("/v1/sessions/"+sid+"/generate?wait=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "remote:step_mails")

	assert.True(t, mr.Exists("drm:session:"+sid), "snapshot persisted to redis")

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	n, err := rdb.XLen(ctx, "stream:content:events").Result()
	require.NoError(t, err)
	assert.Positive(t, n)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"redis"`)
}

func TestInitializeFunction_OnlyFunctionRoutes(t *testing.T) {
	cfg := loadTestConfig(t, `
observability:
  metrics:
    enabled: false
`)
	r, cleanup, err := InitializeFunction(context.Background(), cfg, "test")
	require.NoError(t, err)
	defer cleanup()

	w := httptest.NewRecorder()
	r.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/functions/v1/generate-content", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/sessions", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProviders_Fallbacks(t *testing.T) {
	cfg := loadTestConfig(t, `
session:
  store: redis
`)
	_, ok := ProvideSessionStore(cfg, nil).(*memory.SessionStore)
	assert.True(t, ok, "redis store without redis client falls back to memory")

	assert.Nil(t, ProvideMessagingProducer(cfg, nil))
	assert.Nil(t, ProvideUsageRecorder(nil))

	_, ok = ProvideInvoker(cfg, nil).(*orchestrator.LocalInvoker)
	assert.True(t, ok)

	cfg.Generation.FunctionURL = "http://fn.local"
	_, ok = ProvideInvoker(cfg, nil).(*remote.Client)
	assert.True(t, ok)
}
