package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drm-scribe-orchestra/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestID(t *testing.T) {
	var gotRequestID, gotSession any
	r := gin.New()
	r.Use(RequestID())
	r.GET("/v1/sessions/:sid", func(c *gin.Context) {
		gotRequestID = c.Request.Context().Value(logger.RequestIDKey)
		gotSession = c.Request.Context().Value(logger.SessionIDKey)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/s-1", nil)
	req.Header.Set(RequestIDHeader, "req-abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-abc", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-abc", gotRequestID)
	assert.Equal(t, "s-1", gotSession)

	req = httptest.NewRequest(http.MethodGet, "/v1/sessions/s-2", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLen+1))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, gotRequestID)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"error_code":"`)
}

type scriptedLimiter struct {
	allowed   bool
	remaining int
	err       error
	keys      []string
}

func (s *scriptedLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, int, error) {
	s.keys = append(s.keys, key)
	return s.allowed, s.remaining, s.err
}

func TestRateLimit(t *testing.T) {
	cfg := RateLimitConfig{Enabled: true, Limit: 2, Window: time.Second}

	newEngine := func(l RateLimiter) *gin.Engine {
		r := gin.New()
		r.Use(RateLimit(cfg, l))
		r.GET("/v1/catalog", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	t.Run("allowed sets remaining header", func(t *testing.T) {
		l := &scriptedLimiter{allowed: true, remaining: 1}
		w := httptest.NewRecorder()
		newEngine(l).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/catalog", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "1", w.Header().Get(RateLimitRemainingHeader))
		require.Len(t, l.keys, 1)
		assert.Contains(t, l.keys[0], "GET /v1/catalog")
	})

	t.Run("limiter failure fails open", func(t *testing.T) {
		l := &scriptedLimiter{err: errors.New("redis down")}
		w := httptest.NewRecorder()
		newEngine(l).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/catalog", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get(RateLimitRemainingHeader))
	})

	t.Run("denied", func(t *testing.T) {
		w := httptest.NewRecorder()
		newEngine(&scriptedLimiter{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/catalog", nil))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	})
}
