package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"drm-scribe-orchestra/internal/infrastructure/persistence/redis"
	"drm-scribe-orchestra/internal/interfaces/http/dto"
	apperrors "drm-scribe-orchestra/pkg/errors"
	"drm-scribe-orchestra/pkg/logger"
)

// RateLimitRemainingHeader 当前窗口剩余请求数
const RateLimitRemainingHeader = "X-RateLimit-Remaining"

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool
	// Limit 窗口内允许的请求数
	Limit  int
	Window time.Duration
}

// RateLimiter 限流器接口
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
}

// RateLimit 按客户端 IP 与路由限流；限流器故障时放行
func RateLimit(cfg RateLimitConfig, limiter RateLimiter) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	if cfg.Limit <= 0 {
		cfg.Limit = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}

	return func(c *gin.Context) {
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}
		key := redis.BuildRateLimitKey(c.ClientIP(), c.Request.Method+" "+endpoint)

		allowed, remaining, err := limiter.Allow(c.Request.Context(), key, cfg.Limit, cfg.Window)
		if err != nil {
			logger.Warn(c.Request.Context(), "rate limiter unavailable", "error", err.Error())
			c.Next()
			return
		}

		c.Header(RateLimitRemainingHeader, strconv.Itoa(remaining))
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.ErrorResponse{
				Code:    http.StatusTooManyRequests,
				Message: "rate limit exceeded",
				Error:   &dto.ErrorDetail{ErrorCode: string(apperrors.CodeTooManyRequests)},
				TraceID: c.GetString("trace_id"),
			})
			return
		}

		c.Next()
	}
}
