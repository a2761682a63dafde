package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"drm-scribe-orchestra/pkg/logger"
)

const (
	// RequestIDHeader 请求 ID 头
	RequestIDHeader = "X-Request-ID"
	// maxRequestIDLen 客户端传入 ID 的最大长度，超出则重新生成
	maxRequestIDLen = 128
)

// RequestID 注入请求 ID；路由带 :sid 时一并写入会话 ID，便于按会话检索日志
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if requestID == "" || len(requestID) > maxRequestIDLen {
			requestID = uuid.NewString()
		}

		c.Set("request_id", requestID)
		ctx := logger.WithContext(c.Request.Context(), logger.RequestIDKey, requestID)
		if sid := c.Param("sid"); sid != "" {
			ctx = logger.WithContext(ctx, logger.SessionIDKey, sid)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}
