package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"drm-scribe-orchestra/pkg/logger"
)

// TraceIDHeader 响应中回传的 trace ID 头
const TraceIDHeader = "X-Trace-ID"

// Trace OpenTelemetry 追踪中间件
func Trace(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// TraceContext 把 trace/span ID 写入日志上下文，并给 span 补充请求与会话属性
func TraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.SpanContext().IsValid() {
			c.Next()
			return
		}

		traceID := span.SpanContext().TraceID().String()
		spanID := span.SpanContext().SpanID().String()
		c.Set("trace_id", traceID)
		c.Set("span_id", spanID)

		ctx := logger.WithContext(c.Request.Context(), logger.TraceIDKey, traceID)
		ctx = logger.WithContext(ctx, logger.SpanIDKey, spanID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(TraceIDHeader, traceID)

		if rid := c.GetString("request_id"); rid != "" {
			span.SetAttributes(attribute.String("http.request_id", rid))
		}
		if sid := c.Param("sid"); sid != "" {
			span.SetAttributes(attribute.String("generation.session_id", sid))
		}

		c.Next()
	}
}
