package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"drm-scribe-orchestra/internal/infrastructure/realtime"
	"drm-scribe-orchestra/internal/interfaces/http/dto"
	"drm-scribe-orchestra/pkg/logger"
)

// StreamHandler 会话通知的 SSE 推送
type StreamHandler struct {
	svc SessionService
	hub *realtime.Hub
}

// NewStreamHandler 创建流式响应处理器
func NewStreamHandler(svc SessionService, hub *realtime.Hub) *StreamHandler {
	return &StreamHandler{svc: svc, hub: hub}
}

// StreamEvents 订阅会话通知
// @Summary 会话通知流
// @Description 通过 SSE 推送生成开始、完成、失败等通知
// @Tags Sessions
// @Produce text/event-stream
// @Param sid path string true "会话 ID"
// @Success 200 "SSE stream"
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/events [get]
func (h *StreamHandler) StreamEvents(c *gin.Context) {
	ctx, sid := withSession(c)
	if _, err := h.svc.GetSession(ctx, sid); err != nil {
		dto.FromError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	client := h.hub.Subscribe(sid)
	defer h.hub.Unsubscribe(client)
	logger.Debug(ctx, "sse client connected", "client_id", client.ID)

	heartbeat := time.NewTicker(h.hub.Heartbeat())
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev := <-client.Events():
			c.SSEvent(ev.Name, ev.Data)
			return true
		case <-heartbeat.C:
			// 注释帧，仅用于保活
			_, err := io.WriteString(w, ": ping\n\n")
			return err == nil
		case <-client.Done():
			return false
		case <-ctx.Done():
			// 客户端断开
			return false
		}
	})
	logger.Debug(ctx, "sse client disconnected", "client_id", client.ID)
}
