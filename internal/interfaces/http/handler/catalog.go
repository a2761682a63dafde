package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"drm-scribe-orchestra/internal/application/quota"
	"drm-scribe-orchestra/internal/domain/entity"
	"drm-scribe-orchestra/internal/interfaces/http/dto"
	apperrors "drm-scribe-orchestra/pkg/errors"
)

// CatalogHandler 内容类型目录
type CatalogHandler struct{}

func NewCatalogHandler() *CatalogHandler {
	return &CatalogHandler{}
}

// List 返回全部内容类型
// @Router /v1/catalog [get]
func (h *CatalogHandler) List(c *gin.Context) {
	dto.Success(c, dto.CatalogResponse{Items: entity.Catalog()})
}

// UsageSummarizer 用量汇总，由 quota.LLMUsageRecorder 实现
type UsageSummarizer interface {
	Summary(ctx context.Context, projectID string, from, to time.Time) (*quota.UsageSummary, error)
}

// UsageHandler 用量查询处理器
type UsageHandler struct {
	usage     UsageSummarizer
	projectID string
	now       func() time.Time
}

func NewUsageHandler(usage UsageSummarizer, projectID string) *UsageHandler {
	return &UsageHandler{usage: usage, projectID: projectID, now: time.Now}
}

// Summary 汇总 [from, to) 内的 token 用量，默认最近 24 小时；时间为 RFC3339
// @Router /v1/usage [get]
func (h *UsageHandler) Summary(c *gin.Context) {
	to := h.now()
	from := to.Add(-24 * time.Hour)

	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			dto.FromError(c, apperrors.ErrInvalidParam.WithDetail("from must be RFC3339"))
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			dto.FromError(c, apperrors.ErrInvalidParam.WithDetail("to must be RFC3339"))
			return
		}
		to = t
	}
	if !from.Before(to) {
		dto.FromError(c, apperrors.ErrInvalidParam.WithDetail("from must be before to"))
		return
	}

	sum, err := h.usage.Summary(c.Request.Context(), h.projectID, from, to)
	if err != nil {
		dto.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	dto.Success(c, sum)
}
