// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"drm-scribe-orchestra/internal/application/orchestrator"
	"drm-scribe-orchestra/internal/domain/entity"
	"drm-scribe-orchestra/pkg/logger"
)

// SessionService 会话编排能力，由 orchestrator.Orchestrator 实现
type SessionService interface {
	CreateSession(ctx context.Context, in orchestrator.CreateSessionInput) (*entity.SessionSnapshot, error)
	GetSession(ctx context.Context, id string) (*entity.SessionSnapshot, error)
	UpdateSettings(ctx context.Context, id string, settings entity.QualitySettings) (*entity.SessionSnapshot, error)
	ResetSettings(ctx context.Context, id string) (*entity.SessionSnapshot, error)
	StartPipeline(ctx context.Context, id string, in orchestrator.StartInput) (*entity.SessionSnapshot, error)
	GenerateOptional(ctx context.Context, id string, types []entity.ContentType, wait bool) (*entity.SessionSnapshot, error)
	QualityGenerate(ctx context.Context, id string, ct entity.ContentType, input string, inputType entity.InputType) (entity.GenerationResult, *entity.ContentItem, error)
	Regenerate(ctx context.Context, id string, ct entity.ContentType) (*entity.ContentItem, error)
	EditItem(ctx context.Context, id string, ct entity.ContentType, content string) (*entity.ContentItem, error)
	SelectAlternative(ctx context.Context, id string, ct entity.ContentType, idx int) (*entity.ContentItem, error)
	EvaluateItem(ctx context.Context, id string, ct entity.ContentType) (string, error)
	AnalyzeInsights(ctx context.Context, id string, input string) (string, error)
	ProposePlans(ctx context.Context, id string) (string, error)
	SelectPlan(ctx context.Context, id string, plan string) (*entity.SessionSnapshot, error)
}

var _ SessionService = (*orchestrator.Orchestrator)(nil)

// withSession 把会话 ID 注入请求日志上下文
func withSession(c *gin.Context) (context.Context, string) {
	sid := strings.TrimSpace(c.Param("sid"))
	return logger.WithContext(c.Request.Context(), logger.SessionIDKey, sid), sid
}

// bindOptionalJSON 请求体可省略；为空（含分块传输的空体）时保持零值
func bindOptionalJSON(c *gin.Context, obj any) error {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil
	}
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func itemParam(c *gin.Context) entity.ContentType {
	return entity.ContentType(strings.TrimSpace(c.Param("iid")))
}

func wantWait(c *gin.Context) bool {
	switch strings.ToLower(c.Query("wait")) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
