package router

import (
	"github.com/gin-gonic/gin"

	"drm-scribe-orchestra/internal/interfaces/http/handler"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, h Handlers) {
	if h.Catalog != nil {
		v1.GET("/catalog", h.Catalog.List)
	}
	if h.Usage != nil {
		v1.GET("/usage", h.Usage.Summary)
	}

	s := h.Session
	if s == nil {
		return
	}

	sessions := v1.Group("/sessions")
	{
		sessions.POST("", s.CreateSession)
		sessions.GET("/:sid", s.GetSession)

		// 质量设置
		sessions.PUT("/:sid/settings", s.UpdateSettings)
		sessions.POST("/:sid/settings/reset", s.ResetSettings)

		// 生成
		sessions.POST("/:sid/generate", s.StartPipeline)
		sessions.POST("/:sid/optional", s.GenerateOptional)
		sessions.POST("/:sid/quality-generate", s.QualityGenerate)

		// 分析与企划
		sessions.POST("/:sid/insights", s.AnalyzeInsights)
		sessions.POST("/:sid/plans", s.ProposePlans)
		sessions.POST("/:sid/plans/select", s.SelectPlan)

		// 条目
		sessions.PUT("/:sid/items/:iid", s.EditItem)
		sessions.POST("/:sid/items/:iid/regenerate", s.Regenerate)
		sessions.POST("/:sid/items/:iid/alternatives/:idx/select", s.SelectAlternative)
		sessions.POST("/:sid/items/:iid/evaluate", s.EvaluateItem)

		if h.Stream != nil {
			sessions.GET("/:sid/events", h.Stream.StreamEvents)
		}
	}
}

// RegisterFunctionRoutes 注册生成函数端点
func RegisterFunctionRoutes(fn *gin.RouterGroup, h *handler.FunctionHandler) {
	if h == nil {
		return
	}
	fn.OPTIONS("/generate-content", h.Preflight)
	fn.POST("/generate-content", h.GenerateContent)
}
