package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"drm-scribe-orchestra/internal/application/content"
	"drm-scribe-orchestra/internal/interfaces/http/dto"
	wfmodel "drm-scribe-orchestra/internal/workflow/model"
	apperrors "drm-scribe-orchestra/pkg/errors"
	"drm-scribe-orchestra/pkg/logger"
)

// FunctionAllowHeaders 生成函数预检允许的请求头
const FunctionAllowHeaders = "authorization, x-client-info, apikey, content-type"

// ContentGenerator 单次内容生成，由 content.Generator 实现
type ContentGenerator interface {
	Generate(ctx context.Context, req content.Request) (*wfmodel.ContentGenerateOutput, error)
}

// FunctionHandler 托管生成函数端点
type FunctionHandler struct {
	gen ContentGenerator
}

// NewFunctionHandler 创建生成函数处理器
func NewFunctionHandler(gen ContentGenerator) *FunctionHandler {
	return &FunctionHandler{gen: gen}
}

// Preflight 响应 CORS 预检
// @Router /functions/v1/generate-content [options]
func (h *FunctionHandler) Preflight(c *gin.Context) {
	setFunctionCORS(c)
	c.Status(http.StatusNoContent)
}

// GenerateContent 执行一次生成
// @Summary 生成函数
// @Tags Functions
// @Accept json
// @Produce json
// @Param body body dto.GenerateContentRequest true "生成参数"
// @Success 200 {object} dto.GenerateContentResponse
// @Failure 400 {object} dto.FunctionErrorResponse
// @Failure 500 {object} dto.FunctionErrorResponse
// @Router /functions/v1/generate-content [post]
func (h *FunctionHandler) GenerateContent(c *gin.Context) {
	setFunctionCORS(c)

	var req dto.GenerateContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.FunctionErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	ctx := logger.WithContext(c.Request.Context(), logger.ContentTypeKey, string(req.ContentType))
	out, err := h.gen.Generate(ctx, content.Request{
		ProjectID:       req.ProjectID,
		ContentType:     req.ContentType,
		Input:           req.Input,
		InputType:       req.InputType,
		SystemPrompt:    req.SystemPrompt,
		UserPrompt:      req.UserPrompt,
		GenerationIndex: req.GenerationIndex,
	})
	if err != nil {
		logger.Error(ctx, "generate-content failed", err)
		c.JSON(http.StatusInternalServerError, dto.FunctionErrorResponse{Error: functionErrorMessage(err)})
		return
	}

	c.JSON(http.StatusOK, dto.GenerateContentResponse{
		Success:       true,
		Content:       out.Content,
		GeneratedText: out.Content,
	})
}

func setFunctionCORS(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Headers", FunctionAllowHeaders)
}

// functionErrorMessage 面向调用方的错误文本
func functionErrorMessage(err error) string {
	if !apperrors.IsAppError(err) {
		return err.Error()
	}
	appErr := apperrors.AsAppError(err)
	parts := []string{appErr.Message}
	if appErr.Detail != "" {
		parts = append(parts, appErr.Detail)
	} else if appErr.Err != nil {
		parts = append(parts, appErr.Err.Error())
	}
	return strings.Join(parts, ": ")
}
