package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"drm-scribe-orchestra/internal/application/orchestrator"
	"drm-scribe-orchestra/internal/domain/entity"
	"drm-scribe-orchestra/internal/interfaces/http/dto"
	apperrors "drm-scribe-orchestra/pkg/errors"
	"drm-scribe-orchestra/pkg/logger"
)

// SessionHandler 会话与生成编排处理器
type SessionHandler struct {
	svc SessionService
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(svc SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// CreateSession 创建会话
// @Summary 创建会话
// @Tags Sessions
// @Accept json
// @Produce json
// @Param body body dto.CreateSessionRequest false "初始输入与质量设置"
// @Success 201 {object} dto.Response[dto.SessionResponse]
// @Router /v1/sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	snap, err := h.svc.CreateSession(c.Request.Context(), orchestrator.CreateSessionInput{
		Input:     req.Input,
		InputType: req.InputType,
		Settings:  req.Settings,
	})
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Created(c, dto.ToSessionResponse(snap))
}

// GetSession 获取会话快照
// @Summary 获取会话
// @Tags Sessions
// @Produce json
// @Param sid path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	ctx, sid := withSession(c)
	snap, err := h.svc.GetSession(ctx, sid)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.ToSessionResponse(snap))
}

// UpdateSettings 更新质量设置
// @Router /v1/sessions/{sid}/settings [put]
func (h *SessionHandler) UpdateSettings(c *gin.Context) {
	ctx, sid := withSession(c)
	var req entity.QualitySettings
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	snap, err := h.svc.UpdateSettings(ctx, sid, req)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.ToSessionResponse(snap))
}

// ResetSettings 恢复默认质量设置
// @Router /v1/sessions/{sid}/settings/reset [post]
func (h *SessionHandler) ResetSettings(c *gin.Context) {
	ctx, sid := withSession(c)
	snap, err := h.svc.ResetSettings(ctx, sid)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.ToSessionResponse(snap))
}

// StartPipeline 启动核心与派生内容生成
// @Summary 启动生成流水线
// @Description 默认立即返回带占位条目的快照（202）；wait=true 时同步执行并返回最终快照
// @Tags Sessions
// @Param sid path string true "会话 ID"
// @Param wait query bool false "同步等待"
// @Success 202 {object} dto.Response[dto.SessionResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/generate [post]
func (h *SessionHandler) StartPipeline(c *gin.Context) {
	ctx, sid := withSession(c)
	var req dto.StartPipelineRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	wait := wantWait(c)
	snap, err := h.svc.StartPipeline(ctx, sid, orchestrator.StartInput{
		Input:     req.Input,
		InputType: req.InputType,
		Wait:      wait,
	})
	if err != nil {
		dto.FromError(c, err)
		return
	}
	logger.Info(ctx, "pipeline accepted", "wait", wait)
	if wait {
		dto.Success(c, dto.ToSessionResponse(snap))
		return
	}
	dto.Accepted(c, dto.ToSessionResponse(snap))
}

// GenerateOptional 生成可选内容
// @Router /v1/sessions/{sid}/optional [post]
func (h *SessionHandler) GenerateOptional(c *gin.Context) {
	ctx, sid := withSession(c)
	var req dto.OptionalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	wait := wantWait(c)
	snap, err := h.svc.GenerateOptional(ctx, sid, req.Types, wait)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	if wait {
		dto.Success(c, dto.ToSessionResponse(snap))
		return
	}
	dto.Accepted(c, dto.ToSessionResponse(snap))
}

// QualityGenerate 对单一内容类型执行一次质量控制生成
// @Router /v1/sessions/{sid}/quality-generate [post]
func (h *SessionHandler) QualityGenerate(c *gin.Context) {
	ctx, sid := withSession(c)
	var req dto.QualityGenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	ctx = logger.WithContext(ctx, logger.ContentTypeKey, string(req.ContentType))

	res, item, err := h.svc.QualityGenerate(ctx, sid, req.ContentType, req.Input, req.InputType)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.QualityGenerateResponse{GenerationResult: res, Item: item})
}

// AnalyzeInsights 执行インサイト分析
// @Router /v1/sessions/{sid}/insights [post]
func (h *SessionHandler) AnalyzeInsights(c *gin.Context) {
	ctx, sid := withSession(c)
	var req dto.InsightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	out, err := h.svc.AnalyzeInsights(ctx, sid, req.Input)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.TextResponse{Result: out})
}

// ProposePlans 基于分析结果生成企划案
// @Router /v1/sessions/{sid}/plans [post]
func (h *SessionHandler) ProposePlans(c *gin.Context) {
	ctx, sid := withSession(c)
	out, err := h.svc.ProposePlans(ctx, sid)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.TextResponse{Result: out})
}

// SelectPlan 选定企划，下一次流水线的 free_content 输入会附带该企划
// @Router /v1/sessions/{sid}/plans/select [post]
func (h *SessionHandler) SelectPlan(c *gin.Context) {
	ctx, sid := withSession(c)
	var req dto.SelectPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	snap, err := h.svc.SelectPlan(ctx, sid, req.Plan)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.ToSessionResponse(snap))
}

// Regenerate 以条目的原始参数重新生成
// @Router /v1/sessions/{sid}/items/{iid}/regenerate [post]
func (h *SessionHandler) Regenerate(c *gin.Context) {
	ctx, sid := withSession(c)
	ct := itemParam(c)
	ctx = logger.WithContext(ctx, logger.ContentTypeKey, string(ct))

	item, err := h.svc.Regenerate(ctx, sid, ct)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, item)
}

// EditItem 手动编辑条目内容
// @Router /v1/sessions/{sid}/items/{iid} [put]
func (h *SessionHandler) EditItem(c *gin.Context) {
	ctx, sid := withSession(c)
	var req dto.EditItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	item, err := h.svc.EditItem(ctx, sid, itemParam(c), req.Content)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, item)
}

// SelectAlternative 选中候选版本
// @Router /v1/sessions/{sid}/items/{iid}/alternatives/{idx}/select [post]
func (h *SessionHandler) SelectAlternative(c *gin.Context) {
	ctx, sid := withSession(c)
	idx, err := strconv.Atoi(strings.TrimSpace(c.Param("idx")))
	if err != nil {
		dto.FromError(c, apperrors.ErrInvalidParam.WithDetail("alternative index must be an integer"))
		return
	}
	item, err := h.svc.SelectAlternative(ctx, sid, itemParam(c), idx)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, item)
}

// EvaluateItem 对已完成条目执行品质评价
// @Router /v1/sessions/{sid}/items/{iid}/evaluate [post]
func (h *SessionHandler) EvaluateItem(c *gin.Context) {
	ctx, sid := withSession(c)
	out, err := h.svc.EvaluateItem(ctx, sid, itemParam(c))
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.TextResponse{Result: out})
}
