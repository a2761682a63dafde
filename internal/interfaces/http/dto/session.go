package dto

import (
	"time"

	"drm-scribe-orchestra/internal/domain/entity"
)

// CreateSessionRequest 创建会话请求
type CreateSessionRequest struct {
	Input     string                  `json:"input"`
	InputType entity.InputType        `json:"inputType"`
	Settings  *entity.QualitySettings `json:"settings,omitempty"`
}

// StartPipelineRequest 启动流水线请求；字段为空时沿用会话创建时的输入
type StartPipelineRequest struct {
	Input     string           `json:"input"`
	InputType entity.InputType `json:"inputType"`
}

// OptionalRequest 可选内容生成请求
type OptionalRequest struct {
	Types []entity.ContentType `json:"types" binding:"required,min=1"`
}

// InsightsRequest インサイト分析请求
type InsightsRequest struct {
	Input string `json:"input" binding:"required"`
}

// SelectPlanRequest 选择企划请求
type SelectPlanRequest struct {
	Plan string `json:"plan" binding:"required"`
}

// EditItemRequest 编辑条目请求
type EditItemRequest struct {
	Content string `json:"content" binding:"required"`
}

// QualityGenerateRequest 单次质量控制生成请求
type QualityGenerateRequest struct {
	ContentType entity.ContentType `json:"contentType" binding:"required"`
	Input       string             `json:"input" binding:"required"`
	InputType   entity.InputType   `json:"inputType"`
}

// SessionResponse 会话响应
type SessionResponse struct {
	ID           string                 `json:"id"`
	ProjectID    string                 `json:"projectId"`
	Input        string                 `json:"input"`
	InputType    entity.InputType       `json:"inputType"`
	Settings     entity.QualitySettings `json:"settings"`
	Items        []*entity.ContentItem  `json:"items"`
	Insights     string                 `json:"insights,omitempty"`
	Plans        string                 `json:"plans,omitempty"`
	SelectedPlan string                 `json:"selectedPlan,omitempty"`
	Running      bool                   `json:"running"`
	PipelineDone bool                   `json:"pipelineDone"`
	// HistorySize 各内容类型已保留的历史条数
	HistorySize map[entity.ContentType]int `json:"historySize,omitempty"`
	CreatedAt   time.Time                  `json:"createdAt"`
	UpdatedAt   time.Time                  `json:"updatedAt"`
}

// ToSessionResponse 将会话快照转换为响应
func ToSessionResponse(s *entity.SessionSnapshot) *SessionResponse {
	if s == nil {
		return nil
	}
	resp := &SessionResponse{
		ID:           s.ID,
		ProjectID:    s.ProjectID,
		Input:        s.Input,
		InputType:    s.InputType,
		Settings:     s.Settings,
		Items:        s.Items,
		Insights:     s.Insights,
		Plans:        s.Plans,
		SelectedPlan: s.SelectedPlan,
		Running:      s.Running,
		PipelineDone: s.PipelineDone,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	if resp.Items == nil {
		resp.Items = []*entity.ContentItem{}
	}
	if len(s.History) > 0 {
		resp.HistorySize = make(map[entity.ContentType]int, len(s.History))
		for ct, entries := range s.History {
			resp.HistorySize[ct] = len(entries)
		}
	}
	return resp
}

// TextResponse 单段文本结果（分析、企划、评价）
type TextResponse struct {
	Result string `json:"result"`
}

// QualityGenerateResponse 质量控制生成响应
type QualityGenerateResponse struct {
	entity.GenerationResult
	Item *entity.ContentItem `json:"item,omitempty"`
}

// CatalogResponse 内容类型目录
type CatalogResponse struct {
	Items []entity.ContentTypeInfo `json:"items"`
}
