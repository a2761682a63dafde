// Package quota 记录并汇总 LLM 用量
package quota

import (
	"context"
	"fmt"
	"strings"
	"time"

	"drm-scribe-orchestra/internal/domain/entity"
	"drm-scribe-orchestra/internal/domain/repository"
	"drm-scribe-orchestra/internal/domain/service"
)

// defaultProject 未携带项目 ID 的调用归入此项目
const defaultProject = "default"

type LLMUsageRecorder struct {
	usageRepo repository.LLMUsageEventRepository
}

func NewLLMUsageRecorder(usageRepo repository.LLMUsageEventRepository) *LLMUsageRecorder {
	return &LLMUsageRecorder{usageRepo: usageRepo}
}

// Record 写入一条用量流水；未配置台账时忽略
func (r *LLMUsageRecorder) Record(ctx context.Context, in service.LLMUsageInput) error {
	if r == nil || r.usageRepo == nil {
		return nil
	}
	if in.PromptTokens < 0 || in.CompletionTokens < 0 {
		return fmt.Errorf("invalid token usage")
	}

	projectID := strings.TrimSpace(in.ProjectID)
	if projectID == "" {
		projectID = defaultProject
	}
	contentType := strings.TrimSpace(in.ContentType)
	if contentType == "" {
		contentType = "unknown"
	}

	return r.usageRepo.Create(ctx, &entity.LLMUsageEvent{
		ProjectID:        projectID,
		SessionID:        strings.TrimSpace(in.SessionID),
		ContentType:      contentType,
		Provider:         strings.TrimSpace(in.Provider),
		Model:            strings.TrimSpace(in.Model),
		TokensPrompt:     in.PromptTokens,
		TokensCompletion: in.CompletionTokens,
		DurationMs:       in.DurationMs,
	})
}

// UsageSummary 时间窗口内的用量汇总
type UsageSummary struct {
	ProjectID     string           `json:"projectId"`
	From          time.Time        `json:"from"`
	To            time.Time        `json:"to"`
	Total         int64            `json:"total"`
	ByContentType map[string]int64 `json:"byContentType"`
}

// Summary 汇总 [from, to) 内各内容类型的 token 用量
func (r *LLMUsageRecorder) Summary(ctx context.Context, projectID string, from, to time.Time) (*UsageSummary, error) {
	if r == nil || r.usageRepo == nil {
		return nil, fmt.Errorf("usage ledger is not configured")
	}
	if projectID == "" {
		projectID = defaultProject
	}
	byType, err := r.usageRepo.SumTokensByContentType(ctx, projectID, from, to)
	if err != nil {
		return nil, err
	}
	out := &UsageSummary{ProjectID: projectID, From: from, To: to, ByContentType: byType}
	for _, n := range byType {
		out.Total += n
	}
	return out, nil
}
