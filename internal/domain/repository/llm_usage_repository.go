// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"drm-scribe-orchestra/internal/domain/entity"
)

type LLMUsageEventRepository interface {
	Create(ctx context.Context, event *entity.LLMUsageEvent) error
	// SumTokensByContentType 统计时间窗口内各内容类型的 token 用量
	SumTokensByContentType(ctx context.Context, projectID string, startInclusive, endExclusive time.Time) (map[string]int64, error)
}
