package postgres

import (
	"context"
	"fmt"
	"time"

	"drm-scribe-orchestra/internal/domain/entity"
)

type LLMUsageEventRepository struct {
	client *Client
}

func NewLLMUsageEventRepository(client *Client) *LLMUsageEventRepository {
	return &LLMUsageEventRepository{client: client}
}

func (r *LLMUsageEventRepository) Create(ctx context.Context, event *entity.LLMUsageEvent) error {
	ctx, span := tracer.Start(ctx, "postgres.LLMUsageEventRepository.Create")
	defer span.End()

	if err := r.client.db.WithContext(ctx).Create(event).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create llm usage event: %w", err)
	}
	return nil
}

type contentTypeTotal struct {
	ContentType string
	Total       int64
}

func (r *LLMUsageEventRepository) SumTokensByContentType(ctx context.Context, projectID string, startInclusive, endExclusive time.Time) (map[string]int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.LLMUsageEventRepository.SumTokensByContentType")
	defer span.End()

	var rows []contentTypeTotal
	if err := r.client.db.WithContext(ctx).Model(&entity.LLMUsageEvent{}).
		Where("project_id = ? AND created_at >= ? AND created_at < ?", projectID, startInclusive, endExclusive).
		Select("content_type, COALESCE(SUM(tokens_prompt + tokens_completion),0) AS total").
		Group("content_type").
		Scan(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to sum llm usage: %w", err)
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.ContentType] = row.Total
	}
	return out, nil
}
