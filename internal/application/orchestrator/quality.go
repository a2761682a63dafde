package orchestrator

import (
	"context"

	"drm-scribe-orchestra/internal/domain/entity"
	"drm-scribe-orchestra/internal/domain/service"
	"drm-scribe-orchestra/internal/workflow/prompt"
	apperrors "drm-scribe-orchestra/pkg/errors"
	"drm-scribe-orchestra/pkg/logger"
	"drm-scribe-orchestra/pkg/metrics"
)

// QualityRequest 一次质量控制生成的输入
type QualityRequest struct {
	ProjectID   string
	SessionID   string
	ContentType entity.ContentType
	Input       string
	InputType   entity.InputType
	Settings    entity.QualitySettings
	// History 该内容类型的历史（旧 → 新）
	History []string
}

// QualityGenerator 在单次调用之上叠加提示词优化、多候选和自动改善
type QualityGenerator struct {
	invoker  service.ContentInvoker
	registry *prompt.Registry
	limit    int
}

func NewQualityGenerator(invoker service.ContentInvoker, registry *prompt.Registry, limit int) *QualityGenerator {
	if registry == nil {
		registry = prompt.NewRegistry()
	}
	return &QualityGenerator{invoker: invoker, registry: registry, limit: limit}
}

// BuildRequest 构造经过优化的调用参数
func (q *QualityGenerator) BuildRequest(req QualityRequest) (service.InvokeRequest, prompt.OptimizedPrompt) {
	cfg := q.registry.ConfigFor(req.ContentType)
	user := q.registry.PromptFor(req.ContentType, req.Input, req.InputType)
	opt := prompt.Optimize(cfg.SystemPrompt, user, req.Settings, req.ContentType, req.History)
	return service.InvokeRequest{
		ProjectID:    req.ProjectID,
		SessionID:    req.SessionID,
		ContentType:  req.ContentType,
		Input:        req.Input,
		InputType:    req.InputType,
		SystemPrompt: opt.SystemPrompt,
		UserPrompt:   opt.UserPrompt,
	}, opt
}

// Generate 执行质量控制生成。
// 多候选时按下标取第一个成功结果，全部失败返回 ErrNoCandidates；自动改善失败时回退为原文。
func (q *QualityGenerator) Generate(ctx context.Context, req QualityRequest) (entity.GenerationResult, service.InvokeRequest, error) {
	invokeReq, opt := q.BuildRequest(req)

	var result entity.GenerationResult
	if opt.UseMultipleGeneration {
		alternatives, err := q.candidates(ctx, invokeReq, req.Settings.GenerationCount)
		if err != nil {
			return result, invokeReq, err
		}
		result.Content = alternatives[0]
		result.Alternatives = alternatives
	} else {
		content, err := q.invoker.Invoke(ctx, invokeReq)
		if err != nil {
			return result, invokeReq, err
		}
		result.Content = content
	}

	if opt.UseAutoImprovement {
		result.Improved = q.improve(ctx, req, result.Content)
	}
	return result, invokeReq, nil
}

func (q *QualityGenerator) candidates(ctx context.Context, base service.InvokeRequest, count int) ([]string, error) {
	if count < entity.MinGenerationCount {
		count = entity.MinGenerationCount
	}
	tasks := make([]func(context.Context) (string, error), count)
	for i := range tasks {
		r := base
		idx := i
		r.GenerationIndex = &idx
		tasks[i] = func(ctx context.Context) (string, error) {
			return q.invoker.Invoke(ctx, r)
		}
	}

	outcomes := settleAll(ctx, q.limit, tasks)
	alternatives := make([]string, 0, count)
	var lastErr error
	for _, o := range outcomes {
		if o.Err != nil {
			lastErr = o.Err
			metrics.GenerationCandidatesTotal.WithLabelValues(string(base.ContentType), "error").Inc()
			logger.Warn(ctx, "candidate generation failed",
				"content_type", base.ContentType,
				"generation_index", o.Index,
				"error", o.Err.Error(),
			)
			continue
		}
		metrics.GenerationCandidatesTotal.WithLabelValues(string(base.ContentType), "success").Inc()
		alternatives = append(alternatives, o.Value)
	}
	if len(alternatives) == 0 {
		return nil, apperrors.ErrNoCandidates.WithError(lastErr)
	}
	return alternatives, nil
}

// improve 失败时静默返回原文
func (q *QualityGenerator) improve(ctx context.Context, req QualityRequest, content string) string {
	improved, err := q.invoker.Invoke(ctx, service.InvokeRequest{
		ProjectID:    req.ProjectID,
		SessionID:    req.SessionID,
		ContentType:  entity.ContentTypeImprovement,
		Input:        content,
		InputType:    entity.InputTypeContentText,
		SystemPrompt: q.registry.ConfigFor(entity.ContentTypeImprovement).SystemPrompt,
		UserPrompt:   prompt.ImprovementPrompt(content, req.ContentType, req.Settings),
	})
	if err != nil || improved == "" {
		metrics.ImprovementFallbackTotal.WithLabelValues(string(req.ContentType)).Inc()
		if err != nil {
			logger.Warn(ctx, "auto improvement failed, keeping original", "content_type", req.ContentType, "error", err.Error())
		}
		return content
	}
	return improved
}

// Evaluate 对内容做质量评价，错误直接返回
func (q *QualityGenerator) Evaluate(ctx context.Context, projectID, sessionID string, ct entity.ContentType, content string) (string, error) {
	return q.invoker.Invoke(ctx, service.InvokeRequest{
		ProjectID:    projectID,
		SessionID:    sessionID,
		ContentType:  entity.ContentTypeEvaluation,
		Input:        content,
		InputType:    entity.InputTypeContentText,
		SystemPrompt: q.registry.ConfigFor(entity.ContentTypeEvaluation).SystemPrompt,
		UserPrompt:   prompt.EvaluationPrompt(content, ct),
	})
}
