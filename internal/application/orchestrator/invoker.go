package orchestrator

import (
	"context"
	"errors"

	"drm-scribe-orchestra/internal/application/content"
	"drm-scribe-orchestra/internal/domain/service"
	apperrors "drm-scribe-orchestra/pkg/errors"
)

// LocalInvoker 直接调用进程内生成器，未配置远程函数地址时使用
type LocalInvoker struct {
	gen *content.Generator
}

func NewLocalInvoker(gen *content.Generator) *LocalInvoker {
	return &LocalInvoker{gen: gen}
}

func (l *LocalInvoker) Invoke(ctx context.Context, req service.InvokeRequest) (string, error) {
	out, err := l.gen.Generate(ctx, content.Request{
		ProjectID:       req.ProjectID,
		SessionID:       req.SessionID,
		ContentType:     req.ContentType,
		Input:           req.Input,
		InputType:       req.InputType,
		SystemPrompt:    req.SystemPrompt,
		UserPrompt:      req.UserPrompt,
		GenerationIndex: req.GenerationIndex,
	})
	if err != nil {
		kind := service.FailureRemote
		if errors.Is(err, apperrors.ErrGenerationFailed) {
			kind = service.FailureEmpty
		}
		return "", service.NewGenerationError(kind, req.ContentType, "local generation failed", err)
	}
	return out.Content, nil
}
