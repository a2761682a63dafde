// Package content 实现托管生成函数的业务逻辑：一次请求对应一次 LLM 调用
package content

import (
	"context"
	"strings"
	"time"

	"drm-scribe-orchestra/internal/domain/entity"
	llmctx "drm-scribe-orchestra/internal/domain/service"
	workflowchain "drm-scribe-orchestra/internal/workflow/chain"
	wfmodel "drm-scribe-orchestra/internal/workflow/model"
	workflowport "drm-scribe-orchestra/internal/workflow/port"
	workflowprompt "drm-scribe-orchestra/internal/workflow/prompt"
	apperrors "drm-scribe-orchestra/pkg/errors"
	"drm-scribe-orchestra/pkg/logger"
)

// Request 生成函数请求
type Request struct {
	ProjectID       string
	SessionID       string
	ContentType     entity.ContentType
	Input           string
	InputType       entity.InputType
	SystemPrompt    string
	UserPrompt      string
	GenerationIndex *int
}

// Options 生成器的模型参数
type Options struct {
	Provider    string
	Model       string
	Temperature float64
}

// Generator 托管生成函数
type Generator struct {
	chain *workflowchain.ContentChain
	opts  Options
}

func NewGenerator(factory workflowport.ChatModelFactory, registry *workflowprompt.Registry, opts Options) *Generator {
	return &Generator{
		chain: workflowchain.NewContentChain(factory, registry),
		opts:  opts,
	}
}

// Generate 执行一次生成；空内容视为失败
func (g *Generator) Generate(ctx context.Context, req Request) (*wfmodel.ContentGenerateOutput, error) {
	if g == nil || g.chain == nil {
		return nil, apperrors.ErrServiceUnavailable.WithDetail("content generator not configured")
	}
	if strings.TrimSpace(string(req.ContentType)) == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("contentType is required")
	}

	ctx = llmctx.WithGeneration(ctx, req.ProjectID, req.SessionID)
	temperature := float32(g.opts.Temperature)
	in := &wfmodel.ContentGenerateInput{
		Provider:     g.opts.Provider,
		Model:        g.opts.Model,
		ContentType:  req.ContentType,
		Input:        req.Input,
		InputType:    req.InputType,
		SystemPrompt: req.SystemPrompt,
		UserPrompt:   req.UserPrompt,
		Temperature:  &temperature,
	}

	start := time.Now()
	outMsg, err := g.chain.Invoke(ctx, in)
	if err != nil {
		logger.Error(ctx, "llm call failed", err,
			"content_type", req.ContentType,
			"generation_index", generationIndex(req.GenerationIndex),
		)
		return nil, apperrors.Wrap(err, apperrors.CodeLLMCallFailed, "LLM call failed")
	}

	content := strings.TrimSpace(outMsg.Content)
	if content == "" {
		return nil, apperrors.ErrGenerationFailed.WithDetail("No content generated")
	}

	meta := wfmodel.LLMUsageMeta{
		Provider:    g.opts.Provider,
		Model:       g.opts.Model,
		Temperature: g.opts.Temperature,
		GeneratedAt: time.Now().UTC(),
	}
	if outMsg.ResponseMeta != nil && outMsg.ResponseMeta.Usage != nil {
		meta.PromptTokens = outMsg.ResponseMeta.Usage.PromptTokens
		meta.CompletionTokens = outMsg.ResponseMeta.Usage.CompletionTokens
	}

	logger.Debug(ctx, "content generated",
		"content_type", req.ContentType,
		"generation_index", generationIndex(req.GenerationIndex),
		"chars", len([]rune(content)),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &wfmodel.ContentGenerateOutput{Content: content, Meta: meta}, nil
}

func generationIndex(idx *int) int {
	if idx == nil {
		return -1
	}
	return *idx
}
