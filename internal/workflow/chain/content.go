package chain

import (
	"context"
	"fmt"
	"strings"

	einocallbacks "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	llmctx "drm-scribe-orchestra/internal/domain/service"
	wfmodel "drm-scribe-orchestra/internal/workflow/model"
	workflowport "drm-scribe-orchestra/internal/workflow/port"
	workflowprompt "drm-scribe-orchestra/internal/workflow/prompt"
)

// ContentChain 渲染提示词并调用 ChatModel 生成一段营销内容
type ContentChain struct {
	factory  workflowport.ChatModelFactory
	registry *workflowprompt.Registry
}

func NewContentChain(factory workflowport.ChatModelFactory, registry *workflowprompt.Registry) *ContentChain {
	if registry == nil {
		registry = workflowprompt.NewRegistry()
	}
	return &ContentChain{factory: factory, registry: registry}
}

func (c *ContentChain) Invoke(ctx context.Context, in *wfmodel.ContentGenerateInput) (*schema.Message, error) {
	if c == nil || c.factory == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	if in == nil {
		return nil, fmt.Errorf("input is nil")
	}
	if strings.TrimSpace(string(in.ContentType)) == "" {
		return nil, fmt.Errorf("content type is required")
	}

	provider := strings.TrimSpace(in.Provider)
	ctx = llmctx.WithProvider(llmctx.WithContentType(ctx, string(in.ContentType)), provider)
	chatModel, err := c.factory.Get(ctx, provider)
	if err != nil {
		return nil, err
	}

	msgs, err := c.formatMessages(ctx, in)
	if err != nil {
		return nil, err
	}

	// 独立调用的 ChatModel 需要显式初始化回调管理器，全局 handler 才会触发
	ctx = einocallbacks.InitCallbacks(ctx, &einocallbacks.RunInfo{
		Name:      "content_generate",
		Type:      string(in.ContentType),
		Component: components.ComponentOfChatModel,
	})

	outMsg, err := chatModel.Generate(ctx, msgs, c.modelOptions(in)...)
	if err != nil {
		return nil, err
	}
	if outMsg == nil {
		return nil, fmt.Errorf("empty llm response")
	}
	return outMsg, nil
}

// formatMessages 覆盖提示词优先，缺省部分由注册表补齐
func (c *ContentChain) formatMessages(ctx context.Context, in *wfmodel.ContentGenerateInput) ([]*schema.Message, error) {
	system := strings.TrimSpace(in.SystemPrompt)
	user := strings.TrimSpace(in.UserPrompt)
	if system != "" && user != "" {
		return []*schema.Message{schema.SystemMessage(system), schema.UserMessage(user)}, nil
	}

	msgs, err := c.registry.Messages(ctx, in.ContentType, in.Input, in.InputType)
	if err != nil {
		return nil, err
	}
	if system != "" {
		msgs[0] = schema.SystemMessage(system)
	}
	if user != "" {
		msgs[1] = schema.UserMessage(user)
	}
	return msgs, nil
}

func (c *ContentChain) modelOptions(in *wfmodel.ContentGenerateInput) []model.Option {
	opts := make([]model.Option, 0, 3)
	maxTokens := c.registry.ConfigFor(in.ContentType).MaxTokens
	if in.MaxTokens != nil {
		maxTokens = *in.MaxTokens
	}
	opts = append(opts, model.WithMaxTokens(maxTokens))
	if in.Temperature != nil {
		opts = append(opts, model.WithTemperature(*in.Temperature))
	}
	if strings.TrimSpace(in.Model) != "" {
		opts = append(opts, model.WithModel(strings.TrimSpace(in.Model)))
	}
	return opts
}
