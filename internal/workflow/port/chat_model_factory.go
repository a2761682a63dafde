package port

import (
	"context"

	"github.com/cloudwego/eino/components/model"
)

// ChatModelFactory 定义工作流层对 LLM ChatModel 的最小依赖（port）。
type ChatModelFactory interface {
	// Get 按 provider 名称返回 ChatModel，名称为空时返回默认 provider
	Get(ctx context.Context, name string) (model.BaseChatModel, error)
}
