package model

import "drm-scribe-orchestra/internal/domain/entity"

// ContentGenerateInput 单次内容生成的输入
type ContentGenerateInput struct {
	Provider string
	Model    string

	ContentType entity.ContentType
	Input       string
	InputType   entity.InputType

	// SystemPrompt/UserPrompt 非空时覆盖注册表模板
	SystemPrompt string
	UserPrompt   string

	MaxTokens   *int
	Temperature *float32
}

// ContentGenerateOutput 单次内容生成的输出
type ContentGenerateOutput struct {
	Content string
	Meta    LLMUsageMeta
}
