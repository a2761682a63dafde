package dto

import "drm-scribe-orchestra/internal/domain/entity"

// GenerateContentRequest 生成函数请求体
type GenerateContentRequest struct {
	ProjectID       string             `json:"projectId"`
	ContentType     entity.ContentType `json:"contentType"`
	Input           string             `json:"input"`
	InputType       entity.InputType   `json:"inputType"`
	SystemPrompt    string             `json:"systemPrompt,omitempty"`
	UserPrompt      string             `json:"userPrompt,omitempty"`
	GenerationIndex *int               `json:"generationIndex,omitempty"`
}

// GenerateContentResponse 生成函数成功响应；content 与 generatedText 内容相同
type GenerateContentResponse struct {
	Success       bool   `json:"success"`
	Content       string `json:"content"`
	GeneratedText string `json:"generatedText"`
}

// FunctionErrorResponse 生成函数失败响应
type FunctionErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
