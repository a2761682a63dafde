package service

import (
	"context"
	"fmt"

	"drm-scribe-orchestra/internal/domain/entity"
	apperrors "drm-scribe-orchestra/pkg/errors"
)

// InvokeRequest 生成函数的调用参数
type InvokeRequest struct {
	ProjectID       string             `json:"projectId"`
	SessionID       string             `json:"-"`
	ContentType     entity.ContentType `json:"contentType"`
	Input           string             `json:"input"`
	InputType       entity.InputType   `json:"inputType"`
	SystemPrompt    string             `json:"systemPrompt,omitempty"`
	UserPrompt      string             `json:"userPrompt,omitempty"`
	GenerationIndex *int               `json:"generationIndex,omitempty"`
}

// ContentInvoker 生成函数的调用端口（远程 HTTP 或进程内）
type ContentInvoker interface {
	Invoke(ctx context.Context, req InvokeRequest) (string, error)
}

// FailureKind 生成失败的类别
type FailureKind string

const (
	// FailureTransport 网络或传输层错误
	FailureTransport FailureKind = "transport"
	// FailureRemote 远端返回非 2xx 或 success:false
	FailureRemote FailureKind = "remote"
	// FailureEmpty 调用成功但没有可用文本
	FailureEmpty FailureKind = "empty"
)

// GenerationError 生成失败；三类失败在编排层统一视为 ErrGenerationFailed
type GenerationError struct {
	Kind        FailureKind
	ContentType entity.ContentType
	StatusCode  int
	Message     string
	Err         error
}

func NewGenerationError(kind FailureKind, ct entity.ContentType, msg string, err error) *GenerationError {
	return &GenerationError{Kind: kind, ContentType: ct, Message: msg, Err: err}
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("generation failed (%s) for %s: %s", e.Kind, e.ContentType, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Is 使 errors.Is(err, apperrors.ErrGenerationFailed) 成立
func (e *GenerationError) Is(target error) bool {
	t, ok := target.(*apperrors.AppError)
	return ok && t.Code == apperrors.CodeGenerationFailed
}
