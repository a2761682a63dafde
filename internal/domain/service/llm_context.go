package service

import (
	"context"
	"strings"
)

type llmCtxKey string

const (
	llmCtxKeyContentType llmCtxKey = "llm_content_type"
	llmCtxKeyProvider    llmCtxKey = "llm_provider"
	llmCtxKeySession     llmCtxKey = "llm_session"
	llmCtxKeyProject     llmCtxKey = "llm_project"
)

const unknown = "unknown"

func withString(ctx context.Context, key llmCtxKey, value string) context.Context {
	if ctx == nil {
		return nil
	}
	v := strings.TrimSpace(value)
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func stringFrom(ctx context.Context, key llmCtxKey, fallback string) string {
	if ctx == nil {
		return fallback
	}
	s, ok := ctx.Value(key).(string)
	if !ok || s == "" {
		return fallback
	}
	return s
}

// WithContentType 标记本次 LLM 调用所属的内容类型
func WithContentType(ctx context.Context, contentType string) context.Context {
	return withString(ctx, llmCtxKeyContentType, contentType)
}

func WithProvider(ctx context.Context, provider string) context.Context {
	return withString(ctx, llmCtxKeyProvider, provider)
}

// WithGeneration 标记生成调用的项目与会话
func WithGeneration(ctx context.Context, projectID, sessionID string) context.Context {
	return withString(withString(ctx, llmCtxKeyProject, projectID), llmCtxKeySession, sessionID)
}

func ContentTypeFromContext(ctx context.Context) string {
	return stringFrom(ctx, llmCtxKeyContentType, unknown)
}

func ProviderFromContext(ctx context.Context) string {
	return stringFrom(ctx, llmCtxKeyProvider, unknown)
}

func ProjectFromContext(ctx context.Context) string {
	return stringFrom(ctx, llmCtxKeyProject, "")
}

func SessionFromContext(ctx context.Context) string {
	return stringFrom(ctx, llmCtxKeySession, "")
}
