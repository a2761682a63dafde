// Package remote 调用远程内容生成函数
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"drm-scribe-orchestra/internal/domain/service"
	"drm-scribe-orchestra/pkg/logger"
	"drm-scribe-orchestra/pkg/metrics"
)

var tracer = otel.Tracer("remote.generate")

// maxErrorBody 错误响应体最多读取的字节数
const maxErrorBody = 4 << 10

// Config 远程函数配置
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client 生成函数的 HTTP 客户端，实现 service.ContentInvoker
type Client struct {
	url    string
	apiKey string
	http   *http.Client
}

// NewClient 创建客户端；httpClient 为 nil 时按 Timeout 新建
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{url: cfg.URL, apiKey: cfg.APIKey, http: httpClient}
}

// response 生成函数的响应体；content 与 generatedText 任取其一
type response struct {
	Success       *bool  `json:"success"`
	Content       string `json:"content"`
	GeneratedText string `json:"generatedText"`
	Error         string `json:"error"`
}

// Invoke 发起一次生成调用
func (c *Client) Invoke(ctx context.Context, req service.InvokeRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "remote.Invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("generation.content_type", string(req.ContentType)),
			attribute.String("generation.input_type", string(req.InputType)),
		))
	defer span.End()

	content, err := c.invoke(ctx, req)
	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		logger.Warn(ctx, "remote generation failed",
			"content_type", req.ContentType,
			"error", err.Error(),
		)
	}
	metrics.RemoteInvokeTotal.WithLabelValues(string(req.ContentType), status).Inc()
	return content, err
}

func (c *Client) invoke(ctx context.Context, req service.InvokeRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", service.NewGenerationError(service.FailureTransport, req.ContentType, "failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", service.NewGenerationError(service.FailureTransport, req.ContentType, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("apikey", c.apiKey)
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", service.NewGenerationError(service.FailureTransport, req.ContentType, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		gerr := service.NewGenerationError(service.FailureRemote, req.ContentType,
			fmt.Sprintf("HTTP error! status: %d", resp.StatusCode), nil)
		gerr.StatusCode = resp.StatusCode
		var parsed response
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error != "" {
			gerr.Message += ": " + parsed.Error
		}
		return "", gerr
	}

	var parsed response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", service.NewGenerationError(service.FailureRemote, req.ContentType, "invalid response body", err)
	}
	// 缺省 success 时按内容判定；显式 false 一律视为失败
	if parsed.Success != nil && !*parsed.Success {
		msg := parsed.Error
		if msg == "" {
			msg = "remote function reported failure"
		}
		gerr := service.NewGenerationError(service.FailureRemote, req.ContentType, msg, nil)
		gerr.StatusCode = resp.StatusCode
		return "", gerr
	}

	content := parsed.Content
	if content == "" {
		content = parsed.GeneratedText
	}
	if strings.TrimSpace(content) == "" {
		return "", service.NewGenerationError(service.FailureEmpty, req.ContentType, "No content generated", nil)
	}
	return content, nil
}
