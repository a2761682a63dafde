package prompt

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"drm-scribe-orchestra/internal/domain/entity"
)

//go:embed templates/*.txt
var templatesFS embed.FS

// defaultTemplate 未知内容类型使用的模板名
const defaultTemplate = "default"

// DefaultMaxTokens 未知内容类型的 token 上限
const DefaultMaxTokens = 4000

// inputContextVar 用户模板中的输入占位变量
const inputContextVar = "input_context"

var maxTokensByType = map[entity.ContentType]int{
	entity.ContentTypeInsightsAnalysis: 2000,
	entity.ContentTypePlanProposal:     3000,
	entity.ContentTypeFreeContent:      6000,
	entity.ContentTypeSalesLetter:      16000,
	entity.ContentTypeShortLP:          4000,
	entity.ContentTypeEducationPosts:   8000,
	entity.ContentTypeCampaignPost:     3000,
	entity.ContentTypeLongLP:           12000,
	entity.ContentTypeStepMails:        10000,
	entity.ContentTypeRepostBonus:      4000,
	entity.ContentTypeWebinarScript:    10000,
	entity.ContentTypeVSLScript:        10000,
	entity.ContentTypeImprovement:      16000,
	entity.ContentTypeEvaluation:       3000,
}

// ContentConfig 某内容类型的系统提示词与 token 上限
type ContentConfig struct {
	SystemPrompt string
	MaxTokens    int
}

// Registry 内容类型 → 提示词模板注册表，模板按需解析并缓存
type Registry struct {
	mu    sync.RWMutex
	cache map[string]einoprompt.ChatTemplate
}

func NewRegistry() *Registry {
	return &Registry{
		cache: make(map[string]einoprompt.ChatTemplate),
	}
}

// ConfigFor 返回内容类型的配置；未知类型回退到默认配置
func (r *Registry) ConfigFor(ct entity.ContentType) ContentConfig {
	name := templateName(ct)
	system, err := readEmbeddedText(name + ".system.txt")
	if err != nil {
		system, _ = readEmbeddedText(defaultTemplate + ".system.txt")
	}
	maxTokens, ok := maxTokensByType[ct]
	if !ok {
		maxTokens = DefaultMaxTokens
	}
	return ContentConfig{SystemPrompt: system, MaxTokens: maxTokens}
}

// PromptFor 生成内容类型的用户提示词；未知类型回退到默认模板
func (r *Registry) PromptFor(ct entity.ContentType, input string, inputType entity.InputType) string {
	msgs, err := r.Messages(context.Background(), ct, input, inputType)
	if err == nil && len(msgs) == 2 {
		return msgs[1].Content
	}
	user, _ := readEmbeddedText(defaultTemplate + ".user.txt")
	return strings.ReplaceAll(user, "{"+inputContextVar+"}", InputContext(input, inputType))
}

// Messages 渲染 system + user 两条消息
func (r *Registry) Messages(ctx context.Context, ct entity.ContentType, input string, inputType entity.InputType) ([]*schema.Message, error) {
	tpl, err := r.ChatTemplate(ct)
	if err != nil {
		return nil, err
	}
	return tpl.Format(ctx, map[string]any{
		inputContextVar: InputContext(input, inputType),
	})
}

// ChatTemplate 返回内容类型对应的 eino 模板
func (r *Registry) ChatTemplate(ct entity.ContentType) (einoprompt.ChatTemplate, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry is nil")
	}
	name := templateName(ct)

	r.mu.RLock()
	if tpl, ok := r.cache[name]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[name]; ok {
		return tpl, nil
	}

	system, err := readEmbeddedText(name + ".system.txt")
	if err != nil {
		return nil, err
	}
	user, err := readEmbeddedText(name + ".user.txt")
	if err != nil {
		return nil, err
	}

	tpl := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	r.cache[name] = tpl
	return tpl, nil
}

// InputContext 按输入类型加上前缀：商品情報 或 既存コンテンツ
func InputContext(input string, inputType entity.InputType) string {
	if inputType == entity.InputTypeProductInfo {
		return "商品情報: " + input
	}
	return "既存コンテンツ: " + input
}

func templateName(ct entity.ContentType) string {
	if _, ok := maxTokensByType[ct]; ok {
		return string(ct)
	}
	return defaultTemplate
}

func readEmbeddedText(name string) (string, error) {
	b, err := templatesFS.ReadFile("templates/" + name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
