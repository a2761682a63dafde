// Package entity 定义领域实体
package entity

import (
	"time"

	apperrors "drm-scribe-orchestra/pkg/errors"
)

// ContentType 内容类型标识，同时作为会话内条目 ID
type ContentType string

const (
	ContentTypeInsightsAnalysis ContentType = "insights_analysis"
	ContentTypePlanProposal     ContentType = "plan_proposal"
	ContentTypeFreeContent      ContentType = "free_content"
	ContentTypeSalesLetter      ContentType = "sales_letter"
	ContentTypeShortLP          ContentType = "short_lp"
	ContentTypeEducationPosts   ContentType = "education_posts"
	ContentTypeCampaignPost     ContentType = "campaign_post"
	ContentTypeLongLP           ContentType = "long_lp"
	ContentTypeStepMails        ContentType = "step_mails"
	ContentTypeRepostBonus      ContentType = "repost_bonus"
	ContentTypeWebinarScript    ContentType = "webinar_script"
	ContentTypeVSLScript        ContentType = "vsl_script"
	ContentTypeImprovement      ContentType = "improvement"
	ContentTypeEvaluation       ContentType = "evaluation"
)

// InputType 生成输入的类型
type InputType string

const (
	InputTypeProductInfo    InputType = "product_info"
	InputTypeContentText    InputType = "content_text"
	InputTypeAnalysisResult InputType = "analysis_result"
)

// Valid 检查输入类型是否合法
func (t InputType) Valid() bool {
	switch t {
	case InputTypeProductInfo, InputTypeContentText, InputTypeAnalysisResult:
		return true
	default:
		return false
	}
}

// Category 内容分类
type Category string

const (
	CategoryFree     Category = "free"
	CategorySales    Category = "sales"
	CategoryOptional Category = "optional"
)

// Stage 内容所属的流水线阶段
type Stage string

const (
	StageCore       Stage = "core"
	StageDerivative Stage = "derivative"
	StageOptional   Stage = "optional"
	// StageAuxiliary 不进入流水线的辅助类型（分析、企划、改善、评价）
	StageAuxiliary Stage = "auxiliary"
)

// ContentTypeInfo 内容类型目录项
type ContentTypeInfo struct {
	Type     ContentType `json:"id"`
	Title    string      `json:"title"`
	Category Category    `json:"category"`
	Stage    Stage       `json:"stage"`
	// Base 派生/可选内容的上游核心内容
	Base ContentType `json:"base,omitempty"`
}

// catalog 的顺序即流水线内的声明顺序
var catalog = []ContentTypeInfo{
	{Type: ContentTypeInsightsAnalysis, Title: "インサイト分析", Category: CategoryFree, Stage: StageAuxiliary},
	{Type: ContentTypePlanProposal, Title: "企画提案", Category: CategoryFree, Stage: StageAuxiliary},
	{Type: ContentTypeFreeContent, Title: "無料プレゼント用記事", Category: CategoryFree, Stage: StageCore},
	{Type: ContentTypeSalesLetter, Title: "セールスレター", Category: CategorySales, Stage: StageCore},
	{Type: ContentTypeShortLP, Title: "リストイン用短LP", Category: CategoryFree, Stage: StageDerivative, Base: ContentTypeFreeContent},
	{Type: ContentTypeEducationPosts, Title: "教育ポスト（9本）", Category: CategoryFree, Stage: StageDerivative, Base: ContentTypeFreeContent},
	{Type: ContentTypeCampaignPost, Title: "企画ポスト", Category: CategoryFree, Stage: StageDerivative, Base: ContentTypeFreeContent},
	{Type: ContentTypeLongLP, Title: "商品販売用LP", Category: CategorySales, Stage: StageDerivative, Base: ContentTypeSalesLetter},
	{Type: ContentTypeStepMails, Title: "ステップメール（7通）", Category: CategorySales, Stage: StageDerivative, Base: ContentTypeSalesLetter},
	{Type: ContentTypeRepostBonus, Title: "リポスト特典", Category: CategoryOptional, Stage: StageOptional, Base: ContentTypeFreeContent},
	{Type: ContentTypeWebinarScript, Title: "ウェビナー台本とスライド", Category: CategoryOptional, Stage: StageOptional, Base: ContentTypeFreeContent},
	{Type: ContentTypeVSLScript, Title: "VSL台本とスライド", Category: CategoryOptional, Stage: StageOptional, Base: ContentTypeSalesLetter},
	{Type: ContentTypeImprovement, Title: "品質改善", Category: CategoryOptional, Stage: StageAuxiliary},
	{Type: ContentTypeEvaluation, Title: "品質評価", Category: CategoryOptional, Stage: StageAuxiliary},
}

var catalogIndex = func() map[ContentType]ContentTypeInfo {
	m := make(map[ContentType]ContentTypeInfo, len(catalog))
	for _, info := range catalog {
		m[info.Type] = info
	}
	return m
}()

// Catalog 返回完整内容类型目录（副本）
func Catalog() []ContentTypeInfo {
	out := make([]ContentTypeInfo, len(catalog))
	copy(out, catalog)
	return out
}

// LookupContentType 查询内容类型目录项
func LookupContentType(ct ContentType) (ContentTypeInfo, bool) {
	info, ok := catalogIndex[ct]
	return info, ok
}

// TypesInStage 按声明顺序返回某阶段的全部内容类型
func TypesInStage(stage Stage) []ContentType {
	out := make([]ContentType, 0, 5)
	for _, info := range catalog {
		if info.Stage == stage {
			out = append(out, info.Type)
		}
	}
	return out
}

// ItemStatus 内容条目状态
type ItemStatus string

const (
	ItemStatusNotStarted ItemStatus = "not_started"
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusError      ItemStatus = "error"
)

// CanTransition 校验状态迁移：NotStarted→Pending→{Completed,Error}，Completed|Error→Pending
func CanTransition(from, to ItemStatus) bool {
	switch from {
	case ItemStatusNotStarted:
		return to == ItemStatusPending
	case ItemStatusPending:
		return to == ItemStatusCompleted || to == ItemStatusError
	case ItemStatusCompleted, ItemStatusError:
		return to == ItemStatusPending
	default:
		return false
	}
}

// ItemRequest 条目的原始生成参数，重新生成时原样复用
type ItemRequest struct {
	ContentType  ContentType `json:"contentType"`
	Input        string      `json:"input"`
	InputType    InputType   `json:"inputType"`
	SystemPrompt string      `json:"systemPrompt,omitempty"`
	UserPrompt   string      `json:"userPrompt,omitempty"`
}

// GenerationResult 单次生成调用的结果
type GenerationResult struct {
	Content      string   `json:"content"`
	Alternatives []string `json:"alternatives,omitempty"`
	Evaluation   string   `json:"evaluation,omitempty"`
	Improved     string   `json:"improved,omitempty"`
}

// ContentItem 会话内的一个生成内容条目
type ContentItem struct {
	ID           ContentType `json:"id"`
	Title        string      `json:"title"`
	Content      string      `json:"content"`
	Status       ItemStatus  `json:"status"`
	Category     Category    `json:"category"`
	Alternatives []string    `json:"alternatives,omitempty"`
	// SelectedIndex 当前选中的候选下标
	SelectedIndex int `json:"selectedIndex"`
	// Original 自动改善前的内容
	Original   string    `json:"original,omitempty"`
	Evaluation string    `json:"evaluation,omitempty"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// NewContentItem 按目录信息创建占位条目
func NewContentItem(ct ContentType, status ItemStatus) *ContentItem {
	item := &ContentItem{
		ID:        ct,
		Title:     string(ct),
		Status:    status,
		Category:  CategoryOptional,
		UpdatedAt: time.Now(),
	}
	if info, ok := LookupContentType(ct); ok {
		item.Title = info.Title
		item.Category = info.Category
	}
	return item
}

// TransitionTo 迁移条目状态，非法迁移返回 ErrInvalidTransition
func (i *ContentItem) TransitionTo(status ItemStatus) error {
	if !CanTransition(i.Status, status) {
		return apperrors.ErrInvalidTransition.WithDetail(string(i.Status) + " -> " + string(status))
	}
	i.Status = status
	i.UpdatedAt = time.Now()
	if status == ItemStatusPending {
		i.Error = ""
	}
	return nil
}

// Complete 以生成结果完成条目；存在改善版本时以改善版本为正文
func (i *ContentItem) Complete(res GenerationResult) error {
	if err := i.TransitionTo(ItemStatusCompleted); err != nil {
		return err
	}
	i.Content = res.Content
	i.Original = ""
	if res.Improved != "" && res.Improved != res.Content {
		i.Original = res.Content
		i.Content = res.Improved
	}
	i.Alternatives = append([]string(nil), res.Alternatives...)
	i.SelectedIndex = 0
	if res.Evaluation != "" {
		i.Evaluation = res.Evaluation
	}
	return nil
}

// Fail 将条目标记为失败
func (i *ContentItem) Fail(reason string) error {
	if err := i.TransitionTo(ItemStatusError); err != nil {
		return err
	}
	i.Error = reason
	return nil
}

// SelectAlternative 选中候选 idx，越界时回退到 0；返回实际选中的下标
func (i *ContentItem) SelectAlternative(idx int) int {
	if len(i.Alternatives) == 0 {
		return 0
	}
	if idx < 0 || idx >= len(i.Alternatives) {
		idx = 0
	}
	i.SelectedIndex = idx
	i.Content = i.Alternatives[idx]
	i.Original = ""
	i.UpdatedAt = time.Now()
	return idx
}

// Clone 深拷贝条目
func (i *ContentItem) Clone() *ContentItem {
	if i == nil {
		return nil
	}
	cp := *i
	cp.Alternatives = append([]string(nil), i.Alternatives...)
	return &cp
}
