package prompt

import (
	"strings"

	"drm-scribe-orchestra/internal/domain/entity"
)

// contextWindow 注入到用户提示词中的历史条数
const contextWindow = 2

const defaultExpertise = "マーケティングコンテンツの専門家"

var expertiseByType = map[entity.ContentType]string{
	entity.ContentTypeInsightsAnalysis: "DRMマーケティングの実績豊富なCMO",
	entity.ContentTypePlanProposal:     "戦略的思考に長けたマーケティングプランナー",
	entity.ContentTypeFreeContent:      "心理学とマーケティングを熟知したトップライター",
	entity.ContentTypeSalesLetter:      "神田昌典やゲイリーハルバート級のセールスライティング専門家",
	entity.ContentTypeEducationPosts:   "SNSマーケティングとエンゲージメント設計のスペシャリスト",
}

var audienceInstructions = map[entity.TargetAudience]string{
	entity.AudienceBeginner: "専門用語を避け、分かりやすい表現を使用してください。",
	entity.AudienceExpert:   "業界の専門用語や高度な概念を適切に使用してください。",
	entity.AudienceBusiness: "ビジネス的な観点と実用性を重視してください。",
	entity.AudienceYouth:    "親しみやすく、エネルギッシュなトーンを使用してください。",
	entity.AudienceSenior:   "丁寧で信頼感のある表現を心がけてください。",
	entity.AudienceGeneral:  "幅広い読者に理解しやすい表現を使用してください。",
}

var styleInstructions = map[entity.WritingStyle]string{
	entity.StyleFormal:       "敬語を使用し、格式高い文章にしてください。",
	entity.StyleFriendly:     "読者との距離感を縮め、親近感のある文章にしてください。",
	entity.StylePassionate:   "感情に訴える力強い表現を使用してください。",
	entity.StyleProfessional: "正確性と詳細さを重視した文章にしてください。",
	entity.StyleCasual:       "リラックスした雰囲気の文章にしてください。",
	entity.StylePersuasive:   "論理的根拠と感情的訴求を組み合わせた説得力のある文章にしてください。",
}

var focusInstructions = map[entity.QualityFocus]string{
	entity.FocusReadability:  "文章の流れと構造を重視し、読みやすさを最優先にしてください。",
	entity.FocusPersuasion:   "論理的根拠と感情的訴求を効果的に組み合わせてください。",
	entity.FocusEmotional:    "読者の感情に強く響く表現と具体的エピソードを使用してください。",
	entity.FocusLogic:        "明確な論理構造と根拠に基づいた主張を展開してください。",
	entity.FocusPracticality: "読者が即座に実践できる具体的なアクションを提示してください。",
	entity.FocusOriginality:  "他にはない独自の視点や新しいアプローチを取り入れてください。",
}

const additionalInstructions = `【追加指示】
- スマホ表示を考慮し、60-80文字程度で適度に改行してください
- 重要なポイントは太字や箇条書きを効果的に使用してください
- 読者の行動を促す明確なCTAを含めてください
- 感情と論理のバランスを取った説得力のある文章にしてください`

// OptimizedPrompt 优化后的提示词及生成策略
type OptimizedPrompt struct {
	SystemPrompt          string
	UserPrompt            string
	UseMultipleGeneration bool
	UseAutoImprovement    bool
}

// Optimize 按质量设置增强 system/user 提示词；纯函数，相同输入得到相同输出
func Optimize(systemPrompt, userPrompt string, settings entity.QualitySettings, ct entity.ContentType, history []string) OptimizedPrompt {
	return OptimizedPrompt{
		SystemPrompt:          enhanceSystemPrompt(systemPrompt, settings, ct),
		UserPrompt:            structureUserPrompt(userPrompt, settings, history),
		UseMultipleGeneration: settings.MultipleGeneration,
		UseAutoImprovement:    settings.AutoImprovement,
	}
}

func enhanceSystemPrompt(original string, settings entity.QualitySettings, ct entity.ContentType) string {
	expertise, ok := expertiseByType[ct]
	if !ok {
		expertise = defaultExpertise
	}

	focus := make([]string, 0, len(settings.QualityFocus))
	for _, f := range settings.QualityFocus {
		focus = append(focus, focusInstructions[f])
	}

	var b strings.Builder
	b.WriteString("あなたは" + expertise + "です。\n\n")
	b.WriteString(original)
	b.WriteString("\n\n【ターゲット読者への配慮】\n")
	b.WriteString(audienceInstructions[settings.TargetAudience])
	b.WriteString("\n\n【文体・トーンの指定】\n")
	b.WriteString(styleInstructions[settings.WritingStyle])
	b.WriteString("\n\n【品質重視項目】\n")
	b.WriteString(strings.Join(focus, "\n"))
	b.WriteString("\n\n")
	b.WriteString(additionalInstructions)
	return b.String()
}

func structureUserPrompt(original string, settings entity.QualitySettings, history []string) string {
	request := original
	if settings.ContextPreservation && len(history) > 0 {
		recent := history[max(0, len(history)-contextWindow):]
		request = "【これまでの生成コンテキスト】\n" +
			"以下は同じプロジェクトで過去に生成されたコンテンツです。一貫性を保ちながら新しいコンテンツを作成してください：\n\n" +
			strings.Join(recent, "\n\n---\n\n") +
			"\n\n" + original
	}

	var b strings.Builder
	b.WriteString("【ターゲット読者】\n")
	b.WriteString(string(settings.TargetAudience) + "向けのコンテンツとして作成してください。\n\n")
	b.WriteString("【品質要件】\n以下の点を特に重視してください：\n")
	b.WriteString(bulletList(settings.QualityFocus))
	b.WriteString("\n\n【出力形式要件】\n")
	b.WriteString("・スマホ表示最適化（60-80文字での改行）\n")
	b.WriteString("・" + string(settings.WritingStyle) + "なトーンで執筆\n")
	b.WriteString("・見出し、太字、箇条書きを効果的に使用\n")
	b.WriteString("・明確なCTA（行動喚起）を含む\n\n")
	b.WriteString("【コンテンツ生成要求】\n")
	b.WriteString(request)
	return b.String()
}

// ImprovementPrompt 构造自动改善用的用户提示词
func ImprovementPrompt(content string, ct entity.ContentType, settings entity.QualitySettings) string {
	var b strings.Builder
	b.WriteString("以下のコンテンツを、より高品質になるよう改善・校正してください。\n\n")
	b.WriteString("【改善重視項目】\n")
	b.WriteString(bulletList(settings.QualityFocus))
	b.WriteString("\n\n【ターゲット読者】\n" + string(settings.TargetAudience))
	b.WriteString("\n\n【希望する文体】\n" + string(settings.WritingStyle))
	b.WriteString("\n\n【改善指示】\n")
	b.WriteString("1. 文章の流れと構造を最適化\n")
	b.WriteString("2. より魅力的で読みやすい表現に修正\n")
	b.WriteString("3. 論理性と感情的訴求のバランス調整\n")
	b.WriteString("4. スマホ表示での読みやすさ向上\n")
	b.WriteString("5. より強力なCTA（行動喚起）への改善\n\n")
	if info, ok := entity.LookupContentType(ct); ok {
		b.WriteString("【コンテンツ種別】\n" + info.Title + "\n\n")
	}
	b.WriteString("【元のコンテンツ】\n" + content)
	b.WriteString("\n\n【改善版を出力してください】")
	return b.String()
}

// EvaluationPrompt 构造质量评价用的用户提示词
func EvaluationPrompt(content string, ct entity.ContentType) string {
	var b strings.Builder
	b.WriteString("以下のコンテンツを客観的に評価し、改善提案をしてください。\n\n")
	b.WriteString("【評価項目】\n")
	b.WriteString("1. 読みやすさ（5点満点）\n")
	b.WriteString("2. 説得力（5点満点）\n")
	b.WriteString("3. 感情的訴求力（5点満点）\n")
	b.WriteString("4. 論理性（5点満点）\n")
	b.WriteString("5. 実用性（5点満点）\n")
	b.WriteString("6. 独創性（5点満点）\n\n")
	if info, ok := entity.LookupContentType(ct); ok {
		b.WriteString("【コンテンツ種別】\n" + info.Title + "\n\n")
	}
	b.WriteString("【評価対象コンテンツ】\n" + content)
	b.WriteString("\n\n【評価形式】\n")
	b.WriteString("各項目について点数と理由を述べ、最後に総合評価と具体的な改善提案を3つ以上提示してください。")
	return b.String()
}

func bulletList(focus []entity.QualityFocus) string {
	lines := make([]string, 0, len(focus))
	for _, f := range focus {
		lines = append(lines, "・"+string(f))
	}
	return strings.Join(lines, "\n")
}
