package entity

import (
	"fmt"

	apperrors "drm-scribe-orchestra/pkg/errors"
)

// TargetAudience 目标读者
type TargetAudience string

const (
	AudienceBeginner TargetAudience = "初心者"
	AudienceGeneral  TargetAudience = "一般"
	AudienceExpert   TargetAudience = "専門家"
	AudienceBusiness TargetAudience = "ビジネス"
	AudienceYouth    TargetAudience = "若年層"
	AudienceSenior   TargetAudience = "中高年"
)

// WritingStyle 文体
type WritingStyle string

const (
	StyleFormal       WritingStyle = "フォーマル"
	StyleFriendly     WritingStyle = "親しみやすい"
	StylePassionate   WritingStyle = "情熱的"
	StyleProfessional WritingStyle = "専門的"
	StyleCasual       WritingStyle = "カジュアル"
	StylePersuasive   WritingStyle = "説得的"
)

// QualityFocus 品质重点
type QualityFocus string

const (
	FocusReadability  QualityFocus = "読みやすさ"
	FocusPersuasion   QualityFocus = "説得力"
	FocusEmotional    QualityFocus = "感情的訴求"
	FocusLogic        QualityFocus = "論理性"
	FocusPracticality QualityFocus = "実用性"
	FocusOriginality  QualityFocus = "独創性"
)

// 候选数量范围
const (
	MinGenerationCount = 2
	MaxGenerationCount = 5
)

// QualitySettings 用户可调的生成质量参数
type QualitySettings struct {
	MultipleGeneration  bool           `json:"multipleGeneration"`
	GenerationCount     int            `json:"generationCount"`
	AutoImprovement     bool           `json:"autoImprovement"`
	ContextPreservation bool           `json:"contextPreservation"`
	TargetAudience      TargetAudience `json:"targetAudience"`
	WritingStyle        WritingStyle   `json:"writingStyle"`
	QualityFocus        []QualityFocus `json:"qualityFocus"`
}

// DefaultQualitySettings 返回默认质量设置
func DefaultQualitySettings() QualitySettings {
	return QualitySettings{
		MultipleGeneration:  false,
		GenerationCount:     3,
		AutoImprovement:     false,
		ContextPreservation: true,
		TargetAudience:      AudienceGeneral,
		WritingStyle:        StyleFriendly,
		QualityFocus:        []QualityFocus{FocusReadability, FocusPersuasion},
	}
}

// Validate 校验质量设置
func (s QualitySettings) Validate() error {
	if s.GenerationCount < MinGenerationCount || s.GenerationCount > MaxGenerationCount {
		return apperrors.ErrInvalidParam.WithDetail(
			fmt.Sprintf("generationCount must be between %d and %d", MinGenerationCount, MaxGenerationCount))
	}
	switch s.TargetAudience {
	case AudienceBeginner, AudienceGeneral, AudienceExpert, AudienceBusiness, AudienceYouth, AudienceSenior:
	default:
		return apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("unknown targetAudience %q", s.TargetAudience))
	}
	switch s.WritingStyle {
	case StyleFormal, StyleFriendly, StylePassionate, StyleProfessional, StyleCasual, StylePersuasive:
	default:
		return apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("unknown writingStyle %q", s.WritingStyle))
	}
	seen := make(map[QualityFocus]struct{}, len(s.QualityFocus))
	for _, f := range s.QualityFocus {
		switch f {
		case FocusReadability, FocusPersuasion, FocusEmotional, FocusLogic, FocusPracticality, FocusOriginality:
		default:
			return apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("unknown qualityFocus %q", f))
		}
		if _, dup := seen[f]; dup {
			return apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("duplicate qualityFocus %q", f))
		}
		seen[f] = struct{}{}
	}
	return nil
}

// Clone 深拷贝设置
func (s QualitySettings) Clone() QualitySettings {
	s.QualityFocus = append([]QualityFocus(nil), s.QualityFocus...)
	return s
}
