package entity

import "time"

// SessionSnapshot 会话状态快照，用于对外展示和缓存
type SessionSnapshot struct {
	ID           string                      `json:"id"`
	ProjectID    string                      `json:"projectId"`
	Input        string                      `json:"input"`
	InputType    InputType                   `json:"inputType"`
	Settings     QualitySettings             `json:"settings"`
	Items        []*ContentItem              `json:"items"`
	History      ContentHistory              `json:"history,omitempty"`
	Requests     map[ContentType]ItemRequest `json:"requests,omitempty"`
	Insights     string                      `json:"insights,omitempty"`
	Plans        string                      `json:"plans,omitempty"`
	SelectedPlan string                      `json:"selectedPlan,omitempty"`
	Running      bool                        `json:"running"`
	// PipelineDone 核心与派生阶段均已结束
	PipelineDone bool      `json:"pipelineDone"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Item 按 ID 查找条目
func (s *SessionSnapshot) Item(id ContentType) (*ContentItem, bool) {
	for _, it := range s.Items {
		if it.ID == id {
			return it, true
		}
	}
	return nil, false
}

// CountByStatus 统计各状态的条目数
func (s *SessionSnapshot) CountByStatus() map[ItemStatus]int {
	out := make(map[ItemStatus]int, 4)
	for _, it := range s.Items {
		out[it.Status]++
	}
	return out
}
