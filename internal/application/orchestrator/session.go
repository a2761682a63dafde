package orchestrator

import (
	"sync"
	"time"

	"drm-scribe-orchestra/internal/domain/entity"
	apperrors "drm-scribe-orchestra/pkg/errors"
)

// Session 单个会话的可变状态；所有条目按 ID 更新，不依赖位置
type Session struct {
	mu sync.Mutex

	id        string
	projectID string
	input     string
	inputType entity.InputType
	settings  entity.QualitySettings

	items    map[entity.ContentType]*entity.ContentItem
	order    []entity.ContentType
	history  entity.ContentHistory
	requests map[entity.ContentType]entity.ItemRequest

	insights     string
	plans        string
	selectedPlan string

	running      bool
	pipelineDone bool

	createdAt time.Time
	updatedAt time.Time
}

func newSession(id, projectID string, settings entity.QualitySettings) *Session {
	now := time.Now()
	return &Session{
		id:        id,
		projectID: projectID,
		inputType: entity.InputTypeProductInfo,
		settings:  settings.Clone(),
		items:     make(map[entity.ContentType]*entity.ContentItem),
		history:   entity.ContentHistory{},
		requests:  make(map[entity.ContentType]entity.ItemRequest),
		createdAt: now,
		updatedAt: now,
	}
}

func sessionFromSnapshot(snap *entity.SessionSnapshot) *Session {
	s := newSession(snap.ID, snap.ProjectID, snap.Settings)
	s.input = snap.Input
	if snap.InputType != "" {
		s.inputType = snap.InputType
	}
	for _, it := range snap.Items {
		cp := it.Clone()
		// 进程重启后不会有在途调用
		if cp.Status == entity.ItemStatusPending {
			cp.Status = entity.ItemStatusError
			cp.Error = "interrupted"
		}
		s.items[cp.ID] = cp
		s.order = append(s.order, cp.ID)
	}
	if snap.History != nil {
		s.history = snap.History.Clone()
	}
	for k, v := range snap.Requests {
		s.requests[k] = v
	}
	s.insights = snap.Insights
	s.plans = snap.Plans
	s.selectedPlan = snap.SelectedPlan
	s.pipelineDone = snap.PipelineDone
	s.createdAt = snap.CreatedAt
	s.updatedAt = snap.UpdatedAt
	return s
}

// Snapshot 返回当前状态的深拷贝
func (s *Session) Snapshot() *entity.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() *entity.SessionSnapshot {
	items := make([]*entity.ContentItem, 0, len(s.order))
	for _, id := range s.order {
		items = append(items, s.items[id].Clone())
	}
	requests := make(map[entity.ContentType]entity.ItemRequest, len(s.requests))
	for k, v := range s.requests {
		requests[k] = v
	}
	return &entity.SessionSnapshot{
		ID:           s.id,
		ProjectID:    s.projectID,
		Input:        s.input,
		InputType:    s.inputType,
		Settings:     s.settings.Clone(),
		Items:        items,
		History:      s.history.Clone(),
		Requests:     requests,
		Insights:     s.insights,
		Plans:        s.plans,
		SelectedPlan: s.selectedPlan,
		Running:      s.running,
		PipelineDone: s.pipelineDone,
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
	}
}

func (s *Session) touchLocked() {
	s.updatedAt = time.Now()
}

// placeLocked 放入新的占位条目；已存在的同 ID 条目被替换但保留原位置
func (s *Session) placeLocked(ct entity.ContentType, status entity.ItemStatus) {
	if _, ok := s.items[ct]; !ok {
		s.order = append(s.order, ct)
	}
	s.items[ct] = entity.NewContentItem(ct, status)
	s.touchLocked()
}

func (s *Session) itemLocked(ct entity.ContentType) (*entity.ContentItem, error) {
	it, ok := s.items[ct]
	if !ok {
		return nil, apperrors.ErrItemNotFound.WithDetail(string(ct))
	}
	return it, nil
}

// pendingLocked 返回任一处于 Pending 的条目
func (s *Session) pendingLocked() (entity.ContentType, bool) {
	for _, id := range s.order {
		if s.items[id].Status == entity.ItemStatusPending {
			return id, true
		}
	}
	return "", false
}

// begin 将条目迁移到 Pending；流水线运行期间拒绝
func (s *Session) begin(ct entity.ContentType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return apperrors.ErrGenerationInProgress.WithDetail("pipeline is running")
	}
	it, err := s.itemLocked(ct)
	if err != nil {
		return err
	}
	if it.Status == entity.ItemStatusPending {
		return apperrors.ErrGenerationInProgress.WithDetail(string(ct))
	}
	if err := it.TransitionTo(entity.ItemStatusPending); err != nil {
		return err
	}
	s.touchLocked()
	return nil
}

// remember 记录条目实际使用的请求参数，供重新生成复用
func (s *Session) remember(ct entity.ContentType, req entity.ItemRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[ct] = req
}

// complete 写入成功结果；开启上下文保持时把生成原文（非改进稿）追加到历史
func (s *Session) complete(ct entity.ContentType, res entity.GenerationResult) (*entity.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, err := s.itemLocked(ct)
	if err != nil {
		return nil, err
	}
	if err := it.Complete(res); err != nil {
		return nil, err
	}
	if s.settings.ContextPreservation {
		raw := res.Content
		if raw == "" {
			raw = it.Content
		}
		s.history.Append(ct, raw)
	}
	s.touchLocked()
	return it.Clone(), nil
}

func (s *Session) fail(ct entity.ContentType, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, err := s.itemLocked(ct)
	if err != nil {
		return err
	}
	if err := it.Fail(reason); err != nil {
		return err
	}
	s.touchLocked()
	return nil
}

// output 返回已完成条目的正文；未完成时 ok=false
func (s *Session) output(ct entity.ContentType) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[ct]
	if !ok || it.Status != entity.ItemStatusCompleted {
		return "", false
	}
	return it.Content, true
}

func (s *Session) historyFor(ct entity.ContentType) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Get(ct)
}

func (s *Session) currentSettings() entity.QualitySettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Clone()
}

func (s *Session) request(ct entity.ContentType) (entity.ItemRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[ct]
	return r, ok
}
