// Package orchestrator 编排多阶段内容生成：核心 → 派生 → 可选
package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"drm-scribe-orchestra/internal/domain/entity"
	"drm-scribe-orchestra/internal/domain/repository"
	"drm-scribe-orchestra/internal/domain/service"
	"drm-scribe-orchestra/internal/workflow/prompt"
	apperrors "drm-scribe-orchestra/pkg/errors"
	"drm-scribe-orchestra/pkg/logger"
	"drm-scribe-orchestra/pkg/metrics"
)

// 生成模式
const (
	ModeParallel   = "parallel"
	ModeSequential = "sequential"
)

// 上游缺失策略
const (
	MissingUpstreamDispatch = "dispatch"
	MissingUpstreamSkip     = "skip"
)

// upstreamFailedReason 跳过派生内容时写入条目的错误原因
const upstreamFailedReason = "upstream failed"

// Config 编排参数
type Config struct {
	ProjectID       string
	Mode            string
	MaxConcurrency  int
	MissingUpstream string
}

// Orchestrator 会话级内容生成编排器
type Orchestrator struct {
	invoker  service.ContentInvoker
	quality  *QualityGenerator
	store    repository.SessionStore
	notifier Notifier
	cfg      Config

	mu       sync.RWMutex
	sessions map[string]*Session
	loads    singleflight.Group
	wg       sync.WaitGroup
}

// New 创建编排器；store 与 notifier 可为 nil
func New(invoker service.ContentInvoker, registry *prompt.Registry, store repository.SessionStore, notifier Notifier, cfg Config) *Orchestrator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeParallel
	}
	if cfg.MissingUpstream == "" {
		cfg.MissingUpstream = MissingUpstreamDispatch
	}
	return &Orchestrator{
		invoker:  invoker,
		quality:  NewQualityGenerator(invoker, registry, cfg.MaxConcurrency),
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// CreateSessionInput 创建会话参数
type CreateSessionInput struct {
	Input     string
	InputType entity.InputType
	Settings  *entity.QualitySettings
}

// CreateSession 创建新会话
func (o *Orchestrator) CreateSession(ctx context.Context, in CreateSessionInput) (*entity.SessionSnapshot, error) {
	settings := entity.DefaultQualitySettings()
	if in.Settings != nil {
		if err := in.Settings.Validate(); err != nil {
			return nil, err
		}
		settings = in.Settings.Clone()
	}
	if in.InputType != "" && !in.InputType.Valid() {
		return nil, apperrors.ErrInvalidParam.WithDetail("unknown inputType " + string(in.InputType))
	}

	s := newSession(uuid.NewString(), o.cfg.ProjectID, settings)
	s.input = in.Input
	if in.InputType != "" {
		s.inputType = in.InputType
	}

	o.mu.Lock()
	o.sessions[s.id] = s
	o.mu.Unlock()
	metrics.ActiveSessions.Inc()

	o.persist(ctx, s)
	logger.Info(ctx, "session created", "session_id", s.id)
	return s.Snapshot(), nil
}

// GetSession 返回会话快照
func (o *Orchestrator) GetSession(ctx context.Context, id string) (*entity.SessionSnapshot, error) {
	s, err := o.session(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Snapshot(), nil
}

// UpdateSettings 替换会话的质量设置
func (o *Orchestrator) UpdateSettings(ctx context.Context, id string, settings entity.QualitySettings) (*entity.SessionSnapshot, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	s, err := o.session(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.settings = settings.Clone()
	s.touchLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	o.persist(ctx, s)
	return snap, nil
}

// ResetSettings 恢复默认质量设置
func (o *Orchestrator) ResetSettings(ctx context.Context, id string) (*entity.SessionSnapshot, error) {
	return o.UpdateSettings(ctx, id, entity.DefaultQualitySettings())
}

// Regenerate 用条目原始请求参数重新生成一次；条目 ID 保持不变
func (o *Orchestrator) Regenerate(ctx context.Context, id string, ct entity.ContentType) (*entity.ContentItem, error) {
	s, err := o.session(ctx, id)
	if err != nil {
		return nil, err
	}
	req, ok := s.request(ct)
	if !ok {
		req = o.fallbackRequest(s, ct)
	}
	if err := s.begin(ct); err != nil {
		return nil, err
	}
	// 调用方断开后条目仍需落到终态
	ctx = context.WithoutCancel(ctx)
	ctx = logger.WithContext(logger.WithContext(ctx, logger.SessionIDKey, s.id), logger.ContentTypeKey, string(ct))
	o.persist(ctx, s)
	o.notifier.Notify(ctx, newNotification(s.id, NotifyItemStarted, ct))

	content, err := o.invoker.Invoke(ctx, service.InvokeRequest{
		ProjectID:    s.projectID,
		SessionID:    s.id,
		ContentType:  ct,
		Input:        req.Input,
		InputType:    req.InputType,
		SystemPrompt: req.SystemPrompt,
		UserPrompt:   req.UserPrompt,
	})
	if err != nil {
		o.settleFailure(ctx, s, ct, err)
		snap := s.Snapshot()
		item, _ := snap.Item(ct)
		return item, err
	}

	item, err := s.complete(ct, entity.GenerationResult{Content: content})
	if err != nil {
		return nil, err
	}
	metrics.GenerationItemsTotal.WithLabelValues(string(ct), string(entity.ItemStatusCompleted)).Inc()
	o.persist(ctx, s)
	o.notifier.Notify(ctx, newNotification(s.id, NotifyRegenerated, ct))
	logger.Info(ctx, "item regenerated")
	return item, nil
}

// EditItem 手动编辑条目正文
func (o *Orchestrator) EditItem(ctx context.Context, id string, ct entity.ContentType, content string) (*entity.ContentItem, error) {
	s, err := o.session(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	it, err := s.itemLocked(ct)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if it.Status == entity.ItemStatusPending {
		s.mu.Unlock()
		return nil, apperrors.ErrGenerationInProgress.WithDetail(string(ct))
	}
	it.Content = content
	it.Original = ""
	it.UpdatedAt = time.Now()
	s.touchLocked()
	out := it.Clone()
	s.mu.Unlock()

	o.persist(ctx, s)
	return out, nil
}

// SelectAlternative 选择候选；越界时回退到第一个候选
func (o *Orchestrator) SelectAlternative(ctx context.Context, id string, ct entity.ContentType, idx int) (*entity.ContentItem, error) {
	s, err := o.session(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	it, err := s.itemLocked(ct)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if it.Status == entity.ItemStatusPending {
		s.mu.Unlock()
		return nil, apperrors.ErrGenerationInProgress.WithDetail(string(ct))
	}
	it.SelectAlternative(idx)
	s.touchLocked()
	out := it.Clone()
	s.mu.Unlock()

	o.persist(ctx, s)
	return out, nil
}

// EvaluateItem 对已完成条目做质量评价，评价结果写回条目
func (o *Orchestrator) EvaluateItem(ctx context.Context, id string, ct entity.ContentType) (string, error) {
	s, err := o.session(ctx, id)
	if err != nil {
		return "", err
	}
	content, ok := s.output(ct)
	if !ok {
		return "", apperrors.ErrInvalidParam.WithDetail("item has no completed content: " + string(ct))
	}

	evaluation, err := o.quality.Evaluate(ctx, s.projectID, s.id, ct, content)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if it, ok := s.items[ct]; ok {
		it.Evaluation = evaluation
		s.touchLocked()
	}
	s.mu.Unlock()
	o.persist(ctx, s)
	return evaluation, nil
}

// AnalyzeInsights 对商品信息做目标读者洞察分析
func (o *Orchestrator) AnalyzeInsights(ctx context.Context, id string, input string) (string, error) {
	s, err := o.session(ctx, id)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	if strings.TrimSpace(input) != "" {
		s.input = input
		s.inputType = entity.InputTypeProductInfo
	}
	productInfo := s.input
	s.mu.Unlock()
	if strings.TrimSpace(productInfo) == "" {
		return "", apperrors.ErrInvalidParam.WithDetail("商品情報が入力されていません")
	}

	result, err := o.invoker.Invoke(ctx, service.InvokeRequest{
		ProjectID:   s.projectID,
		SessionID:   s.id,
		ContentType: entity.ContentTypeInsightsAnalysis,
		Input:       productInfo,
		InputType:   entity.InputTypeProductInfo,
	})
	if err != nil {
		o.notifyStepFailure(ctx, s.id, "分析中にエラーが発生しました: ", err)
		return "", err
	}

	s.mu.Lock()
	s.insights = result
	s.plans = ""
	s.selectedPlan = ""
	s.touchLocked()
	s.mu.Unlock()

	o.persist(ctx, s)
	o.notifier.Notify(ctx, newNotification(s.id, NotifyInsightsReady, entity.ContentTypeInsightsAnalysis))
	return result, nil
}

// ProposePlans 基于洞察分析结果生成企划案
func (o *Orchestrator) ProposePlans(ctx context.Context, id string) (string, error) {
	s, err := o.session(ctx, id)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	insights := s.insights
	s.mu.Unlock()
	if strings.TrimSpace(insights) == "" {
		return "", apperrors.ErrInvalidParam.WithDetail("insights analysis has not been run")
	}

	result, err := o.invoker.Invoke(ctx, service.InvokeRequest{
		ProjectID:   s.projectID,
		SessionID:   s.id,
		ContentType: entity.ContentTypePlanProposal,
		Input:       insights,
		InputType:   entity.InputTypeAnalysisResult,
	})
	if err != nil {
		o.notifyStepFailure(ctx, s.id, "企画案生成中にエラーが発生しました: ", err)
		return "", err
	}

	s.mu.Lock()
	s.plans = result
	s.touchLocked()
	s.mu.Unlock()

	o.persist(ctx, s)
	o.notifier.Notify(ctx, newNotification(s.id, NotifyPlansReady, entity.ContentTypePlanProposal))
	return result, nil
}

// SelectPlan 记录选中的企划，下一次流水线的无料内容会引用它
func (o *Orchestrator) SelectPlan(ctx context.Context, id string, plan string) (*entity.SessionSnapshot, error) {
	plan = strings.TrimSpace(plan)
	if plan == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("plan is required")
	}
	s, err := o.session(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.selectedPlan = plan
	s.touchLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	o.persist(ctx, s)
	return snap, nil
}

// Drain 等待所有后台生成结束或 ctx 到期
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep 移除空闲超过 ttl 且无在途生成的内存会话，返回移除数量
func (o *Orchestrator) Sweep(now time.Time, ttl time.Duration) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	removed := 0
	for id, s := range o.sessions {
		s.mu.Lock()
		idle := !s.running && now.Sub(s.updatedAt) > ttl
		s.mu.Unlock()
		if idle {
			delete(o.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		metrics.ActiveSessions.Sub(float64(removed))
	}
	return removed
}

// RunJanitor 周期性清理空闲会话，ctx 取消后返回
func (o *Orchestrator) RunJanitor(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := o.Sweep(now, ttl); n > 0 {
				logger.Debug(ctx, "idle sessions swept", "count", n)
			}
		}
	}
}

// session 先查内存，未命中时从存储中恢复（同一 ID 并发恢复只读一次）
func (o *Orchestrator) session(ctx context.Context, id string) (*Session, error) {
	o.mu.RLock()
	s, ok := o.sessions[id]
	o.mu.RUnlock()
	if ok {
		return s, nil
	}
	if o.store == nil {
		return nil, apperrors.ErrSessionNotFound.WithDetail(id)
	}

	v, err, _ := o.loads.Do(id, func() (any, error) {
		snap, err := o.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		o.mu.Lock()
		defer o.mu.Unlock()
		if existing, ok := o.sessions[id]; ok {
			return existing, nil
		}
		restored := sessionFromSnapshot(snap)
		o.sessions[id] = restored
		metrics.ActiveSessions.Inc()
		return restored, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// persist 保存快照；失败只记录日志
func (o *Orchestrator) persist(ctx context.Context, s *Session) {
	if o.store == nil {
		return
	}
	if err := o.store.Save(ctx, s.Snapshot()); err != nil {
		logger.Warn(ctx, "failed to persist session snapshot", "session_id", s.id, "error", err.Error())
	}
}

func (o *Orchestrator) notifyStepFailure(ctx context.Context, sessionID, prefix string, err error) {
	n := newNotification(sessionID, NotifyItemFailed, "")
	n.Description = prefix + err.Error()
	o.notifier.Notify(ctx, n)
}

// fallbackRequest 条目没有记录请求时，按目录关系推导请求参数
func (o *Orchestrator) fallbackRequest(s *Session, ct entity.ContentType) entity.ItemRequest {
	s.mu.Lock()
	input, inputType, plan, insights := s.input, s.inputType, s.selectedPlan, s.insights
	s.mu.Unlock()

	info, _ := entity.LookupContentType(ct)
	switch {
	case info.Stage == entity.StageCore:
		if ct == entity.ContentTypeFreeContent {
			input = withPlan(input, plan)
		}
		return entity.ItemRequest{ContentType: ct, Input: input, InputType: inputType}
	case info.Base != "":
		base, _ := s.output(info.Base)
		return entity.ItemRequest{ContentType: ct, Input: base, InputType: entity.InputTypeContentText}
	case ct == entity.ContentTypePlanProposal:
		return entity.ItemRequest{ContentType: ct, Input: insights, InputType: entity.InputTypeAnalysisResult}
	default:
		return entity.ItemRequest{ContentType: ct, Input: input, InputType: inputType}
	}
}

func withPlan(input, plan string) string {
	if strings.TrimSpace(plan) == "" {
		return input
	}
	return input + "\n\n【選択された企画】\n" + plan
}
