package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"drm-scribe-orchestra/internal/domain/entity"
	apperrors "drm-scribe-orchestra/pkg/errors"
	"drm-scribe-orchestra/pkg/logger"
	"drm-scribe-orchestra/pkg/metrics"
	"drm-scribe-orchestra/pkg/tracer"
)

// StartInput 启动流水线参数；Input 为空时沿用会话中的输入
type StartInput struct {
	Input     string
	InputType entity.InputType
	// Wait 为 true 时同步执行到结束
	Wait bool
}

// stageTask 阶段内的一个条目
type stageTask struct {
	contentType entity.ContentType
	req         entity.ItemRequest
	// skip 非空时不调用生成函数，直接以该原因标记失败
	skip string
}

// StartPipeline 同步放置全部核心与派生占位条目后启动流水线
func (o *Orchestrator) StartPipeline(ctx context.Context, id string, in StartInput) (*entity.SessionSnapshot, error) {
	s, err := o.session(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.InputType != "" && !in.InputType.Valid() {
		return nil, apperrors.ErrInvalidParam.WithDetail("unknown inputType " + string(in.InputType))
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, apperrors.ErrGenerationInProgress
	}
	if ct, busy := s.pendingLocked(); busy {
		s.mu.Unlock()
		return nil, apperrors.ErrGenerationInProgress.WithDetail(string(ct))
	}
	if strings.TrimSpace(in.Input) != "" {
		s.input = in.Input
		s.inputType = entity.InputTypeProductInfo
		if in.InputType != "" {
			s.inputType = in.InputType
		}
	}
	if strings.TrimSpace(s.input) == "" {
		s.mu.Unlock()
		return nil, apperrors.ErrInvalidParam.WithDetail("商品情報またはコンテンツを入力してください")
	}

	coreStatus := entity.ItemStatusPending
	if o.sequential() {
		coreStatus = entity.ItemStatusNotStarted
	}
	for _, ct := range entity.TypesInStage(entity.StageCore) {
		s.placeLocked(ct, coreStatus)
	}
	for _, ct := range entity.TypesInStage(entity.StageDerivative) {
		s.placeLocked(ct, entity.ItemStatusNotStarted)
	}
	s.running = true
	s.pipelineDone = false
	input, inputType, plan := s.input, s.inputType, s.selectedPlan
	snap := s.snapshotLocked()
	s.mu.Unlock()

	o.persist(ctx, s)
	o.notifier.Notify(ctx, newNotification(s.id, NotifyPipelineStarted, ""))
	logger.Info(ctx, "pipeline started", "session_id", s.id, "mode", o.cfg.Mode)

	run := func(ctx context.Context) {
		o.runPipeline(ctx, s, input, inputType, plan)
	}
	if in.Wait {
		run(ctx)
		return s.Snapshot(), nil
	}
	o.background(ctx, run)
	return snap, nil
}

// GenerateOptional 在核心与派生阶段结束后生成用户选择的可选内容
func (o *Orchestrator) GenerateOptional(ctx context.Context, id string, types []entity.ContentType, wait bool) (*entity.SessionSnapshot, error) {
	if len(types) == 0 {
		return nil, apperrors.ErrInvalidParam.WithDetail("types is required")
	}
	selected := make([]entity.ContentType, 0, len(types))
	seen := make(map[entity.ContentType]struct{}, len(types))
	for _, ct := range types {
		info, ok := entity.LookupContentType(ct)
		if !ok || info.Stage != entity.StageOptional {
			return nil, apperrors.ErrInvalidParam.WithDetail("not an optional content type: " + string(ct))
		}
		if _, dup := seen[ct]; dup {
			continue
		}
		seen[ct] = struct{}{}
		selected = append(selected, ct)
	}

	s, err := o.session(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, apperrors.ErrGenerationInProgress
	}
	if !s.pipelineDone {
		s.mu.Unlock()
		return nil, apperrors.ErrPipelineNotFinished
	}
	if ct, busy := s.pendingLocked(); busy {
		s.mu.Unlock()
		return nil, apperrors.ErrGenerationInProgress.WithDetail(string(ct))
	}
	status := entity.ItemStatusPending
	if o.sequential() {
		status = entity.ItemStatusNotStarted
	}
	for _, ct := range selected {
		s.placeLocked(ct, status)
	}
	s.running = true
	snap := s.snapshotLocked()
	s.mu.Unlock()

	o.persist(ctx, s)

	run := func(ctx context.Context) {
		defer o.finish(ctx, s, false)
		o.runStage(ctx, s, "optional", o.dependentTasks(s, selected))
	}
	if wait {
		run(ctx)
		return s.Snapshot(), nil
	}
	o.background(ctx, run)
	return snap, nil
}

// QualityGenerate 对单个内容类型执行一次质量控制生成并写入会话
func (o *Orchestrator) QualityGenerate(ctx context.Context, id string, ct entity.ContentType, input string, inputType entity.InputType) (entity.GenerationResult, *entity.ContentItem, error) {
	if _, ok := entity.LookupContentType(ct); !ok {
		return entity.GenerationResult{}, nil, apperrors.ErrInvalidParam.WithDetail("unknown contentType " + string(ct))
	}
	s, err := o.session(ctx, id)
	if err != nil {
		return entity.GenerationResult{}, nil, err
	}

	req := o.fallbackRequest(s, ct)
	if strings.TrimSpace(input) != "" {
		req.Input = input
		if inputType != "" {
			req.InputType = inputType
		}
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return entity.GenerationResult{}, nil, apperrors.ErrGenerationInProgress.WithDetail("pipeline is running")
	}
	it, exists := s.items[ct]
	switch {
	case !exists:
		s.placeLocked(ct, entity.ItemStatusPending)
	case it.Status == entity.ItemStatusPending:
		s.mu.Unlock()
		return entity.GenerationResult{}, nil, apperrors.ErrGenerationInProgress.WithDetail(string(ct))
	default:
		if err := it.TransitionTo(entity.ItemStatusPending); err != nil {
			s.mu.Unlock()
			return entity.GenerationResult{}, nil, err
		}
	}
	s.mu.Unlock()

	res, err := o.execute(context.WithoutCancel(ctx), s, stageTask{contentType: ct, req: req})
	snap := s.Snapshot()
	item, _ := snap.Item(ct)
	return res, item, err
}

func (o *Orchestrator) sequential() bool {
	return o.cfg.Mode == ModeSequential
}

// background 脱离请求生命周期执行，Drain 可等待其结束
func (o *Orchestrator) background(ctx context.Context, run func(context.Context)) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		run(context.WithoutCancel(ctx))
	}()
}

func (o *Orchestrator) runPipeline(ctx context.Context, s *Session, input string, inputType entity.InputType, plan string) {
	ctx, span := tracer.StartGeneration(ctx, "orchestrator.pipeline", s.id, "")
	defer span.End()
	defer o.finish(ctx, s, true)

	core := entity.TypesInStage(entity.StageCore)
	tasks := make([]stageTask, 0, len(core))
	for _, ct := range core {
		in := input
		if ct == entity.ContentTypeFreeContent {
			in = withPlan(input, plan)
		}
		tasks = append(tasks, stageTask{
			contentType: ct,
			req:         entity.ItemRequest{ContentType: ct, Input: in, InputType: inputType},
		})
	}
	o.runStage(ctx, s, "core", tasks)

	// 派生阶段在核心阶段全部结束后才派发
	o.runStage(ctx, s, "derivative", o.dependentTasks(s, entity.TypesInStage(entity.StageDerivative)))
}

// dependentTasks 以上游核心内容作为输入构造任务，上游缺失时按策略处理
func (o *Orchestrator) dependentTasks(s *Session, types []entity.ContentType) []stageTask {
	tasks := make([]stageTask, 0, len(types))
	for _, ct := range types {
		info, _ := entity.LookupContentType(ct)
		upstream, ok := s.output(info.Base)
		t := stageTask{
			contentType: ct,
			req:         entity.ItemRequest{ContentType: ct, Input: upstream, InputType: entity.InputTypeContentText},
		}
		if !ok && o.cfg.MissingUpstream == MissingUpstreamSkip {
			t.skip = upstreamFailedReason
		}
		tasks = append(tasks, t)
	}
	return tasks
}

// runStage 并行模式下先全部置为 Pending 再并发派发并等待全部结束；顺序模式逐个执行
func (o *Orchestrator) runStage(ctx context.Context, s *Session, stage string, tasks []stageTask) {
	start := time.Now()
	defer func() {
		metrics.GenerationStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}()
	logger.Debug(ctx, "stage started", "session_id", s.id, "stage", stage, "items", len(tasks))

	if o.sequential() {
		for _, t := range tasks {
			if err := o.prepare(s, t.contentType); err != nil {
				logger.Warn(ctx, "cannot start item", "session_id", s.id, "content_type", t.contentType, "error", err.Error())
				continue
			}
			_, _ = o.execute(ctx, s, t)
		}
		return
	}

	runnable := make([]stageTask, 0, len(tasks))
	for _, t := range tasks {
		if err := o.prepare(s, t.contentType); err != nil {
			logger.Warn(ctx, "cannot start item", "session_id", s.id, "content_type", t.contentType, "error", err.Error())
			continue
		}
		runnable = append(runnable, t)
	}
	fns := make([]func(context.Context) (entity.GenerationResult, error), len(runnable))
	for i, t := range runnable {
		fns[i] = func(ctx context.Context) (entity.GenerationResult, error) {
			return o.execute(ctx, s, t)
		}
	}
	settleAll(ctx, o.cfg.MaxConcurrency, fns)
}

// prepare 将条目迁移到 Pending；已是 Pending 的占位条目保持不变
func (o *Orchestrator) prepare(s *Session, ct entity.ContentType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, err := s.itemLocked(ct)
	if err != nil {
		return err
	}
	if it.Status == entity.ItemStatusPending {
		return nil
	}
	if err := it.TransitionTo(entity.ItemStatusPending); err != nil {
		return err
	}
	s.touchLocked()
	return nil
}

// execute 对一个已处于 Pending 的条目执行生成并写回终态
func (o *Orchestrator) execute(ctx context.Context, s *Session, t stageTask) (entity.GenerationResult, error) {
	ct := t.contentType
	ctx = logger.WithContext(logger.WithContext(ctx, logger.SessionIDKey, s.id), logger.ContentTypeKey, string(ct))
	ctx, span := tracer.StartGeneration(ctx, "orchestrator.item", s.id, string(ct))
	defer span.End()

	if t.skip != "" {
		s.remember(ct, t.req)
		err := apperrors.ErrGenerationFailed.WithError(errors.New(t.skip))
		o.settleFailure(ctx, s, ct, err)
		return entity.GenerationResult{}, err
	}

	o.notifier.Notify(ctx, newNotification(s.id, NotifyItemStarted, ct))
	res, invReq, err := o.quality.Generate(ctx, QualityRequest{
		ProjectID:   s.projectID,
		SessionID:   s.id,
		ContentType: ct,
		Input:       t.req.Input,
		InputType:   t.req.InputType,
		Settings:    s.currentSettings(),
		History:     s.historyFor(ct),
	})
	s.remember(ct, entity.ItemRequest{
		ContentType:  ct,
		Input:        invReq.Input,
		InputType:    invReq.InputType,
		SystemPrompt: invReq.SystemPrompt,
		UserPrompt:   invReq.UserPrompt,
	})
	if err != nil {
		tracer.RecordError(span, err)
		o.settleFailure(ctx, s, ct, err)
		return res, err
	}

	if _, err := s.complete(ct, res); err != nil {
		logger.Error(ctx, "failed to complete item", err)
		return res, err
	}
	metrics.GenerationItemsTotal.WithLabelValues(string(ct), string(entity.ItemStatusCompleted)).Inc()
	o.persist(ctx, s)
	o.notifier.Notify(ctx, newNotification(s.id, NotifyItemCompleted, ct))
	logger.Info(ctx, "item completed", "alternatives", len(res.Alternatives))
	return res, nil
}

// settleFailure 将条目标记为 Error 并发出通知
func (o *Orchestrator) settleFailure(ctx context.Context, s *Session, ct entity.ContentType, cause error) {
	if err := s.fail(ct, cause.Error()); err != nil {
		logger.Error(ctx, "failed to mark item as error", err)
		return
	}
	metrics.GenerationItemsTotal.WithLabelValues(string(ct), string(entity.ItemStatusError)).Inc()
	o.persist(ctx, s)
	o.notifier.Notify(ctx, newNotification(s.id, NotifyItemFailed, ct))
	logger.Warn(ctx, "item failed", "error", cause.Error())
}

// finish 结束一次运行；pipeline 为 true 时标记核心与派生阶段已结束
func (o *Orchestrator) finish(ctx context.Context, s *Session, pipeline bool) {
	s.mu.Lock()
	s.running = false
	if pipeline {
		s.pipelineDone = true
	}
	s.touchLocked()
	counts := s.snapshotLocked().CountByStatus()
	s.mu.Unlock()

	o.persist(ctx, s)
	o.notifier.Notify(ctx, newNotification(s.id, NotifyPipelineCompleted, ""))
	logger.Info(ctx, "generation run finished",
		"session_id", s.id,
		"completed", counts[entity.ItemStatusCompleted],
		"error", counts[entity.ItemStatusError],
	)
}
