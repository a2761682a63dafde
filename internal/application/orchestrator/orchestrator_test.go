package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drm-scribe-orchestra/internal/domain/entity"
	"drm-scribe-orchestra/internal/domain/service"
	apperrors "drm-scribe-orchestra/pkg/errors"
)

type fakeInvoker struct {
	mu       sync.Mutex
	calls    []service.InvokeRequest
	inflight int
	peak     int
	delay    time.Duration
	fn       func(req service.InvokeRequest) (string, error)
}

func (f *fakeInvoker) Invoke(_ context.Context, req service.InvokeRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.inflight++
	if f.inflight > f.peak {
		f.peak = f.inflight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()
	if f.fn != nil {
		return f.fn(req)
	}
	return "out:" + string(req.ContentType), nil
}

func (f *fakeInvoker) callsFor(ct entity.ContentType) []service.InvokeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []service.InvokeRequest
	for _, c := range f.calls {
		if c.ContentType == ct {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeInvoker) order() []entity.ContentType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]entity.ContentType, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.ContentType
	}
	return out
}

type recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *recorder) kinds() []NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NotificationKind, len(r.items))
	for i, n := range r.items {
		out[i] = n.Kind
	}
	return out
}

type memStore struct {
	mu    sync.Mutex
	snaps map[string]*entity.SessionSnapshot
	gets  int
}

func newMemStore() *memStore {
	return &memStore{snaps: make(map[string]*entity.SessionSnapshot)}
}

func (m *memStore) Save(_ context.Context, snap *entity.SessionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.ID] = snap
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*entity.SessionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	snap, ok := m.snaps[id]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return snap, nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, id)
	return nil
}

func newTestOrchestrator(inv service.ContentInvoker, cfg Config, opts ...func(*Orchestrator)) *Orchestrator {
	o := New(inv, nil, nil, nil, cfg)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func withNotifier(n Notifier) func(*Orchestrator) {
	return func(o *Orchestrator) { o.notifier = n }
}

func createSession(t *testing.T, o *Orchestrator, settings *entity.QualitySettings) string {
	t.Helper()
	snap, err := o.CreateSession(context.Background(), CreateSessionInput{
		Input:     "オンライン英会話講座",
		InputType: entity.InputTypeProductInfo,
		Settings:  settings,
	})
	require.NoError(t, err)
	return snap.ID
}

func statusOf(t *testing.T, snap *entity.SessionSnapshot, ct entity.ContentType) entity.ItemStatus {
	t.Helper()
	it, ok := snap.Item(ct)
	require.True(t, ok, "missing item %s", ct)
	return it.Status
}

func TestStartPipeline_AllStagesComplete(t *testing.T) {
	inv := &fakeInvoker{}
	rec := &recorder{}
	o := newTestOrchestrator(inv, Config{MaxConcurrency: 4}, withNotifier(rec))
	id := createSession(t, o, nil)

	snap, err := o.StartPipeline(context.Background(), id, StartInput{Wait: true})
	require.NoError(t, err)

	assert.True(t, snap.PipelineDone)
	assert.False(t, snap.Running)
	assert.Len(t, snap.Items, 7)
	for _, it := range snap.Items {
		assert.Equal(t, entity.ItemStatusCompleted, it.Status, it.ID)
		assert.Equal(t, "out:"+string(it.ID), it.Content)
	}

	// 派生内容以上游正文作为 content_text 输入
	for _, ct := range entity.TypesInStage(entity.StageDerivative) {
		calls := inv.callsFor(ct)
		require.Len(t, calls, 1)
		info, _ := entity.LookupContentType(ct)
		assert.Equal(t, "out:"+string(info.Base), calls[0].Input)
		assert.Equal(t, entity.InputTypeContentText, calls[0].InputType)
	}

	kinds := rec.kinds()
	assert.Equal(t, NotifyPipelineStarted, kinds[0])
	assert.Equal(t, NotifyPipelineCompleted, kinds[len(kinds)-1])
}

func TestStartPipeline_DerivativesWaitForCoreStage(t *testing.T) {
	inv := &fakeInvoker{delay: 5 * time.Millisecond}
	o := newTestOrchestrator(inv, Config{MaxConcurrency: 8})
	id := createSession(t, o, nil)

	_, err := o.StartPipeline(context.Background(), id, StartInput{Wait: true})
	require.NoError(t, err)

	order := inv.order()
	require.Len(t, order, 7)
	for _, ct := range order[:2] {
		info, _ := entity.LookupContentType(ct)
		assert.Equal(t, entity.StageCore, info.Stage)
	}
	for _, ct := range order[2:] {
		info, _ := entity.LookupContentType(ct)
		assert.Equal(t, entity.StageDerivative, info.Stage)
	}
	assert.Greater(t, inv.peak, 1)
}

func TestStartPipeline_PartialCoreFailureDispatchesWithEmptyInput(t *testing.T) {
	inv := &fakeInvoker{fn: func(req service.InvokeRequest) (string, error) {
		if req.ContentType == entity.ContentTypeSalesLetter {
			return "", service.NewGenerationError(service.FailureRemote, req.ContentType, "HTTP error! status: 500", nil)
		}
		return "out:" + string(req.ContentType), nil
	}}
	o := newTestOrchestrator(inv, Config{})
	id := createSession(t, o, nil)

	snap, err := o.StartPipeline(context.Background(), id, StartInput{Wait: true})
	require.NoError(t, err)

	assert.Equal(t, entity.ItemStatusCompleted, statusOf(t, snap, entity.ContentTypeFreeContent))
	sales, _ := snap.Item(entity.ContentTypeSalesLetter)
	assert.Equal(t, entity.ItemStatusError, sales.Status)
	assert.Contains(t, sales.Error, "status: 500")

	for _, ct := range []entity.ContentType{entity.ContentTypeLongLP, entity.ContentTypeStepMails} {
		calls := inv.callsFor(ct)
		require.Len(t, calls, 1, ct)
		assert.Empty(t, calls[0].Input)
		assert.Equal(t, entity.ItemStatusCompleted, statusOf(t, snap, ct))
	}
	assert.True(t, snap.PipelineDone)
}

func TestStartPipeline_SkipPolicyMarksDependentsFailed(t *testing.T) {
	inv := &fakeInvoker{fn: func(req service.InvokeRequest) (string, error) {
		if req.ContentType == entity.ContentTypeFreeContent {
			return "", errors.New("network down")
		}
		return "ok", nil
	}}
	o := newTestOrchestrator(inv, Config{MissingUpstream: MissingUpstreamSkip})
	id := createSession(t, o, nil)

	snap, err := o.StartPipeline(context.Background(), id, StartInput{Wait: true})
	require.NoError(t, err)

	for _, ct := range []entity.ContentType{entity.ContentTypeShortLP, entity.ContentTypeEducationPosts, entity.ContentTypeCampaignPost} {
		it, _ := snap.Item(ct)
		assert.Equal(t, entity.ItemStatusError, it.Status, ct)
		assert.Contains(t, it.Error, upstreamFailedReason)
		assert.Empty(t, inv.callsFor(ct))
	}
	assert.Equal(t, entity.ItemStatusCompleted, statusOf(t, snap, entity.ContentTypeLongLP))
	assert.Equal(t, entity.ItemStatusCompleted, statusOf(t, snap, entity.ContentTypeStepMails))
}

func TestStartPipeline_SequentialMode(t *testing.T) {
	inv := &fakeInvoker{delay: time.Millisecond}
	o := newTestOrchestrator(inv, Config{Mode: ModeSequential, MaxConcurrency: 8})
	id := createSession(t, o, nil)

	snap, err := o.StartPipeline(context.Background(), id, StartInput{Wait: true})
	require.NoError(t, err)

	assert.Equal(t, 1, inv.peak)
	assert.Equal(t, []entity.ContentType{
		entity.ContentTypeFreeContent,
		entity.ContentTypeSalesLetter,
		entity.ContentTypeShortLP,
		entity.ContentTypeEducationPosts,
		entity.ContentTypeCampaignPost,
		entity.ContentTypeLongLP,
		entity.ContentTypeStepMails,
	}, inv.order())
	assert.Equal(t, 7, snap.CountByStatus()[entity.ItemStatusCompleted])
}

func TestStartPipeline_PlaceholdersAndInProgress(t *testing.T) {
	gate := make(chan struct{})
	inv := &fakeInvoker{fn: func(req service.InvokeRequest) (string, error) {
		<-gate
		return "out", nil
	}}
	o := newTestOrchestrator(inv, Config{})
	id := createSession(t, o, nil)

	snap, err := o.StartPipeline(context.Background(), id, StartInput{})
	require.NoError(t, err)
	assert.True(t, snap.Running)
	assert.Equal(t, entity.ItemStatusPending, statusOf(t, snap, entity.ContentTypeFreeContent))
	assert.Equal(t, entity.ItemStatusPending, statusOf(t, snap, entity.ContentTypeSalesLetter))
	assert.Equal(t, entity.ItemStatusNotStarted, statusOf(t, snap, entity.ContentTypeLongLP))

	_, err = o.StartPipeline(context.Background(), id, StartInput{})
	assert.ErrorIs(t, err, apperrors.ErrGenerationInProgress)
	_, err = o.Regenerate(context.Background(), id, entity.ContentTypeFreeContent)
	assert.ErrorIs(t, err, apperrors.ErrGenerationInProgress)

	close(gate)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Drain(ctx))

	got, err := o.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, got.PipelineDone)
	assert.Equal(t, 7, got.CountByStatus()[entity.ItemStatusCompleted])
}

func TestStartPipeline_RequiresInput(t *testing.T) {
	o := newTestOrchestrator(&fakeInvoker{}, Config{})
	snap, err := o.CreateSession(context.Background(), CreateSessionInput{})
	require.NoError(t, err)

	_, err = o.StartPipeline(context.Background(), snap.ID, StartInput{Input: "   ", Wait: true})
	assert.ErrorIs(t, err, apperrors.ErrInvalidParam)

	_, err = o.StartPipeline(context.Background(), "missing", StartInput{Input: "x"})
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestQualityGenerate_CandidatesTakeFirstSuccess(t *testing.T) {
	inv := &fakeInvoker{fn: func(req service.InvokeRequest) (string, error) {
		if req.GenerationIndex == nil {
			return "", errors.New("missing generation index")
		}
		if *req.GenerationIndex == 1 {
			return "", errors.New("candidate failed")
		}
		return fmt.Sprintf("cand-%d", *req.GenerationIndex), nil
	}}
	o := newTestOrchestrator(inv, Config{})
	settings := entity.DefaultQualitySettings()
	settings.MultipleGeneration = true
	settings.GenerationCount = 3
	id := createSession(t, o, &settings)

	res, item, err := o.QualityGenerate(context.Background(), id, entity.ContentTypeFreeContent, "", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"cand-0", "cand-2"}, res.Alternatives)
	assert.Equal(t, "cand-0", res.Content)
	assert.Equal(t, entity.ItemStatusCompleted, item.Status)
	assert.Equal(t, "cand-0", item.Content)
	assert.Len(t, inv.callsFor(entity.ContentTypeFreeContent), 3)
}

func TestQualityGenerate_AllCandidatesFail(t *testing.T) {
	inv := &fakeInvoker{fn: func(service.InvokeRequest) (string, error) {
		return "", errors.New("nope")
	}}
	o := newTestOrchestrator(inv, Config{})
	settings := entity.DefaultQualitySettings()
	settings.MultipleGeneration = true
	settings.GenerationCount = 2
	id := createSession(t, o, &settings)

	_, item, err := o.QualityGenerate(context.Background(), id, entity.ContentTypeSalesLetter, "", "")
	assert.ErrorIs(t, err, apperrors.ErrNoCandidates)
	require.NotNil(t, item)
	assert.Equal(t, entity.ItemStatusError, item.Status)
}

func TestQualityGenerate_ImprovementFailureKeepsOriginal(t *testing.T) {
	inv := &fakeInvoker{fn: func(req service.InvokeRequest) (string, error) {
		if req.ContentType == entity.ContentTypeImprovement {
			return "", errors.New("improvement down")
		}
		return "original", nil
	}}
	o := newTestOrchestrator(inv, Config{})
	settings := entity.DefaultQualitySettings()
	settings.AutoImprovement = true
	id := createSession(t, o, &settings)

	res, item, err := o.QualityGenerate(context.Background(), id, entity.ContentTypeFreeContent, "", "")
	require.NoError(t, err)
	assert.Equal(t, "original", res.Improved)
	assert.Equal(t, "original", item.Content)
	assert.Empty(t, item.Original)
	assert.Len(t, inv.callsFor(entity.ContentTypeImprovement), 1)
}

func TestQualityGenerate_ImprovementReplacesContent(t *testing.T) {
	inv := &fakeInvoker{fn: func(req service.InvokeRequest) (string, error) {
		if req.ContentType == entity.ContentTypeImprovement {
			assert.Contains(t, req.UserPrompt, "draft")
			return "polished", nil
		}
		return "draft", nil
	}}
	o := newTestOrchestrator(inv, Config{})
	settings := entity.DefaultQualitySettings()
	settings.AutoImprovement = true
	id := createSession(t, o, &settings)

	_, item, err := o.QualityGenerate(context.Background(), id, entity.ContentTypeFreeContent, "", "")
	require.NoError(t, err)
	assert.Equal(t, "polished", item.Content)
	assert.Equal(t, "draft", item.Original)
}

func TestRegenerate_PreservesIdentityAndRequest(t *testing.T) {
	var n int
	var mu sync.Mutex
	inv := &fakeInvoker{fn: func(req service.InvokeRequest) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s#%d", req.ContentType, n), nil
	}}
	rec := &recorder{}
	o := newTestOrchestrator(inv, Config{}, withNotifier(rec))
	id := createSession(t, o, nil)

	before, err := o.StartPipeline(context.Background(), id, StartInput{Wait: true})
	require.NoError(t, err)
	first := inv.callsFor(entity.ContentTypeShortLP)[0]
	prevItem, _ := before.Item(entity.ContentTypeShortLP)

	item, err := o.Regenerate(context.Background(), id, entity.ContentTypeShortLP)
	require.NoError(t, err)
	assert.Equal(t, entity.ContentTypeShortLP, item.ID)
	assert.Equal(t, entity.ItemStatusCompleted, item.Status)
	assert.NotEqual(t, prevItem.Content, item.Content)

	calls := inv.callsFor(entity.ContentTypeShortLP)
	require.Len(t, calls, 2)
	assert.Equal(t, first.Input, calls[1].Input)
	assert.Equal(t, first.InputType, calls[1].InputType)
	assert.Equal(t, first.SystemPrompt, calls[1].SystemPrompt)
	assert.Equal(t, first.UserPrompt, calls[1].UserPrompt)

	after, err := o.GetSession(context.Background(), id)
	require.NoError(t, err)
	for i := range before.Items {
		assert.Equal(t, before.Items[i].ID, after.Items[i].ID)
	}
	assert.Contains(t, rec.kinds(), NotifyRegenerated)
}

func TestRegenerate_FailureLeavesItemInError(t *testing.T) {
	fail := false
	var mu sync.Mutex
	inv := &fakeInvoker{fn: func(req service.InvokeRequest) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return "", service.NewGenerationError(service.FailureEmpty, req.ContentType, "No content generated", nil)
		}
		return "ok", nil
	}}
	o := newTestOrchestrator(inv, Config{})
	id := createSession(t, o, nil)
	_, err := o.StartPipeline(context.Background(), id, StartInput{Wait: true})
	require.NoError(t, err)

	mu.Lock()
	fail = true
	mu.Unlock()
	item, err := o.Regenerate(context.Background(), id, entity.ContentTypeSalesLetter)
	assert.ErrorIs(t, err, apperrors.ErrGenerationFailed)
	require.NotNil(t, item)
	assert.Equal(t, entity.ItemStatusError, item.Status)

	mu.Lock()
	fail = false
	mu.Unlock()
	item, err = o.Regenerate(context.Background(), id, entity.ContentTypeSalesLetter)
	require.NoError(t, err)
	assert.Equal(t, entity.ItemStatusCompleted, item.Status)
	assert.Empty(t, item.Error)
}

func TestRegenerate_UnknownItem(t *testing.T) {
	o := newTestOrchestrator(&fakeInvoker{}, Config{})
	id := createSession(t, o, nil)
	_, err := o.Regenerate(context.Background(), id, entity.ContentTypeVSLScript)
	assert.ErrorIs(t, err, apperrors.ErrItemNotFound)
}

func TestItemActions_RejectedWhilePipelineRuns(t *testing.T) {
	gate := make(chan struct{})
	inv := &fakeInvoker{fn: func(req service.InvokeRequest) (string, error) {
		if req.ContentType == entity.ContentTypeFreeContent || req.ContentType == entity.ContentTypeSalesLetter {
			<-gate
		}
		return "out:" + string(req.ContentType) + ":in=" + req.Input, nil
	}}
	o := newTestOrchestrator(inv, Config{})
	id := createSession(t, o, nil)

	_, err := o.StartPipeline(context.Background(), id, StartInput{})
	require.NoError(t, err)

	// 派生条目此时仍是 NotStarted，不能被单独生成
	_, err = o.Regenerate(context.Background(), id, entity.ContentTypeShortLP)
	assert.ErrorIs(t, err, apperrors.ErrGenerationInProgress)
	_, _, err = o.QualityGenerate(context.Background(), id, entity.ContentTypeShortLP, "", "")
	assert.ErrorIs(t, err, apperrors.ErrGenerationInProgress)

	close(gate)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Drain(ctx))

	calls := inv.callsFor(entity.ContentTypeShortLP)
	require.Len(t, calls, 1)
	assert.True(t, strings.HasPrefix(calls[0].Input, "out:free_content"), "derivative must use core output, got %q", calls[0].Input)

	snap, err := o.GetSession(context.Background(), id)
	require.NoError(t, err)
	item, ok := snap.Item(entity.ContentTypeShortLP)
	require.True(t, ok)
	assert.Equal(t, entity.ItemStatusCompleted, item.Status)
	assert.NotEqual(t, "out:short_lp:in=", item.Content)
}

func TestPipeline_RejectedWhileItemPending(t *testing.T) {
	gate := make(chan struct{})
	var mu sync.Mutex
	freeCalls := 0
	inv := &fakeInvoker{fn: func(req service.InvokeRequest) (string, error) {
		if req.ContentType == entity.ContentTypeFreeContent {
			mu.Lock()
			freeCalls++
			n := freeCalls
			mu.Unlock()
			if n > 1 {
				<-gate
			}
		}
		return "out:" + string(req.ContentType), nil
	}}
	o := newTestOrchestrator(inv, Config{})
	id := createSession(t, o, nil)

	_, err := o.StartPipeline(context.Background(), id, StartInput{Wait: true})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := o.Regenerate(context.Background(), id, entity.ContentTypeFreeContent)
		done <- err
	}()
	require.Eventually(t, func() bool {
		snap, err := o.GetSession(context.Background(), id)
		if err != nil {
			return false
		}
		it, ok := snap.Item(entity.ContentTypeFreeContent)
		return ok && it.Status == entity.ItemStatusPending
	}, 2*time.Second, 10*time.Millisecond)

	_, err = o.StartPipeline(context.Background(), id, StartInput{})
	assert.ErrorIs(t, err, apperrors.ErrGenerationInProgress)
	_, err = o.GenerateOptional(context.Background(), id, []entity.ContentType{entity.ContentTypeRepostBonus}, false)
	assert.ErrorIs(t, err, apperrors.ErrGenerationInProgress)

	close(gate)
	require.NoError(t, <-done)

	snap, err := o.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, entity.ItemStatusCompleted, statusOf(t, snap, entity.ContentTypeFreeContent))
	_, hasOptional := snap.Item(entity.ContentTypeRepostBonus)
	assert.False(t, hasOptional)
	assert.Len(t, inv.callsFor(entity.ContentTypeFreeContent), 2)
}

func TestHistory_RecordsRawContentWhenImproved(t *testing.T) {
	inv := &fakeInvoker{fn: func(req service.InvokeRequest) (string, error) {
		if req.ContentType == entity.ContentTypeImprovement {
			return "polished", nil
		}
		return "draft", nil
	}}
	o := newTestOrchestrator(inv, Config{})
	settings := entity.DefaultQualitySettings()
	settings.AutoImprovement = true
	id := createSession(t, o, &settings)

	_, item, err := o.QualityGenerate(context.Background(), id, entity.ContentTypeFreeContent, "", "")
	require.NoError(t, err)
	assert.Equal(t, "polished", item.Content)

	snap, err := o.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []string{"draft"}, snap.History.Get(entity.ContentTypeFreeContent))
}

func TestHistory_BoundedPerType(t *testing.T) {
	var n int
	var mu sync.Mutex
	inv := &fakeInvoker{fn: func(req service.InvokeRequest) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("v%d", n), nil
	}}
	o := newTestOrchestrator(inv, Config{})
	id := createSession(t, o, nil)

	for i := 0; i < 7; i++ {
		_, _, err := o.QualityGenerate(context.Background(), id, entity.ContentTypeFreeContent, "", "")
		require.NoError(t, err)
	}
	snap, err := o.GetSession(context.Background(), id)
	require.NoError(t, err)
	hist := snap.History.Get(entity.ContentTypeFreeContent)
	assert.Equal(t, []string{"v3", "v4", "v5", "v6", "v7"}, hist)

	// 最近两条历史进入下一次的用户提示词
	last := inv.callsFor(entity.ContentTypeFreeContent)
	assert.Contains(t, last[len(last)-1].UserPrompt, "v6")
	assert.NotContains(t, last[len(last)-1].UserPrompt, "v4")
}

func TestHistory_DisabledWithoutContextPreservation(t *testing.T) {
	o := newTestOrchestrator(&fakeInvoker{}, Config{})
	settings := entity.DefaultQualitySettings()
	settings.ContextPreservation = false
	id := createSession(t, o, &settings)

	_, _, err := o.QualityGenerate(context.Background(), id, entity.ContentTypeFreeContent, "", "")
	require.NoError(t, err)
	snap, _ := o.GetSession(context.Background(), id)
	assert.Empty(t, snap.History.Get(entity.ContentTypeFreeContent))
}

func TestGenerateOptional(t *testing.T) {
	inv := &fakeInvoker{}
	o := newTestOrchestrator(inv, Config{})
	id := createSession(t, o, nil)

	_, err := o.GenerateOptional(context.Background(), id, []entity.ContentType{entity.ContentTypeWebinarScript}, true)
	assert.ErrorIs(t, err, apperrors.ErrPipelineNotFinished)

	_, err = o.GenerateOptional(context.Background(), id, []entity.ContentType{entity.ContentTypeLongLP}, true)
	assert.ErrorIs(t, err, apperrors.ErrInvalidParam)

	_, err = o.StartPipeline(context.Background(), id, StartInput{Wait: true})
	require.NoError(t, err)

	snap, err := o.GenerateOptional(context.Background(), id, []entity.ContentType{
		entity.ContentTypeWebinarScript,
		entity.ContentTypeWebinarScript,
		entity.ContentTypeVSLScript,
	}, true)
	require.NoError(t, err)
	assert.Len(t, snap.Items, 9)
	assert.Equal(t, entity.ItemStatusCompleted, statusOf(t, snap, entity.ContentTypeWebinarScript))
	assert.Equal(t, entity.ItemStatusCompleted, statusOf(t, snap, entity.ContentTypeVSLScript))

	webinar := inv.callsFor(entity.ContentTypeWebinarScript)
	require.Len(t, webinar, 1)
	assert.Equal(t, "out:free_content", webinar[0].Input)
	vsl := inv.callsFor(entity.ContentTypeVSLScript)
	require.Len(t, vsl, 1)
	assert.Equal(t, "out:sales_letter", vsl[0].Input)
}

func TestInsightsAndPlans(t *testing.T) {
	inv := &fakeInvoker{fn: func(req service.InvokeRequest) (string, error) {
		switch req.ContentType {
		case entity.ContentTypeInsightsAnalysis:
			return "insight-report", nil
		case entity.ContentTypePlanProposal:
			return "plan-list", nil
		}
		return "out:" + string(req.ContentType), nil
	}}
	o := newTestOrchestrator(inv, Config{})
	id := createSession(t, o, nil)

	_, err := o.ProposePlans(context.Background(), id)
	assert.ErrorIs(t, err, apperrors.ErrInvalidParam)

	insights, err := o.AnalyzeInsights(context.Background(), id, "")
	require.NoError(t, err)
	assert.Equal(t, "insight-report", insights)
	call := inv.callsFor(entity.ContentTypeInsightsAnalysis)[0]
	assert.Equal(t, entity.InputTypeProductInfo, call.InputType)
	assert.Equal(t, "オンライン英会話講座", call.Input)

	plans, err := o.ProposePlans(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "plan-list", plans)
	call = inv.callsFor(entity.ContentTypePlanProposal)[0]
	assert.Equal(t, "insight-report", call.Input)
	assert.Equal(t, entity.InputTypeAnalysisResult, call.InputType)

	_, err = o.SelectPlan(context.Background(), id, "30日チャレンジ企画")
	require.NoError(t, err)
	_, err = o.StartPipeline(context.Background(), id, StartInput{Wait: true})
	require.NoError(t, err)

	free := inv.callsFor(entity.ContentTypeFreeContent)[0]
	assert.True(t, strings.HasSuffix(free.Input, "【選択された企画】\n30日チャレンジ企画"))
	sales := inv.callsFor(entity.ContentTypeSalesLetter)[0]
	assert.NotContains(t, sales.Input, "選択された企画")
}

func TestEditAndSelectAlternative(t *testing.T) {
	inv := &fakeInvoker{fn: func(req service.InvokeRequest) (string, error) {
		if req.GenerationIndex != nil {
			return fmt.Sprintf("alt-%d", *req.GenerationIndex), nil
		}
		return "single", nil
	}}
	o := newTestOrchestrator(inv, Config{})
	settings := entity.DefaultQualitySettings()
	settings.MultipleGeneration = true
	settings.GenerationCount = 3
	id := createSession(t, o, &settings)

	_, _, err := o.QualityGenerate(context.Background(), id, entity.ContentTypeSalesLetter, "", "")
	require.NoError(t, err)

	item, err := o.SelectAlternative(context.Background(), id, entity.ContentTypeSalesLetter, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, item.SelectedIndex)
	assert.Equal(t, "alt-2", item.Content)

	item, err = o.SelectAlternative(context.Background(), id, entity.ContentTypeSalesLetter, 42)
	require.NoError(t, err)
	assert.Equal(t, 0, item.SelectedIndex)
	assert.Equal(t, "alt-0", item.Content)

	item, err = o.EditItem(context.Background(), id, entity.ContentTypeSalesLetter, "手直し")
	require.NoError(t, err)
	assert.Equal(t, "手直し", item.Content)

	_, err = o.EditItem(context.Background(), id, entity.ContentTypeLongLP, "x")
	assert.ErrorIs(t, err, apperrors.ErrItemNotFound)
}

func TestEvaluateItem(t *testing.T) {
	inv := &fakeInvoker{fn: func(req service.InvokeRequest) (string, error) {
		if req.ContentType == entity.ContentTypeEvaluation {
			return "総合評価: 8/10", nil
		}
		return "body", nil
	}}
	o := newTestOrchestrator(inv, Config{})
	id := createSession(t, o, nil)

	_, err := o.EvaluateItem(context.Background(), id, entity.ContentTypeFreeContent)
	assert.ErrorIs(t, err, apperrors.ErrInvalidParam)

	_, _, err = o.QualityGenerate(context.Background(), id, entity.ContentTypeFreeContent, "", "")
	require.NoError(t, err)
	eval, err := o.EvaluateItem(context.Background(), id, entity.ContentTypeFreeContent)
	require.NoError(t, err)
	assert.Equal(t, "総合評価: 8/10", eval)

	snap, _ := o.GetSession(context.Background(), id)
	it, _ := snap.Item(entity.ContentTypeFreeContent)
	assert.Equal(t, "総合評価: 8/10", it.Evaluation)
}

func TestSettings_UpdateAndReset(t *testing.T) {
	o := newTestOrchestrator(&fakeInvoker{}, Config{})
	id := createSession(t, o, nil)

	bad := entity.DefaultQualitySettings()
	bad.GenerationCount = 9
	_, err := o.UpdateSettings(context.Background(), id, bad)
	assert.ErrorIs(t, err, apperrors.ErrInvalidParam)

	good := entity.DefaultQualitySettings()
	good.WritingStyle = entity.StylePassionate
	snap, err := o.UpdateSettings(context.Background(), id, good)
	require.NoError(t, err)
	assert.Equal(t, entity.StylePassionate, snap.Settings.WritingStyle)

	snap, err = o.ResetSettings(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, entity.DefaultQualitySettings(), snap.Settings)
}

func TestSession_RehydratesFromStore(t *testing.T) {
	store := newMemStore()
	first := New(&fakeInvoker{}, nil, store, nil, Config{})
	id := createSession(t, first, nil)
	_, err := first.StartPipeline(context.Background(), id, StartInput{Wait: true})
	require.NoError(t, err)

	// 模拟中断：快照里残留 Pending 条目
	snap, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	snap.Items[0].Status = entity.ItemStatusPending

	second := New(&fakeInvoker{}, nil, store, nil, Config{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := second.GetSession(context.Background(), id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := second.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, got.PipelineDone)
	assert.Equal(t, entity.ItemStatusError, got.Items[0].Status)
	assert.Equal(t, "interrupted", got.Items[0].Error)
	assert.Equal(t, 6, got.CountByStatus()[entity.ItemStatusCompleted])

	_, err = second.GetSession(context.Background(), "nope")
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestSweep_EvictsIdleSessions(t *testing.T) {
	o := newTestOrchestrator(&fakeInvoker{}, Config{})
	id := createSession(t, o, nil)

	assert.Equal(t, 0, o.Sweep(time.Now(), time.Hour))
	assert.Equal(t, 1, o.Sweep(time.Now().Add(2*time.Hour), time.Hour))

	_, err := o.GetSession(context.Background(), id)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestRunJanitor_StopsOnCancel(t *testing.T) {
	o := newTestOrchestrator(&fakeInvoker{}, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		o.RunJanitor(ctx, time.Millisecond, time.Hour)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
