package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drm-scribe-orchestra/internal/domain/entity"
	"drm-scribe-orchestra/internal/domain/service"
)

type fakeUsageRepo struct {
	events []*entity.LLMUsageEvent
}

func (f *fakeUsageRepo) Create(_ context.Context, e *entity.LLMUsageEvent) error {
	f.events = append(f.events, e)
	return nil
}

func (f *fakeUsageRepo) SumTokensByContentType(_ context.Context, projectID string, _, _ time.Time) (map[string]int64, error) {
	out := map[string]int64{}
	for _, e := range f.events {
		if e.ProjectID == projectID {
			out[e.ContentType] += int64(e.TokensPrompt + e.TokensCompletion)
		}
	}
	return out, nil
}

func TestLLMUsageRecorder_Record(t *testing.T) {
	repo := &fakeUsageRepo{}
	r := NewLLMUsageRecorder(repo)

	require.NoError(t, r.Record(context.Background(), service.LLMUsageInput{
		SessionID:        " s1 ",
		ContentType:      "sales_letter",
		Provider:         "openai",
		Model:            "gpt-4o",
		PromptTokens:     100,
		CompletionTokens: 900,
		DurationMs:       1200,
	}))
	require.Len(t, repo.events, 1)
	e := repo.events[0]
	assert.Equal(t, "default", e.ProjectID)
	assert.Equal(t, "s1", e.SessionID)
	assert.Equal(t, "sales_letter", e.ContentType)

	assert.Error(t, r.Record(context.Background(), service.LLMUsageInput{PromptTokens: -1}))
}

func TestLLMUsageRecorder_NilRepoIsNoop(t *testing.T) {
	r := NewLLMUsageRecorder(nil)
	assert.NoError(t, r.Record(context.Background(), service.LLMUsageInput{PromptTokens: 1}))
	_, err := r.Summary(context.Background(), "", time.Time{}, time.Now())
	assert.Error(t, err)
}

func TestLLMUsageRecorder_Summary(t *testing.T) {
	repo := &fakeUsageRepo{}
	r := NewLLMUsageRecorder(repo)
	ctx := context.Background()
	for _, ct := range []string{"free_content", "free_content", "short_lp"} {
		require.NoError(t, r.Record(ctx, service.LLMUsageInput{ProjectID: "p", ContentType: ct, PromptTokens: 10, CompletionTokens: 5}))
	}

	sum, err := r.Summary(ctx, "p", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 45, sum.Total)
	assert.EqualValues(t, 30, sum.ByContentType["free_content"])
	assert.EqualValues(t, 15, sum.ByContentType["short_lp"])
}
