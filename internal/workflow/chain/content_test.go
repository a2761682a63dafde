package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drm-scribe-orchestra/internal/domain/entity"
	wfmodel "drm-scribe-orchestra/internal/workflow/model"
)

type fakeChatModel struct {
	reply    *schema.Message
	err      error
	gotMsgs  []*schema.Message
	gotOpts  *model.Options
	gotCalls int
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.gotCalls++
	f.gotMsgs = input
	f.gotOpts = model.GetCommonOptions(nil, opts...)
	return f.reply, f.err
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

type fakeFactory struct {
	m    model.BaseChatModel
	err  error
	name string
}

func (f *fakeFactory) Get(_ context.Context, name string) (model.BaseChatModel, error) {
	f.name = name
	return f.m, f.err
}

func TestContentChain_UsesRegistryPrompts(t *testing.T) {
	fm := &fakeChatModel{reply: schema.AssistantMessage("生成結果", nil)}
	c := NewContentChain(&fakeFactory{m: fm}, nil)

	out, err := c.Invoke(context.Background(), &wfmodel.ContentGenerateInput{
		Provider:    "openai",
		ContentType: entity.ContentTypeSalesLetter,
		Input:       "テスト講座",
		InputType:   entity.InputTypeProductInfo,
	})
	require.NoError(t, err)
	assert.Equal(t, "生成結果", out.Content)

	require.Len(t, fm.gotMsgs, 2)
	assert.Equal(t, schema.System, fm.gotMsgs[0].Role)
	assert.Contains(t, fm.gotMsgs[1].Content, "商品情報: テスト講座")
	require.NotNil(t, fm.gotOpts.MaxTokens)
	assert.Equal(t, 16000, *fm.gotOpts.MaxTokens)
}

func TestContentChain_OverridesAndOptions(t *testing.T) {
	fm := &fakeChatModel{reply: schema.AssistantMessage("ok", nil)}
	f := &fakeFactory{m: fm}
	c := NewContentChain(f, nil)

	maxTokens := 123
	temp := float32(0.2)
	_, err := c.Invoke(context.Background(), &wfmodel.ContentGenerateInput{
		ContentType:  entity.ContentTypeFreeContent,
		Input:        "x",
		InputType:    entity.InputTypeProductInfo,
		UserPrompt:   "custom user",
		MaxTokens:    &maxTokens,
		Temperature:  &temp,
		Model:        "gpt-4o-mini",
		SystemPrompt: "",
	})
	require.NoError(t, err)

	assert.Equal(t, "", f.name)
	assert.Equal(t, "custom user", fm.gotMsgs[1].Content)
	assert.NotEqual(t, "", fm.gotMsgs[0].Content)
	assert.Equal(t, 123, *fm.gotOpts.MaxTokens)
	assert.InDelta(t, 0.2, *fm.gotOpts.Temperature, 1e-6)
	assert.Equal(t, "gpt-4o-mini", *fm.gotOpts.Model)
}

func TestContentChain_Errors(t *testing.T) {
	_, err := NewContentChain(nil, nil).Invoke(context.Background(), &wfmodel.ContentGenerateInput{ContentType: "x"})
	require.Error(t, err)

	c := NewContentChain(&fakeFactory{err: errors.New("no provider")}, nil)
	_, err = c.Invoke(context.Background(), &wfmodel.ContentGenerateInput{ContentType: entity.ContentTypeLongLP})
	require.EqualError(t, err, "no provider")

	fm := &fakeChatModel{err: errors.New("rate limited")}
	c = NewContentChain(&fakeFactory{m: fm}, nil)
	_, err = c.Invoke(context.Background(), &wfmodel.ContentGenerateInput{ContentType: entity.ContentTypeLongLP})
	require.EqualError(t, err, "rate limited")

	_, err = c.Invoke(context.Background(), nil)
	require.Error(t, err)
}
