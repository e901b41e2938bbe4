package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/apperr"
	"github.com/guidepath/guidepath/pkg/composer"
	"github.com/guidepath/guidepath/pkg/llm"
)

type fakeProvider struct {
	requests []llm.Request
	reply    string
	err      error
}

func (p *fakeProvider) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Response{Text: p.reply, Usage: llm.Usage{InputTokens: 10, OutputTokens: 4}}, nil
}

func builtinSlide(t *testing.T, id string) composer.Slide {
	t.Helper()
	stage, err := composer.NewDefaultStageRegistry().Lookup(id)
	require.NoError(t, err)
	return stage.Build(stage.Merge(nil))
}

func TestStartUsesInitialBranch(t *testing.T) {
	r := NewResolver(nil, 0, zap.NewNop())

	res, err := r.Start(context.Background(), builtinSlide(t, "welcome"), nil)
	require.NoError(t, err)
	assert.Equal(t, "initial", res.State.BranchID)
	assert.Equal(t, "welcome", res.State.SlideID)
	assert.Zero(t, res.State.Hops)

	slide := composer.Slide{ID: "s", Chat: composer.Chat{
		InitialBranch: "hello",
		Branches:      map[string]composer.Branch{"hello": {Response: "Hi"}},
	}}
	res, err = r.Start(context.Background(), slide, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", res.State.BranchID)
	assert.Equal(t, "Hi", res.Branch.Response)
}

func TestAdvanceByButton(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(nil, 0, zap.NewNop())
	slide := builtinSlide(t, "welcome")

	res, err := r.Start(ctx, slide, nil)
	require.NoError(t, err)
	res, err = r.Advance(ctx, slide, res.State, Input{ButtonValue: "start"})
	require.NoError(t, err)
	assert.Equal(t, "ready", res.State.BranchID)
	assert.Equal(t, 1, res.State.Hops)

	res, err = r.Advance(ctx, slide, res.State, Input{ButtonValue: "snooze"})
	require.NoError(t, err)
	assert.Equal(t, "snooze", res.State.BranchID)

	_, err = r.Advance(ctx, slide, res.State, Input{ButtonValue: "nonsense"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestComponentSubmitStoresVariable(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(nil, 0, zap.NewNop())
	slide := builtinSlide(t, "pricing")

	res, err := r.Start(ctx, slide, map[string]interface{}{"champion": "Dana"})
	require.NoError(t, err)
	require.Equal(t, "initial", res.State.BranchID)

	res, err = r.Advance(ctx, slide, res.State, Input{ComponentValue: 130000})
	require.NoError(t, err)
	assert.Equal(t, "confirm", res.State.BranchID)
	assert.Equal(t, 130000, res.State.Variables["proposed_arr"])
	assert.Equal(t, "Dana", res.State.Variables["champion"])
	assert.Equal(t, "Proposed 130000. I'll add it to the plan.", res.Branch.Response)

	_, err = r.Advance(ctx, slide, res.State, Input{ComponentValue: 1})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestFreeTextMatchesTriggersThenGenerates(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{reply: "Loop in the economic buyer."}
	r := NewResolver(provider, 0, zap.NewNop())
	slide := builtinSlide(t, "risk-review")

	start, err := r.Start(ctx, slide, nil)
	require.NoError(t, err)

	res, err := r.Advance(ctx, slide, start.State, Input{Text: "Their BUDGET was cut"})
	require.NoError(t, err)
	assert.Equal(t, "risk-budget", res.State.BranchID)
	assert.False(t, res.Generated)
	assert.Empty(t, provider.requests)

	res, err = r.Advance(ctx, slide, start.State, Input{Text: "the new VP hates us"})
	require.NoError(t, err)
	assert.Equal(t, "generic", res.State.BranchID)
	assert.True(t, res.Generated)
	assert.Equal(t, "Loop in the economic buyer.", res.Branch.Response)
	require.Len(t, provider.requests, 1)
	assert.Contains(t, provider.requests[0].Messages[0].Content, "the new VP hates us")
	require.NotNil(t, res.Usage)
	assert.Equal(t, 4, res.Usage.OutputTokens)
}

func TestFallbackPromptKeepsBranch(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{reply: "Noted."}
	r := NewResolver(provider, 0, zap.NewNop())
	slide := composer.Slide{ID: "s", Chat: composer.Chat{
		FallbackPrompt: "Reply briefly to: ",
		Branches: map[string]composer.Branch{
			"initial": {Response: "Yes or no?", NextBranches: map[string]string{"yes": "done"}},
			"done":    {Response: "Done"},
		},
	}}

	start, err := r.Start(ctx, slide, nil)
	require.NoError(t, err)
	res, err := r.Advance(ctx, slide, start.State, Input{Text: "maybe later"})
	require.NoError(t, err)
	assert.Equal(t, "initial", res.State.BranchID)
	assert.Equal(t, "Noted.", res.Branch.Response)
	assert.Equal(t, "Reply briefly to: maybe later", provider.requests[0].Messages[0].Content)

	provider.err = apperr.New("LLMComplete", apperr.KindUpstreamTimeout, "deadline")
	_, err = r.Advance(ctx, slide, start.State, Input{Text: "maybe later"})
	assert.Equal(t, apperr.KindUpstreamTimeout, apperr.KindOf(err))

	slide.Chat.FallbackPrompt = ""
	_, err = r.Advance(ctx, slide, start.State, Input{Text: "maybe later"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestHopGuardStopsCycles(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(nil, 5, zap.NewNop())
	loop := composer.Slide{ID: "loop", Chat: composer.Chat{Branches: map[string]composer.Branch{
		"initial": {Response: "a", Next: "b"},
		"b":       {Response: "b", Next: "initial"},
	}}}

	_, err := r.Start(ctx, loop, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHopLimit))
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))

	pingPong := composer.Slide{ID: "ping", Chat: composer.Chat{Branches: map[string]composer.Branch{
		"initial": {Response: "ping", Buttons: []composer.Button{{Label: "Again", Value: "initial"}}},
	}}}
	res, err := r.Start(ctx, pingPong, nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		res, err = r.Advance(ctx, pingPong, res.State, Input{ButtonValue: "initial"})
		require.NoError(t, err)
	}
	assert.Equal(t, 5, res.State.Hops)
	_, err = r.Advance(ctx, pingPong, res.State, Input{ButtonValue: "initial"})
	assert.True(t, errors.Is(err, ErrHopLimit))
}

func TestUnknownBranchAndMissingProvider(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(nil, 0, zap.NewNop())
	slide := composer.Slide{ID: "s", Chat: composer.Chat{Branches: map[string]composer.Branch{
		"initial": {Response: "go", Buttons: []composer.Button{{Label: "Go", Value: "go"}}, NextBranches: map[string]string{"go": "missing"}},
		"gen":     {Generate: &composer.Generate{Prompt: "hi"}},
	}}}

	start, err := r.Start(ctx, slide, nil)
	require.NoError(t, err)
	_, err = r.Advance(ctx, slide, start.State, Input{ButtonValue: "go"})
	assert.True(t, errors.Is(err, ErrUnknownBranch))
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))

	_, err = r.Advance(ctx, slide, start.State, Input{ButtonValue: "gen"})
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))

	_, err = r.Advance(ctx, slide, State{SlideID: "other", BranchID: "initial"}, Input{ButtonValue: "go"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
