// Package chat resolves which scripted branch of a slide is showing and moves between branches
// as the user clicks buttons, submits components or types free text.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/apperr"
	"github.com/guidepath/guidepath/pkg/composer"
	"github.com/guidepath/guidepath/pkg/llm"
)

const (
	DefaultMaxHops = 50
	initialBranch  = "initial"
	submitTrigger  = "submit"
	anyTrigger     = "*"
	lastInputKey   = "last_input"
)

var (
	ErrHopLimit      = errors.New("branch hop limit exceeded")
	ErrUnknownBranch = errors.New("unknown branch")
)

// State is the per-step chat position. Hops counts every branch transition taken in the step.
type State struct {
	SlideID   string                 `json:"slide_id"`
	BranchID  string                 `json:"branch_id"`
	Hops      int                    `json:"hops"`
	Variables map[string]interface{} `json:"variables"`
}

// Input carries exactly one of a button value, a component value or free text.
type Input struct {
	ButtonValue    string      `json:"button_value,omitempty"`
	ComponentValue interface{} `json:"component_value,omitempty"`
	Text           string      `json:"text,omitempty"`
}

type Result struct {
	State     State           `json:"state"`
	Branch    composer.Branch `json:"branch"`
	Generated bool            `json:"generated,omitempty"`
	Usage     *llm.Usage      `json:"usage,omitempty"`
}

type Resolver struct {
	provider llm.Provider
	maxHops  int
	logger   *zap.Logger
}

// NewResolver builds a resolver. provider may be nil when no slide generates text.
func NewResolver(provider llm.Provider, maxHops int, logger *zap.Logger) *Resolver {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{provider: provider, maxHops: maxHops, logger: logger}
}

// Start positions the chat on the slide's initial branch, following automatic continuations.
func (r *Resolver) Start(ctx context.Context, slide composer.Slide, vars map[string]interface{}) (*Result, error) {
	const op = "ChatStart"
	start := slide.Chat.InitialBranch
	if start == "" {
		start = initialBranch
	}
	state := State{SlideID: slide.ID, Variables: cloneVars(vars)}
	return r.enter(ctx, op, slide, state, start, false)
}

func (r *Resolver) Advance(ctx context.Context, slide composer.Slide, state State, in Input) (*Result, error) {
	const op = "ChatAdvance"
	if state.SlideID != "" && state.SlideID != slide.ID {
		return nil, apperr.Newf(op, apperr.KindValidation, "state belongs to slide %q", state.SlideID)
	}
	if state.BranchID == "" {
		return nil, apperr.Validation(op, "state has no current branch")
	}
	current, err := branch(op, slide, state.BranchID)
	if err != nil {
		return nil, err
	}
	state.SlideID = slide.ID
	state.Variables = cloneVars(state.Variables)

	switch {
	case in.ButtonValue != "":
		target, ok := current.NextBranches[in.ButtonValue]
		if !ok {
			if _, exists := slide.Chat.Branches[in.ButtonValue]; !exists {
				return nil, apperr.Newf(op, apperr.KindValidation, "branch %q has no continuation for %q", current.ID, in.ButtonValue)
			}
			target = in.ButtonValue
		}
		return r.enter(ctx, op, slide, state, target, true)

	case in.ComponentValue != nil:
		if current.StoreAs != "" {
			state.Variables[current.StoreAs] = in.ComponentValue
		}
		target := current.NextBranches[submitTrigger]
		if target == "" {
			target = current.Next
		}
		if target == "" {
			return nil, apperr.Newf(op, apperr.KindValidation, "branch %q does not accept a component value", current.ID)
		}
		return r.enter(ctx, op, slide, state, target, true)

	case strings.TrimSpace(in.Text) != "":
		text := strings.TrimSpace(in.Text)
		state.Variables[lastInputKey] = text
		if target, ok := matchText(current.NextBranches, text); ok {
			return r.enter(ctx, op, slide, state, target, true)
		}
		if slide.Chat.FallbackPrompt != "" {
			return r.fallback(ctx, op, slide, state, current, text)
		}
		return nil, apperr.Newf(op, apperr.KindValidation, "no branch of %q matches the input", current.ID)

	default:
		return nil, apperr.Validation(op, "button_value, component_value or text is required")
	}
}

// enter moves to id and keeps following Next while the branch waits for no input. Each move is
// one hop.
func (r *Resolver) enter(ctx context.Context, op string, slide composer.Slide, state State, id string, hop bool) (*Result, error) {
	for {
		if hop {
			if state.Hops >= r.maxHops {
				r.logger.Warn("chat hop limit reached",
					zap.String("slide_id", slide.ID),
					zap.String("branch_id", id),
					zap.Int("max_hops", r.maxHops),
				)
				return nil, apperr.Wrap(op, apperr.KindConfiguration, ErrHopLimit).
					WithDetails(map[string]any{"slide_id": slide.ID, "max_hops": r.maxHops})
			}
			state.Hops++
		}
		b, err := branch(op, slide, id)
		if err != nil {
			return nil, err
		}
		state.BranchID = b.ID

		if b.Next != "" && b.Component == nil && len(b.Buttons) == 0 && b.Generate == nil {
			id = b.Next
			hop = true
			continue
		}
		return r.render(ctx, op, slide, state, b.ID)
	}
}

func (r *Resolver) render(ctx context.Context, op string, slide composer.Slide, state State, id string) (*Result, error) {
	b, err := slide.RenderBranch(id, state.Variables)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.KindInternal, err)
	}

	result := &Result{State: state, Branch: b}
	if b.Generate == nil {
		return result, nil
	}
	resp, err := r.generate(ctx, op, b.Generate.System, b.Generate.Prompt)
	if err != nil {
		return nil, err
	}
	result.Branch.Response = resp.Text
	result.Generated = true
	result.Usage = &resp.Usage
	return result, nil
}

// fallback answers unmatched free text with generated text and stays on the current branch.
func (r *Resolver) fallback(ctx context.Context, op string, slide composer.Slide, state State, current composer.Branch, text string) (*Result, error) {
	resp, err := r.generate(ctx, op, "", slide.Chat.FallbackPrompt+text)
	if err != nil {
		return nil, err
	}
	current.Response = resp.Text
	return &Result{State: state, Branch: current, Generated: true, Usage: &resp.Usage}, nil
}

func (r *Resolver) generate(ctx context.Context, op, system, prompt string) (*llm.Response, error) {
	if r.provider == nil {
		return nil, apperr.New(op, apperr.KindConfiguration, "no LLM provider configured")
	}
	return r.provider.Complete(ctx, llm.Request{
		System:   system,
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
}

func branch(op string, slide composer.Slide, id string) (composer.Branch, error) {
	b, ok := slide.Chat.Branch(id)
	if !ok {
		return composer.Branch{}, apperr.Wrap(op, apperr.KindConfiguration, fmt.Errorf("%w %q in slide %q", ErrUnknownBranch, id, slide.ID))
	}
	return b, nil
}

// matchText picks the first trigger, in sorted order, contained in text ignoring case. The "*"
// trigger matches when nothing else does.
func matchText(next map[string]string, text string) (string, bool) {
	triggers := make([]string, 0, len(next))
	for t := range next {
		if t != anyTrigger && t != submitTrigger {
			triggers = append(triggers, t)
		}
	}
	sort.Strings(triggers)
	lower := strings.ToLower(text)
	for _, t := range triggers {
		if strings.Contains(lower, strings.ToLower(t)) {
			return next[t], true
		}
	}
	target, ok := next[anyTrigger]
	return target, ok
}

func cloneVars(vars map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}
