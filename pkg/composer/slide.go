package composer

import "fmt"

// Slide is one hydrated step of a composed workflow: a chat script plus the artifact panel shown
// next to it.
type Slide struct {
	ID          string   `json:"id"`
	Stage       string   `json:"stage"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Chat        Chat     `json:"chat"`
	Artifact    Artifact `json:"artifact"`

	// Set by Compose: the branch text as the stage wrote it and the context it was filled against.
	templates map[string]branchText
	env       map[string]interface{}
}

type branchText struct {
	response string
	labels   []string
	prompt   string
}

// Chat is a flat table of branches keyed by branch id.
type Chat struct {
	InitialBranch  string            `json:"initial_branch,omitempty"`
	FallbackPrompt string            `json:"fallback_prompt,omitempty"`
	Branches       map[string]Branch `json:"branches"`
}

type Branch struct {
	ID           string            `json:"id"`
	Response     string            `json:"response"`
	Component    *Component        `json:"component,omitempty"`
	Buttons      []Button          `json:"buttons,omitempty"`
	NextBranches map[string]string `json:"next_branches,omitempty"`
	Next         string            `json:"next,omitempty"`
	StoreAs      string            `json:"store_as,omitempty"`
	Generate     *Generate         `json:"generate,omitempty"`
}

type Button struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Component is an interactive widget rendered under a branch response.
type Component struct {
	Type  string                 `json:"type"`
	Props map[string]interface{} `json:"props,omitempty"`
}

// Generate asks the LLM provider for the branch response instead of using the canned one.
type Generate struct {
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
}

type Artifact struct {
	Sections []Section `json:"sections"`
}

type Section struct {
	Type    string                 `json:"type"`
	Title   string                 `json:"title,omitempty"`
	Content string                 `json:"content,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Branch returns the branch with the given id.
func (c Chat) Branch(id string) (Branch, bool) {
	b, ok := c.Branches[id]
	if ok && b.ID == "" {
		b.ID = id
	}
	return b, ok
}

// RenderBranch returns branch id with its placeholders filled against vars. For composed slides
// the stage's original text is filled in one pass against the compose context with vars laid
// over its variables, so text that came from customer data is never expanded again. Other slides
// fill their branch text against vars alone.
func (s Slide) RenderBranch(id string, vars map[string]interface{}) (Branch, error) {
	b, ok := s.Chat.Branch(id)
	if !ok {
		return Branch{}, fmt.Errorf("branch %q not found in slide %q", id, s.ID)
	}

	text, composed := s.templates[id]
	if !composed {
		text = textOf(b)
	}
	env := map[string]interface{}{}
	for k, v := range s.env {
		env[k] = v
	}
	merged := map[string]interface{}{}
	if base, ok := env["variables"].(map[string]interface{}); ok {
		for k, v := range base {
			merged[k] = v
		}
	}
	for k, v := range vars {
		merged[k] = v
	}
	env["variables"] = merged

	h, err := NewHydrator(env)
	if err != nil {
		return Branch{}, err
	}
	b.Response = h.String(text.response)
	b.Buttons = append([]Button(nil), b.Buttons...)
	for i := range b.Buttons {
		if i < len(text.labels) {
			b.Buttons[i].Label = h.String(text.labels[i])
		}
	}
	if b.Generate != nil {
		g := *b.Generate
		g.Prompt = h.String(text.prompt)
		b.Generate = &g
	}
	return b, nil
}

func textOf(b Branch) branchText {
	t := branchText{response: b.Response}
	for _, btn := range b.Buttons {
		t.labels = append(t.labels, btn.Label)
	}
	if b.Generate != nil {
		t.prompt = b.Generate.Prompt
	}
	return t
}

// withTemplates records built's branch text on the hydrated slide.
func (s Slide) withTemplates(built Slide, env map[string]interface{}) Slide {
	s.templates = make(map[string]branchText, len(built.Chat.Branches))
	for id, b := range built.Chat.Branches {
		s.templates[id] = textOf(b)
	}
	s.env = env
	return s
}
