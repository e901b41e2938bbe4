package composer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Jeffail/gabs/v2"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_\-.]+)\s*\}\}`)

// Hydrator replaces {{path.to.value}} placeholders with values found in a context document.
// Placeholders whose path does not resolve are left untouched.
type Hydrator struct {
	doc *gabs.Container
}

// NewHydrator builds a hydrator over any JSON-serialisable context.
func NewHydrator(context interface{}) (*Hydrator, error) {
	raw, err := json.Marshal(context)
	if err != nil {
		return nil, fmt.Errorf("failed to encode hydration context: %w", err)
	}
	doc, err := gabs.ParseJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse hydration context: %w", err)
	}
	return &Hydrator{doc: doc}, nil
}

// Document returns the parsed context as plain maps and slices.
func (h *Hydrator) Document() map[string]interface{} {
	if m, ok := h.doc.Data().(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

func (h *Hydrator) Lookup(path string) (interface{}, bool) {
	c := h.doc.Path(path)
	if c == nil || c.Data() == nil {
		return nil, false
	}
	return c.Data(), true
}

func (h *Hydrator) String(s string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		path := placeholderPattern.FindStringSubmatch(match)[1]
		v, ok := h.Lookup(path)
		if !ok {
			return match
		}
		return render(v)
	})
}

// Value hydrates every string inside v, descending into maps and slices. Map keys are kept.
func (h *Hydrator) Value(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return h.String(t)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[k] = h.Value(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = h.Value(item)
		}
		return out
	default:
		return v
	}
}

// Slide hydrates every text field of a slide.
func (h *Hydrator) Slide(s Slide) (Slide, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return Slide{}, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Slide{}, err
	}
	raw, err = json.Marshal(h.Value(generic))
	if err != nil {
		return Slide{}, err
	}
	var out Slide
	if err := json.Unmarshal(raw, &out); err != nil {
		return Slide{}, err
	}
	return out, nil
}

func render(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	}
}
