// internal/agent/tools.go
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/pagepilot/internal/browser/page"
)

// Tool is one named action the model may choose on a step. Execute receives
// the owning agent and the raw input, decodes and validates it, and returns
// the string appended to history as the action's output.
type Tool struct {
	Name        string
	Description string
	// Example is the canonical invocation shown in the system prompt.
	Example string
	Execute func(ctx context.Context, ag *Agent, input jsoniter.RawMessage) (string, error)
}

// Registry is the ordered, mutable set of tools exposed to the model.
type Registry struct {
	order []string
	tools map[string]*Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]*Tool{}}
}

// Register adds or replaces a tool. A nil tool removes the name, which is how
// callers disable a default.
func (r *Registry) Register(name string, t *Tool) {
	if t == nil {
		r.Remove(name)
		return
	}
	t.Name = name
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Remove deletes a tool by name.
func (r *Registry) Remove(name string) {
	if _, exists := r.tools[name]; !exists {
		return
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get resolves a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	return append([]string{}, r.order...)
}

// Describe renders the tool list for the system prompt.
func (r *Registry) Describe() string {
	var b strings.Builder
	for _, name := range r.order {
		t := r.tools[name]
		fmt.Fprintf(&b, "- %s: %s\n  Example: %s\n", name, t.Description, t.Example)
	}
	return strings.TrimRight(b.String(), "\n")
}

// decodeInput unmarshals a tool input, treating absent input as an empty
// object so defaulted tools can be called bare.
func decodeInput(raw jsoniter.RawMessage, out any) error {
	if len(raw) == 0 {
		raw = jsoniter.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return newTaskError(ErrCodeSchema, "invalid tool input: %v", err)
	}
	return nil
}

// -- Tool inputs --

// DoneInput terminates the task. Success defaults to false when omitted.
type DoneInput struct {
	Text    string `json:"text"`
	Success *bool  `json:"success"`
}

// WaitInput sleeps between 1 and 10 seconds, default 1.
type WaitInput struct {
	Seconds *float64 `json:"seconds"`
}

func (w *WaitInput) validate() error {
	if w.Seconds == nil {
		s := 1.0
		w.Seconds = &s
	}
	if *w.Seconds < 1 || *w.Seconds > 10 {
		return newTaskError(ErrCodeSchema, "wait.seconds must be between 1 and 10, got %v", *w.Seconds)
	}
	return nil
}

// AskUserInput surfaces a question to the operator.
type AskUserInput struct {
	Question string `json:"question"`
}

// IndexInput targets one element by its snapshot index.
type IndexInput struct {
	Index *int `json:"index"`
}

func (i *IndexInput) validate(tool string) error {
	if i.Index == nil || *i.Index < 0 {
		return newTaskError(ErrCodeSchema, "%s.index must be an integer >= 0", tool)
	}
	return nil
}

// TextOnIndexInput targets one element with a text payload.
type TextOnIndexInput struct {
	Index *int   `json:"index"`
	Text  string `json:"text"`
}

func (i *TextOnIndexInput) validate(tool string) error {
	if i.Index == nil || *i.Index < 0 {
		return newTaskError(ErrCodeSchema, "%s.index must be an integer >= 0", tool)
	}
	return nil
}

// ScrollInput configures a vertical scroll. Down defaults to true, num_pages
// to 0.1 of a viewport.
type ScrollInput struct {
	Down     *bool    `json:"down"`
	NumPages *float64 `json:"num_pages"`
	Pixels   *float64 `json:"pixels"`
	Index    *int     `json:"index"`
}

func (s *ScrollInput) validate() error {
	if s.Down == nil {
		d := true
		s.Down = &d
	}
	if s.NumPages == nil {
		n := 0.1
		s.NumPages = &n
	}
	if *s.NumPages < 0 || *s.NumPages > 10 {
		return newTaskError(ErrCodeSchema, "scroll.num_pages must be between 0 and 10, got %v", *s.NumPages)
	}
	if s.Pixels != nil && *s.Pixels < 0 {
		return newTaskError(ErrCodeSchema, "scroll.pixels must be >= 0")
	}
	if s.Index != nil && *s.Index < 0 {
		return newTaskError(ErrCodeSchema, "scroll.index must be >= 0")
	}
	return nil
}

// ScrollHorizontalInput configures a horizontal scroll. Right defaults to true.
type ScrollHorizontalInput struct {
	Right  *bool    `json:"right"`
	Pixels *float64 `json:"pixels"`
	Index  *int     `json:"index"`
}

func (s *ScrollHorizontalInput) validate() error {
	if s.Right == nil {
		r := true
		s.Right = &r
	}
	if s.Pixels == nil || *s.Pixels < 0 {
		return newTaskError(ErrCodeSchema, "scroll_horizontally.pixels must be a number >= 0")
	}
	if s.Index != nil && *s.Index < 0 {
		return newTaskError(ErrCodeSchema, "scroll_horizontally.index must be >= 0")
	}
	return nil
}

// ExecScriptInput carries caller-authored JavaScript.
type ExecScriptInput struct {
	Script string `json:"script"`
}

// -- Default tool set --

// DefaultTools builds the standard registry. The execute_javascript tool is
// only registered when scriptExecution is enabled.
func DefaultTools(scriptExecution bool) *Registry {
	r := NewRegistry()

	r.Register("done", &Tool{
		Description: "Finish the task and report the outcome. Set success to false if the task could not be completed.",
		Example:     `{"done": {"text": "Found the order number: 12345", "success": true}}`,
		Execute: func(ctx context.Context, ag *Agent, input jsoniter.RawMessage) (string, error) {
			var in DoneInput
			if err := decodeInput(input, &in); err != nil {
				return "", err
			}
			success := false
			if in.Success != nil {
				success = *in.Success
			}
			ag.finish(success, in.Text)
			return fmt.Sprintf("Task marked done (success=%t)", success), nil
		},
	})

	r.Register("wait", &Tool{
		Description: "Wait for the page to settle, between 1 and 10 seconds (default 1).",
		Example:     `{"wait": {"seconds": 2}}`,
		Execute: func(ctx context.Context, ag *Agent, input jsoniter.RawMessage) (string, error) {
			var in WaitInput
			if err := decodeInput(input, &in); err != nil {
				return "", err
			}
			if err := in.validate(); err != nil {
				return "", err
			}
			waited, err := ag.waitFor(ctx, time.Duration(*in.Seconds*float64(time.Second)))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Waited %.1f seconds", waited.Seconds()), nil
		},
	})

	r.Register("ask_user", &Tool{
		Description: "Ask the user a clarifying question when the task cannot proceed without their input.",
		Example:     `{"ask_user": {"question": "Which of the two accounts should I use?"}}`,
		Execute: func(ctx context.Context, ag *Agent, input jsoniter.RawMessage) (string, error) {
			var in AskUserInput
			if err := decodeInput(input, &in); err != nil {
				return "", err
			}
			return ag.askUser(in.Question), nil
		},
	})

	r.Register("click_element_by_index", &Tool{
		Description: "Click the interactive element with the given index.",
		Example:     `{"click_element_by_index": {"index": 3}}`,
		Execute: func(ctx context.Context, ag *Agent, input jsoniter.RawMessage) (string, error) {
			var in IndexInput
			if err := decodeInput(input, &in); err != nil {
				return "", err
			}
			if err := in.validate("click_element_by_index"); err != nil {
				return "", err
			}
			return ag.controller.Click(ctx, *in.Index).Message, nil
		},
	})

	r.Register("input_text", &Tool{
		Description: "Clear the input element with the given index and type the text into it.",
		Example:     `{"input_text": {"index": 2, "text": "hello"}}`,
		Execute: func(ctx context.Context, ag *Agent, input jsoniter.RawMessage) (string, error) {
			var in TextOnIndexInput
			if err := decodeInput(input, &in); err != nil {
				return "", err
			}
			if err := in.validate("input_text"); err != nil {
				return "", err
			}
			return ag.controller.Type(ctx, *in.Index, in.Text).Message, nil
		},
	})

	r.Register("select_dropdown_option", &Tool{
		Description: "Select the option with the given visible text in the dropdown element with the given index.",
		Example:     `{"select_dropdown_option": {"index": 4, "text": "Germany"}}`,
		Execute: func(ctx context.Context, ag *Agent, input jsoniter.RawMessage) (string, error) {
			var in TextOnIndexInput
			if err := decodeInput(input, &in); err != nil {
				return "", err
			}
			if err := in.validate("select_dropdown_option"); err != nil {
				return "", err
			}
			return ag.controller.Select(ctx, *in.Index, in.Text).Message, nil
		},
	})

	r.Register("scroll", &Tool{
		Description: "Scroll the page or a scrollable element vertically. num_pages is in viewport heights (0-10); pixels overrides it.",
		Example:     `{"scroll": {"down": true, "num_pages": 0.5}}`,
		Execute: func(ctx context.Context, ag *Agent, input jsoniter.RawMessage) (string, error) {
			var in ScrollInput
			if err := decodeInput(input, &in); err != nil {
				return "", err
			}
			if err := in.validate(); err != nil {
				return "", err
			}
			info, err := ag.controller.PageInfo(ctx)
			if err != nil {
				return fmt.Sprintf("Failed to measure the page before scrolling: %v", err), nil
			}
			params := page.ScrollVerticalParams{
				Down:     *in.Down,
				NumPages: *in.NumPages,
				Pixels:   in.Pixels,
				Index:    in.Index,
			}
			return ag.controller.ScrollVertical(ctx, params, info.ViewportHeight).Message, nil
		},
	})

	r.Register("scroll_horizontally", &Tool{
		Description: "Scroll the page or a scrollable element horizontally by the given number of pixels.",
		Example:     `{"scroll_horizontally": {"right": true, "pixels": 300}}`,
		Execute: func(ctx context.Context, ag *Agent, input jsoniter.RawMessage) (string, error) {
			var in ScrollHorizontalInput
			if err := decodeInput(input, &in); err != nil {
				return "", err
			}
			if err := in.validate(); err != nil {
				return "", err
			}
			params := page.ScrollHorizontalParams{
				Right:  *in.Right,
				Pixels: *in.Pixels,
				Index:  in.Index,
			}
			return ag.controller.ScrollHorizontal(ctx, params).Message, nil
		},
	})

	if scriptExecution {
		r.Register("execute_javascript", &Tool{
			Description: "Run JavaScript on the page and return its result. Prefer the indexed tools; use this only when no other tool can do it.",
			Example:     `{"execute_javascript": {"script": "return document.title"}}`,
			Execute: func(ctx context.Context, ag *Agent, input jsoniter.RawMessage) (string, error) {
				var in ExecScriptInput
				if err := decodeInput(input, &in); err != nil {
					return "", err
				}
				if strings.TrimSpace(in.Script) == "" {
					return "", newTaskError(ErrCodeSchema, "execute_javascript.script must not be empty")
				}
				return ag.controller.ExecScript(ctx, in.Script).Message, nil
			},
		})
	}

	return r
}
