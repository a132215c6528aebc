// internal/browser/page/controller.go
package page

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/internal/browser/dom"
)

// ActionResult is what every page action returns. Message is a user-facing
// string the LLM reads on its next turn.
type ActionResult struct {
	Success bool
	Message string
}

// UnknownIndexError reports an index with no entry in the current snapshot.
type UnknownIndexError struct {
	Index int
}

func (e *UnknownIndexError) Error() string {
	return fmt.Sprintf("no element with index %d in the current page state", e.Index)
}

// actionOutcome is the JSON shape the interaction scripts return.
type actionOutcome struct {
	OK          bool    `json:"ok"`
	Error       string  `json:"error"`
	TargetBlank bool    `json:"targetBlank"`
	Skipped     bool    `json:"skipped"`
	Selected    string  `json:"selected"`
	Target      string  `json:"target"`
	Moved       float64 `json:"moved"`
}

// Info is the page geometry summary shown to the LLM and returned by the API.
type Info struct {
	ViewportWidth       float64 `json:"viewport_width"`
	ViewportHeight      float64 `json:"viewport_height"`
	PageWidth           float64 `json:"page_width"`
	PageHeight          float64 `json:"page_height"`
	ScrollX             float64 `json:"scroll_x"`
	ScrollY             float64 `json:"scroll_y"`
	PixelsAbove         float64 `json:"pixels_above"`
	PixelsBelow         float64 `json:"pixels_below"`
	PagesAbove          float64 `json:"pages_above"`
	PagesBelow          float64 `json:"pages_below"`
	TotalPages          float64 `json:"total_pages"`
	CurrentPagePosition float64 `json:"current_page_position"`
	PixelsLeft          float64 `json:"pixels_left"`
	PixelsRight         float64 `json:"pixels_right"`
}

// Options configures a Controller.
type Options struct {
	// ViewportExpansion: -1 whole page, 0 viewport only, positive pads by px.
	ViewportExpansion int
	// IncludeAttributes extends the serializer's attribute allow-list.
	IncludeAttributes []string
	// ActionTimeout bounds each single element interaction.
	ActionTimeout time.Duration
}

// Controller owns the current snapshot of one page and exposes the indexed
// actions the agent's tools dispatch. One controller per page per agent.
type Controller struct {
	exec       Executor
	logger     *zap.Logger
	serializer *dom.Serializer
	opts       Options

	mu           sync.Mutex
	snapshot     *dom.Snapshot
	selectorMap  map[int]*dom.Node
	textMap      map[int]string
	serialized   string
	lastRefresh  time.Time
	beforeUpdate []func()
	afterUpdate  []func()
	disposed     bool
}

// NewController builds a controller over an Executor.
func NewController(exec Executor, opts Options, logger *zap.Logger) *Controller {
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 5 * time.Second
	}
	return &Controller{
		exec:        exec,
		logger:      logger.Named("page_controller"),
		serializer:  dom.NewSerializer(opts.IncludeAttributes),
		opts:        opts,
		selectorMap: map[int]*dom.Node{},
		textMap:     map[int]string{},
	}
}

// OnBeforeUpdate registers an observer fired before each refresh.
// Observers must not mutate the snapshot.
func (c *Controller) OnBeforeUpdate(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beforeUpdate = append(c.beforeUpdate, fn)
}

// OnAfterUpdate registers an observer fired after each refresh.
func (c *Controller) OnAfterUpdate(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.afterUpdate = append(c.afterUpdate, fn)
}

// Refresh runs the in-page extraction, verifies the stamped markers, and
// atomically replaces the snapshot, selector map, and serialization.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return fmt.Errorf("page controller is disposed")
	}
	observers := append([]func(){}, c.beforeUpdate...)
	prev := c.snapshot
	c.mu.Unlock()

	for _, fn := range observers {
		fn()
	}

	raw, err := c.exec.Evaluate(ctx, dom.ExtractionScript(c.opts.ViewportExpansion))
	if err != nil {
		return fmt.Errorf("dom extraction failed: %w", err)
	}

	// The script returns JSON.stringify output, so the payload is a JSON
	// string wrapping the snapshot document.
	var payload string
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("unexpected extraction result: %w", err)
	}
	snap, err := dom.ParseSnapshot([]byte(payload))
	if err != nil {
		return err
	}

	interactive := snap.InteractiveNodes()
	if err := c.verifyMarkers(ctx, len(interactive)); err != nil {
		return err
	}

	dom.MarkNew(prev, snap)
	serialized, textMap := c.serializer.Serialize(snap)

	selectorMap := make(map[int]*dom.Node, len(interactive))
	for _, n := range interactive {
		selectorMap[*n.Index] = n
	}

	c.mu.Lock()
	c.snapshot = snap
	c.selectorMap = selectorMap
	c.textMap = textMap
	c.serialized = serialized
	c.lastRefresh = time.Now()
	observers = append([]func(){}, c.afterUpdate...)
	c.mu.Unlock()

	for _, fn := range observers {
		fn()
	}

	c.logger.Debug("Page state refreshed",
		zap.Int("interactive_elements", len(selectorMap)),
		zap.Int("serialized_bytes", len(serialized)),
	)
	return nil
}

// verifyMarkers confirms the live DOM carries exactly the stamped indices the
// snapshot claims, so every LLM-visible index resolves to a drivable element.
func (c *Controller) verifyMarkers(ctx context.Context, want int) error {
	raw, err := c.exec.Evaluate(ctx, markerIndicesScript())
	if err != nil {
		return fmt.Errorf("marker resolution failed: %w", err)
	}
	var indices []int
	if err := json.Unmarshal(raw, &indices); err != nil {
		return fmt.Errorf("unexpected marker resolution result: %w", err)
	}
	if len(indices) != want {
		return fmt.Errorf("marker mismatch: snapshot has %d interactive elements, page has %d markers", want, len(indices))
	}
	for i, idx := range indices {
		if idx != i {
			return fmt.Errorf("marker indices are not contiguous: expected %d, found %d", i, idx)
		}
	}
	return nil
}

// resolve maps an index to its marker selector and friendly description.
func (c *Controller) resolve(index int) (selector, description string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.selectorMap[index]; !ok {
		return "", "", &UnknownIndexError{Index: index}
	}
	description = c.textMap[index]
	if description == "" {
		description = fmt.Sprintf("[%d]", index)
	}
	selector = fmt.Sprintf(`[%s="%d"]`, dom.MarkerAttribute, index)
	return selector, description, nil
}

// runAction evaluates one interaction script under the per-action timeout.
func (c *Controller) runAction(ctx context.Context, script string) (actionOutcome, error) {
	actionCtx, cancel := context.WithTimeout(ctx, c.opts.ActionTimeout)
	defer cancel()

	raw, err := c.exec.Evaluate(actionCtx, script)
	if err != nil {
		return actionOutcome{}, err
	}
	var out actionOutcome
	if err := json.Unmarshal(raw, &out); err != nil {
		return actionOutcome{}, fmt.Errorf("unexpected action result: %w", err)
	}
	return out, nil
}

// Click clicks the indexed element. A target=_blank link still reports
// success, with a warning that new-tab content stays invisible.
func (c *Controller) Click(ctx context.Context, index int) ActionResult {
	selector, description, err := c.resolve(index)
	if err != nil {
		return ActionResult{Success: false, Message: err.Error()}
	}

	out, err := c.runAction(ctx, clickScript(selector))
	if err != nil {
		return ActionResult{Success: false, Message: fmt.Sprintf("Failed to click element %s: %v", description, err)}
	}
	if !out.OK {
		return ActionResult{Success: false, Message: fmt.Sprintf("Failed to click element %s: %s", description, out.Error)}
	}

	msg := fmt.Sprintf("Clicked element %s", description)
	if out.TargetBlank {
		msg += " (warning: the link opens in a new tab, and content in other tabs is not visible to you)"
	}
	return ActionResult{Success: true, Message: msg}
}

// Type clears the indexed field, then fills it with text.
func (c *Controller) Type(ctx context.Context, index int, text string) ActionResult {
	selector, description, err := c.resolve(index)
	if err != nil {
		return ActionResult{Success: false, Message: err.Error()}
	}

	out, err := c.runAction(ctx, typeScript(selector, text))
	if err != nil {
		return ActionResult{Success: false, Message: fmt.Sprintf("Failed to input text into element %s: %v", description, err)}
	}
	if !out.OK {
		return ActionResult{Success: false, Message: fmt.Sprintf("Failed to input text into element %s: %s", description, out.Error)}
	}
	return ActionResult{Success: true, Message: fmt.Sprintf("Typed %q into element %s", text, description)}
}

// Select picks a dropdown option by its visible label. A select with zero
// options is reported as a skipped success.
func (c *Controller) Select(ctx context.Context, index int, optionText string) ActionResult {
	selector, description, err := c.resolve(index)
	if err != nil {
		return ActionResult{Success: false, Message: err.Error()}
	}

	out, err := c.runAction(ctx, selectScript(selector, optionText))
	if err != nil {
		return ActionResult{Success: false, Message: fmt.Sprintf("Failed to select option in element %s: %v", description, err)}
	}
	if !out.OK {
		return ActionResult{Success: false, Message: fmt.Sprintf("Failed to select option in element %s: %s", description, out.Error)}
	}
	if out.Skipped {
		return ActionResult{Success: true, Message: fmt.Sprintf("Element %s has no options, skipped selection", description)}
	}
	return ActionResult{Success: true, Message: fmt.Sprintf("Selected option %q in element %s", out.Selected, description)}
}

// ScrollVerticalParams configures one vertical scroll.
type ScrollVerticalParams struct {
	Down     bool
	NumPages float64
	// Pixels overrides the page-based amount when non-nil.
	Pixels *float64
	// Index scrolls that element's own container first, falling back to the
	// window when the element did not move.
	Index *int
}

// ScrollVertical scrolls the window or an indexed scroll container.
func (c *Controller) ScrollVertical(ctx context.Context, p ScrollVerticalParams, viewportHeight float64) ActionResult {
	direction := 1.0
	if !p.Down {
		direction = -1.0
	}
	amount := direction * p.NumPages * viewportHeight
	if p.Pixels != nil {
		amount = direction * *p.Pixels
	}

	selector := ""
	target := "the page"
	if p.Index != nil {
		sel, description, err := c.resolve(*p.Index)
		if err != nil {
			return ActionResult{Success: false, Message: err.Error()}
		}
		selector = sel
		target = "element " + description
	}

	out, err := c.runAction(ctx, scrollVerticalScript(selector, amount))
	if err != nil {
		return ActionResult{Success: false, Message: fmt.Sprintf("Failed to scroll %s: %v", target, err)}
	}
	if out.Target == "window" {
		target = "the page"
	}

	word := "down"
	if !p.Down {
		word = "up"
	}
	return ActionResult{Success: true, Message: fmt.Sprintf("Scrolled %s %s by %.0f pixels", target, word, absFloat(out.Moved))}
}

// ScrollHorizontalParams configures one horizontal scroll.
type ScrollHorizontalParams struct {
	Right  bool
	Pixels float64
	Index  *int
}

// ScrollHorizontal scrolls the window or an indexed scroll container sideways.
func (c *Controller) ScrollHorizontal(ctx context.Context, p ScrollHorizontalParams) ActionResult {
	direction := 1.0
	if !p.Right {
		direction = -1.0
	}
	amount := direction * p.Pixels

	selector := ""
	target := "the page"
	if p.Index != nil {
		sel, description, err := c.resolve(*p.Index)
		if err != nil {
			return ActionResult{Success: false, Message: err.Error()}
		}
		selector = sel
		target = "element " + description
	}

	out, err := c.runAction(ctx, scrollHorizontalScript(selector, amount))
	if err != nil {
		return ActionResult{Success: false, Message: fmt.Sprintf("Failed to scroll %s: %v", target, err)}
	}
	if out.Target == "window" {
		target = "the page"
	}

	word := "right"
	if !p.Right {
		word = "left"
	}
	return ActionResult{Success: true, Message: fmt.Sprintf("Scrolled %s %s by %.0f pixels", target, word, absFloat(out.Moved))}
}

// ExecScript evaluates caller-supplied JavaScript and returns the stringified
// result. Callers gate this behind explicit configuration.
func (c *Controller) ExecScript(ctx context.Context, source string) ActionResult {
	actionCtx, cancel := context.WithTimeout(ctx, c.opts.ActionTimeout)
	defer cancel()

	raw, err := c.exec.Evaluate(actionCtx, userScript(source))
	if err != nil {
		return ActionResult{Success: false, Message: fmt.Sprintf("Script execution failed: %v", err)}
	}
	result := strings.TrimSpace(string(raw))
	if result == "" {
		result = "undefined"
	}
	return ActionResult{Success: true, Message: fmt.Sprintf("Script executed, result: %s", result)}
}

// Location returns the page's current URL and title.
func (c *Controller) Location(ctx context.Context) (url, title string, err error) {
	raw, err := c.exec.Evaluate(ctx, locationScript())
	if err != nil {
		return "", "", err
	}
	var loc struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal(raw, &loc); err != nil {
		return "", "", fmt.Errorf("unexpected location result: %w", err)
	}
	return loc.URL, loc.Title, nil
}

// PageInfo measures the page and viewport geometry.
func (c *Controller) PageInfo(ctx context.Context) (Info, error) {
	raw, err := c.exec.Evaluate(ctx, pageInfoScript())
	if err != nil {
		return Info{}, err
	}
	var info Info
	if err := json.Unmarshal(raw, &info); err != nil {
		return Info{}, fmt.Errorf("unexpected page info result: %w", err)
	}
	return info, nil
}

// SerializedHTML returns the current pseudo-HTML render.
func (c *Controller) SerializedHTML() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serialized
}

// ElementCount returns the number of indexed elements in the snapshot.
func (c *Controller) ElementCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.selectorMap)
}

// ElementText returns the rendered line for an index, if any.
func (c *Controller) ElementText(index int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	text, ok := c.textMap[index]
	return text, ok
}

// LastRefresh reports when the snapshot was last rebuilt.
func (c *Controller) LastRefresh() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRefresh
}

// Dispose drops the snapshot and maps. The controller refuses further
// refreshes afterwards.
func (c *Controller) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disposed = true
	c.snapshot = nil
	c.selectorMap = map[int]*dom.Node{}
	c.textMap = map[int]string{}
	c.serialized = ""
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
