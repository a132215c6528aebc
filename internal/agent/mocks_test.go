package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/browser/page"
)

// MockLLMClient is a testify mock over the LLM contract.
type MockLLMClient struct {
	mock.Mock
}

var _ schemas.LLMClient = (*MockLLMClient)(nil)

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (schemas.GenerationResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(schemas.GenerationResponse), args.Error(1)
}

// reply builds a canned structured response for the mock.
func reply(toolName, inputJSON string) schemas.GenerationResponse {
	return schemas.GenerationResponse{
		Content: fmt.Sprintf(`{"evaluation_previous_goal":"ok","memory":"m","next_goal":"g","action":{%q:%s}}`, toolName, inputJSON),
		Usage:   schemas.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

// blockingLLM blocks in Generate until its context is cancelled, so tests can
// abort the task mid-call.
type blockingLLM struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingLLM) Generate(ctx context.Context, _ schemas.GenerationRequest) (schemas.GenerationResponse, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return schemas.GenerationResponse{}, ctx.Err()
}

// call records one controller invocation for assertions.
type call struct {
	Method string
	Index  int
	Text   string
}

// fakeController is a scripted BrowserController.
type fakeController struct {
	mu          sync.Mutex
	calls       []call
	refreshErr  error
	serialized  string
	info        page.Info
	lastRefresh time.Time
	disposed    bool
}

var _ BrowserController = (*fakeController)(nil)

func newFakeController() *fakeController {
	return &fakeController{
		serialized:  "[0]<input name=q />\n[1]<button>Go />",
		info:        page.Info{ViewportWidth: 1280, ViewportHeight: 800, PageWidth: 1280, PageHeight: 800, TotalPages: 1},
		lastRefresh: time.Now().Add(-time.Minute),
	}
}

func (f *fakeController) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeController) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call{}, f.calls...)
}

func (f *fakeController) Refresh(context.Context) error {
	f.record(call{Method: "refresh"})
	return f.refreshErr
}

func (f *fakeController) Click(_ context.Context, index int) page.ActionResult {
	f.record(call{Method: "click", Index: index})
	return page.ActionResult{Success: true, Message: fmt.Sprintf("Clicked element [%d]", index)}
}

func (f *fakeController) Type(_ context.Context, index int, text string) page.ActionResult {
	f.record(call{Method: "type", Index: index, Text: text})
	return page.ActionResult{Success: true, Message: fmt.Sprintf("Typed %q into element [%d]", text, index)}
}

func (f *fakeController) Select(_ context.Context, index int, optionText string) page.ActionResult {
	f.record(call{Method: "select", Index: index, Text: optionText})
	return page.ActionResult{Success: true, Message: fmt.Sprintf("Selected option %q in element [%d]", optionText, index)}
}

func (f *fakeController) ScrollVertical(_ context.Context, p page.ScrollVerticalParams, _ float64) page.ActionResult {
	f.record(call{Method: "scroll_v"})
	return page.ActionResult{Success: true, Message: "Scrolled the page down by 80 pixels"}
}

func (f *fakeController) ScrollHorizontal(_ context.Context, p page.ScrollHorizontalParams) page.ActionResult {
	f.record(call{Method: "scroll_h"})
	return page.ActionResult{Success: true, Message: "Scrolled the page right by 100 pixels"}
}

func (f *fakeController) ExecScript(_ context.Context, source string) page.ActionResult {
	f.record(call{Method: "exec_script", Text: source})
	return page.ActionResult{Success: true, Message: "Script executed, result: 2"}
}

func (f *fakeController) Location(context.Context) (string, string, error) {
	return "https://example.test/", "Example", nil
}

func (f *fakeController) PageInfo(context.Context) (page.Info, error) {
	return f.info, nil
}

func (f *fakeController) SerializedHTML() string { return f.serialized }

func (f *fakeController) ElementCount() int { return 2 }

func (f *fakeController) LastRefresh() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRefresh
}

func (f *fakeController) Dispose() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disposed = true
}

func (f *fakeController) isDisposed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disposed
}
