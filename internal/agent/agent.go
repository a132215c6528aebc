// internal/agent/agent.go
package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/browser/page"
)

const pauseCheckInterval = 100 * time.Millisecond

// stepBudgetExceededMessage is the task outcome when the loop runs out of steps.
const stepBudgetExceededMessage = "Step count exceeded maximum limit"

// BrowserController is the narrow contract the agent holds on the page layer.
// *page.Controller satisfies it; tests substitute a scripted fake.
type BrowserController interface {
	Refresh(ctx context.Context) error
	Click(ctx context.Context, index int) page.ActionResult
	Type(ctx context.Context, index int, text string) page.ActionResult
	Select(ctx context.Context, index int, optionText string) page.ActionResult
	ScrollVertical(ctx context.Context, p page.ScrollVerticalParams, viewportHeight float64) page.ActionResult
	ScrollHorizontal(ctx context.Context, p page.ScrollHorizontalParams) page.ActionResult
	ExecScript(ctx context.Context, source string) page.ActionResult
	Location(ctx context.Context) (url, title string, err error)
	PageInfo(ctx context.Context) (page.Info, error)
	SerializedHTML() string
	ElementCount() int
	LastRefresh() time.Time
	Dispose()
}

var _ BrowserController = (*page.Controller)(nil)

// Hooks are the optional lifecycle observers a caller may attach.
type Hooks struct {
	OnBeforeTask func(task string)
	OnAfterTask  func(result TaskResult)
	OnBeforeStep func(step int)
	OnAfterStep  func(step int, entry HistoryEntry)
	OnDispose    func(reason string)
}

// Options tunes the task loop.
type Options struct {
	MaxSteps        int
	WorkingLanguage string
	Temperature     float32
	// WaitWarnAfter is the cumulative wait after which the loop nudges the
	// model away from waiting further.
	WaitWarnAfter time.Duration
}

func (o *Options) applyDefaults() {
	if o.MaxSteps <= 0 {
		o.MaxSteps = 50
	}
	if o.WorkingLanguage == "" {
		o.WorkingLanguage = "English"
	}
	if o.WaitWarnAfter <= 0 {
		o.WaitWarnAfter = 3 * time.Second
	}
}

// Agent runs one task at a time against one page: a single-threaded
// reason-act cycle with exactly one tool execution per step.
type Agent struct {
	controller BrowserController
	llm        schemas.LLMClient
	registry   *Registry
	logger     *zap.Logger
	hooks      Hooks
	opts       Options

	paused   atomic.Bool
	aborted  atomic.Bool
	disposed atomic.Bool

	disposeOnce sync.Once

	mu          sync.Mutex
	taskID      string
	history     []HistoryEntry
	totalWait   time.Duration
	abortCancel context.CancelFunc
	abortReason string
	doneFlag    bool
	doneSuccess bool
	doneText    string
}

// New builds an agent. Controller, LLM client, and registry are required.
func New(controller BrowserController, llm schemas.LLMClient, registry *Registry, opts Options, hooks Hooks, logger *zap.Logger) (*Agent, error) {
	if controller == nil {
		return nil, newTaskError(ErrCodeConfig, "a page controller is required")
	}
	if llm == nil {
		return nil, newTaskError(ErrCodeConfig, "an LLM client is required")
	}
	if registry == nil {
		return nil, newTaskError(ErrCodeConfig, "a tool registry is required")
	}
	opts.applyDefaults()
	return &Agent{
		controller: controller,
		llm:        llm,
		registry:   registry,
		logger:     logger.Named("agent"),
		hooks:      hooks,
		opts:       opts,
	}, nil
}

// Pause blocks the loop at its next cooperative check.
func (a *Agent) Pause() { a.paused.Store(true) }

// Resume releases a paused loop.
func (a *Agent) Resume() { a.paused.Store(false) }

// Abort terminates the current task at the next cooperative point and
// unwinds any in-flight LLM call.
func (a *Agent) Abort(reason string) {
	a.mu.Lock()
	if a.abortReason == "" {
		a.abortReason = reason
	}
	cancel := a.abortCancel
	a.mu.Unlock()

	a.aborted.Store(true)
	if cancel != nil {
		cancel()
	}
}

// Dispose aborts the current task and releases the page state. Idempotent.
func (a *Agent) Dispose(reason string) {
	a.disposeOnce.Do(func() {
		if reason == "" {
			reason = "agent disposed"
		}
		a.disposed.Store(true)
		a.Abort(reason)
		a.controller.Dispose()
		if a.hooks.OnDispose != nil {
			a.hooks.OnDispose(reason)
		}
		a.logger.Info("Agent disposed", zap.String("reason", reason))
	})
}

// History returns a copy of the current task's step trace.
func (a *Agent) History() []HistoryEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]HistoryEntry{}, a.history...)
}

// finish records the done tool's outcome; the loop terminates after the
// current step's bookkeeping.
func (a *Agent) finish(success bool, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.doneFlag = true
	a.doneSuccess = success
	a.doneText = text
}

// askUser records a question for the operator. The loop is non-interactive,
// so the note simply flows back into history.
func (a *Agent) askUser(question string) string {
	a.logger.Info("Agent asked the user a question", zap.String("question", question))
	return fmt.Sprintf("Recorded a question for the user: %q. No answer is available in this session; proceed with your best judgement.", question)
}

// waitFor sleeps for the requested duration minus the time already elapsed
// since the last snapshot refresh, and accumulates the total.
func (a *Agent) waitFor(ctx context.Context, d time.Duration) (time.Duration, error) {
	elapsed := time.Since(a.controller.LastRefresh())
	sleep := d - elapsed
	if sleep < 0 {
		sleep = 0
	}
	if sleep > 0 {
		timer := time.NewTimer(sleep)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
	a.mu.Lock()
	a.totalWait += d
	a.mu.Unlock()
	return sleep, nil
}

// Execute runs one task to completion. It returns the outcome and the full
// step trace; an error is returned only for pre-loop failures.
func (a *Agent) Execute(ctx context.Context, task string) (TaskResult, error) {
	if a.disposed.Load() {
		return TaskResult{}, newTaskError(ErrCodeConfig, "agent is disposed")
	}
	if strings.TrimSpace(task) == "" {
		return TaskResult{}, newTaskError(ErrCodeConfig, "task must not be empty")
	}

	abortCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	a.taskID = uuid.NewString()
	a.history = nil
	a.totalWait = 0
	a.doneFlag = false
	a.doneSuccess = false
	a.doneText = ""
	a.abortCancel = cancel
	a.abortReason = ""
	taskID := a.taskID
	a.mu.Unlock()
	a.aborted.Store(false)
	if a.disposed.Load() {
		a.aborted.Store(true)
	}

	logger := a.logger.With(zap.String("task_id", taskID))
	logger.Info("Task started", zap.String("task", task))

	if a.hooks.OnBeforeTask != nil {
		a.hooks.OnBeforeTask(task)
	}

	result := a.run(abortCtx, task, logger)

	if a.hooks.OnAfterTask != nil {
		a.hooks.OnAfterTask(result)
	}
	logger.Info("Task finished",
		zap.Bool("success", result.Success),
		zap.Int("steps", len(result.History)),
	)
	return result, nil
}

func (a *Agent) run(ctx context.Context, task string, logger *zap.Logger) TaskResult {
	for step := 1; ; step++ {
		if a.hooks.OnBeforeStep != nil {
			a.hooks.OnBeforeStep(step)
		}
		if res, stop := a.checkCooperative(ctx); stop {
			return res
		}

		userPrompt, err := a.assemblePrompt(ctx, task, step)
		if err != nil {
			if res, stop := a.checkCooperative(ctx); stop {
				return res
			}
			return a.failed(fmt.Sprintf("failed to read the page state: %v", err))
		}

		// Rebuilt every step so the available-actions list tracks mid-task
		// registry mutation, matching step-time tool dispatch.
		systemPrompt := buildSystemPrompt(a.opts.WorkingLanguage, a.opts.MaxSteps, a.registry)

		resp, err := a.llm.Generate(ctx, schemas.GenerationRequest{
			SystemPrompt: systemPrompt,
			UserPrompt:   userPrompt,
			Options: schemas.GenerationOptions{
				ForceJSONFormat: true,
				Temperature:     a.opts.Temperature,
			},
		})
		if err != nil {
			if res, stop := a.checkCooperative(ctx); stop {
				return res
			}
			return a.failed(newTaskError(ErrCodeLLM, "LLM call failed: %v", err).Error())
		}

		reply, toolName, toolInput, parseErr := parseReply(resp.Content)
		if parseErr != nil {
			logger.Warn("Model output violated the output contract",
				zap.Int("step", step), zap.Error(parseErr), zap.String("raw", resp.Content))
			if res, stop := a.recordStep(step, Brain{}, ActionRecord{Name: "invalid", Output: parseErr.Error()}, resp.Usage); stop {
				return res
			}
			continue
		}

		if res, stop := a.checkCooperative(ctx); stop {
			return res
		}

		output, abortedErr := a.dispatch(ctx, toolName, toolInput, logger)
		record := ActionRecord{Name: toolName, Input: toolInput, Output: output}
		if abortedErr != nil {
			a.mu.Lock()
			a.history = append(a.history, HistoryEntry{Brain: reply.brain(), Action: record, Usage: resp.Usage})
			a.mu.Unlock()
			return a.abortedResult()
		}

		if toolName == "wait" {
			a.mu.Lock()
			warn := a.totalWait >= a.opts.WaitWarnAfter
			a.mu.Unlock()
			if warn {
				record.Output += " (you have been waiting for a while now; the page state is unlikely to change further, act on what you can see)"
			}
		} else {
			a.mu.Lock()
			a.totalWait = 0
			a.mu.Unlock()
		}

		if res, stop := a.recordStep(step, reply.brain(), record, resp.Usage); stop {
			return res
		}
	}
}

// dispatch resolves and runs one tool. The returned error is non-nil only
// when the task was aborted mid-tool; every other failure is reported in the
// output string so the model can re-plan.
func (a *Agent) dispatch(ctx context.Context, name string, input jsoniter.RawMessage, logger *zap.Logger) (string, error) {
	tool, ok := a.registry.Get(name)
	if !ok {
		return newTaskError(ErrCodeUnknownTool, "unknown tool %q; available tools: %s", name, strings.Join(a.registry.Names(), ", ")).Error(), nil
	}

	output, err := tool.Execute(ctx, a, input)
	if err != nil {
		// The per-action timeout also surfaces as a context error; only the
		// loop's own context signals an abort.
		if a.aborted.Load() || ctx.Err() != nil {
			return err.Error(), err
		}
		logger.Debug("Tool reported a failure", zap.String("tool", name), zap.Error(err))
		return err.Error(), nil
	}
	return output, nil
}

// recordStep appends one history entry and applies the two terminal checks:
// the done flag and the step budget.
func (a *Agent) recordStep(step int, brain Brain, record ActionRecord, usage schemas.Usage) (TaskResult, bool) {
	entry := HistoryEntry{Brain: brain, Action: record, Usage: usage}
	a.mu.Lock()
	a.history = append(a.history, entry)
	done, success, text := a.doneFlag, a.doneSuccess, a.doneText
	a.mu.Unlock()

	if a.hooks.OnAfterStep != nil {
		a.hooks.OnAfterStep(step, entry)
	}

	if done {
		return TaskResult{Success: success, Data: text, History: a.History()}, true
	}
	if step > a.opts.MaxSteps {
		return TaskResult{Success: false, Data: stepBudgetExceededMessage, History: a.History()}, true
	}
	return TaskResult{}, false
}

// checkCooperative handles the pause spin and the abort check shared by the
// loop's cooperative points.
func (a *Agent) checkCooperative(ctx context.Context) (TaskResult, bool) {
	for a.paused.Load() && !a.aborted.Load() && ctx.Err() == nil {
		time.Sleep(pauseCheckInterval)
	}
	if a.aborted.Load() || ctx.Err() != nil {
		return a.abortedResult(), true
	}
	return TaskResult{}, false
}

func (a *Agent) abortedResult() TaskResult {
	a.mu.Lock()
	reason := a.abortReason
	a.mu.Unlock()
	if reason == "" {
		reason = "task aborted"
	}
	return TaskResult{Success: false, Data: reason, History: a.History()}
}

func (a *Agent) failed(message string) TaskResult {
	return TaskResult{Success: false, Data: message, History: a.History()}
}

// assemblePrompt refreshes the snapshot and renders the per-step user prompt.
func (a *Agent) assemblePrompt(ctx context.Context, task string, step int) (string, error) {
	if err := a.controller.Refresh(ctx); err != nil {
		return "", err
	}
	url, title, err := a.controller.Location(ctx)
	if err != nil {
		return "", err
	}
	info, err := a.controller.PageInfo(ctx)
	if err != nil {
		return "", err
	}
	state := browserState{
		URL:        url,
		Title:      title,
		Info:       info,
		Serialized: a.controller.SerializedHTML(),
	}
	return buildUserPrompt(task, a.History(), step, a.opts.MaxSteps, time.Now(), state), nil
}

// jsonBlockRegex extracts a JSON object from a markdown code block.
var jsonBlockRegex = regexp.MustCompile(fmt.Sprintf("(?s)%s(?:json)?\\s*(.*?)\\s*%s", "```", "```"))

// parseReply extracts and validates the model's structured output, handling
// markdown code fences and stray prose around the JSON.
func parseReply(response string) (*llmReply, string, jsoniter.RawMessage, error) {
	response = strings.TrimSpace(response)

	var payload string
	if matches := jsonBlockRegex.FindStringSubmatch(response); len(matches) > 1 {
		payload = strings.TrimSpace(matches[1])
	} else if first, last := strings.Index(response, "{"), strings.LastIndex(response, "}"); first != -1 && last > first {
		payload = response[first : last+1]
	} else {
		payload = response
	}
	if payload == "" {
		return nil, "", nil, newTaskError(ErrCodeSchema, "could not find any JSON in the model response")
	}

	var reply llmReply
	if err := json.Unmarshal([]byte(payload), &reply); err != nil {
		return nil, "", nil, newTaskError(ErrCodeSchema, "failed to decode model response: %v", err)
	}
	if len(reply.Action) == 0 {
		return nil, "", nil, newTaskError(ErrCodeSchema, "model response contains no action")
	}
	if len(reply.Action) > 1 {
		names := make([]string, 0, len(reply.Action))
		for name := range reply.Action {
			names = append(names, name)
		}
		return nil, "", nil, newTaskError(ErrCodeSchema, "model response contains %d actions (%s); exactly one is required", len(reply.Action), strings.Join(names, ", "))
	}

	for name, input := range reply.Action {
		return &reply, name, input, nil
	}
	return nil, "", nil, newTaskError(ErrCodeSchema, "model response contains no action")
}
