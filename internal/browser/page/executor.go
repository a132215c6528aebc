// internal/browser/page/executor.go
package page

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// Executor abstracts script evaluation against the live page. The controller
// drives every interaction through it, which keeps the controller testable
// without a browser.
type Executor interface {
	// Evaluate runs a JavaScript expression in the page context, awaiting
	// promises, and returns the raw JSON result.
	Evaluate(ctx context.Context, script string) (json.RawMessage, error)
}

// cdpExecutor implements Executor on a chromedp browser context.
type cdpExecutor struct {
	ctx context.Context
}

var _ Executor = (*cdpExecutor)(nil)

// NewCDPExecutor wraps a chromedp context. The context must belong to an
// allocated browser tab.
func NewCDPExecutor(ctx context.Context) Executor {
	return &cdpExecutor{ctx: ctx}
}

func (e *cdpExecutor) Evaluate(ctx context.Context, script string) (json.RawMessage, error) {
	// chromedp actions must run on a context derived from the tab's own, so
	// the caller's deadline is re-applied onto it.
	runCtx := e.ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(e.ctx, deadline)
		defer cancel()
	}

	var res json.RawMessage
	err := chromedp.Run(runCtx,
		chromedp.Evaluate(script, &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("evaluation cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("script evaluation failed: %w", err)
	}
	return res, nil
}

// jsonEncode safely embeds a Go value into a JavaScript source string.
func jsonEncode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
