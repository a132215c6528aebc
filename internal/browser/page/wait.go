// internal/browser/page/wait.go
package page

import (
	"context"
	"fmt"
	"time"
)

const pollInterval = 100 * time.Millisecond

// WaitUntil polls the predicate every 100 ms until it returns true, the
// deadline passes, or the context is cancelled.
func WaitUntil(ctx context.Context, timeout time.Duration, predicate func(context.Context) (bool, error)) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := predicate(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("condition not met within %v", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitForReadyState waits until document.readyState reaches "complete".
func WaitForReadyState(ctx context.Context, exec Executor, timeout time.Duration) error {
	return WaitUntil(ctx, timeout, func(ctx context.Context) (bool, error) {
		raw, err := exec.Evaluate(ctx, `document.readyState`)
		if err != nil {
			return false, err
		}
		return string(raw) == `"complete"`, nil
	})
}
