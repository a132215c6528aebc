// internal/agent/errors.go
package agent

import "fmt"

// ErrorCode is a string type used for structured error reporting from the
// task loop. Using a custom type ensures only predefined constants can be
// used where an ErrorCode is expected.
type ErrorCode string

const (
	// ErrCodeConfig covers missing page or LLM credentials, reported before
	// the loop starts.
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"
	// ErrCodeAbort is an abort observed at a cooperative point.
	ErrCodeAbort ErrorCode = "ABORT_ERROR"
	// ErrCodeLLM is a model failure after the client's own retries.
	ErrCodeLLM ErrorCode = "LLM_ERROR"
	// ErrCodeSchema is model output violating the structured output contract.
	ErrCodeSchema ErrorCode = "SCHEMA_ERROR"
	// ErrCodeUnknownTool is an action naming a tool that is not registered.
	ErrCodeUnknownTool ErrorCode = "UNKNOWN_TOOL"
	// ErrCodeFatal is an unhandled failure terminating the task.
	ErrCodeFatal ErrorCode = "FATAL_ERROR"
)

// TaskError carries an ErrorCode alongside the message so callers can branch
// on the failure class.
type TaskError struct {
	Code ErrorCode
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

func newTaskError(code ErrorCode, format string, args ...any) *TaskError {
	return &TaskError{Code: code, Err: fmt.Errorf(format, args...)}
}
