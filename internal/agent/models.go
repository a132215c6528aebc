// internal/agent/models.go
package agent

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Brain holds the free-text reasoning channels the model fills every step.
type Brain struct {
	EvaluationPreviousGoal string `json:"evaluation_previous_goal,omitempty"`
	Memory                 string `json:"memory,omitempty"`
	NextGoal               string `json:"next_goal,omitempty"`
}

// ActionRecord is the action half of one history entry.
type ActionRecord struct {
	Name   string              `json:"name"`
	Input  jsoniter.RawMessage `json:"input,omitempty"`
	Output string              `json:"output"`
}

// HistoryEntry records one completed step.
type HistoryEntry struct {
	Brain  Brain         `json:"brain"`
	Action ActionRecord  `json:"action"`
	Usage  schemas.Usage `json:"usage"`
}

// TaskResult is what Execute returns: the outcome plus the full step trace.
type TaskResult struct {
	Success bool           `json:"success"`
	Data    string         `json:"data"`
	History []HistoryEntry `json:"history"`
}

// llmReply mirrors the structured output contract. Action must contain
// exactly one key, the chosen tool's name.
type llmReply struct {
	EvaluationPreviousGoal string                         `json:"evaluation_previous_goal"`
	Memory                 string                         `json:"memory"`
	NextGoal               string                         `json:"next_goal"`
	Action                 map[string]jsoniter.RawMessage `json:"action"`
}

func (r *llmReply) brain() Brain {
	return Brain{
		EvaluationPreviousGoal: r.EvaluationPreviousGoal,
		Memory:                 r.Memory,
		NextGoal:               r.NextGoal,
	}
}
