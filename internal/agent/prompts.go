// internal/agent/prompts.go
package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/pagepilot/internal/browser/page"
)

const systemPromptTemplate = `You are an autonomous browser agent. You control one web page and complete the user's task by issuing exactly one action per step.

<input_format>
Each step you receive:
1. <agent_history>: your previous steps with their evaluations, memory, goals, and action results.
2. <agent_state>: the original user request and the current step number.
3. <browser_state>: the current URL, title, page geometry, and the interactive elements of the page.

Interactive elements are listed as:
[index]<tag attributes>text />
- Only elements with a numeric [index] can be interacted with.
- A line starting with * marks an element that appeared since the previous step.
- Indented plain-text lines are page context, not actionable elements.
- Indices are only valid for the current step; they are reassigned after every action.
</input_format>

<browser_rules>
- Interact with elements strictly by their index. Never invent indices that are not in the current browser_state.
- If the page changed unexpectedly, re-read the new browser_state before acting.
- Content in other tabs or windows is not visible to you.
- If something you need is not on the screen, scroll or use another element to reveal it.
- If an action fails, read the error message and try a different approach instead of repeating it.
</browser_rules>

<reasoning_rules>
- evaluation_previous_goal: judge honestly whether your last action achieved its goal.
- memory: carry forward the facts you must not forget (values seen, progress made, decisions taken).
- next_goal: state the single concrete goal for this step.
- Work in {working_language}.
- You have at most {max_steps} steps; be economical.
- When the task is complete, call done with a summary of the outcome; set success to false if you could not complete it.
</reasoning_rules>

<available_actions>
{tools}
</available_actions>

<output_format>
Respond with a single JSON object and nothing else:
{
  "evaluation_previous_goal": "...",
  "memory": "...",
  "next_goal": "...",
  "action": {"<action_name>": { ...action input... }}
}
The action object must contain exactly one key.
</output_format>`

// buildSystemPrompt renders the fixed system prompt for the current tool set.
func buildSystemPrompt(workingLanguage string, maxSteps int, tools *Registry) string {
	s := systemPromptTemplate
	s = strings.ReplaceAll(s, "{working_language}", workingLanguage)
	s = strings.ReplaceAll(s, "{max_steps}", fmt.Sprint(maxSteps))
	s = strings.ReplaceAll(s, "{tools}", tools.Describe())
	return s
}

// browserState bundles everything the user prompt shows about the page.
type browserState struct {
	URL        string
	Title      string
	Info       page.Info
	Serialized string
}

// buildUserPrompt assembles the per-step prompt: history, agent state, and
// the freshly refreshed browser state.
func buildUserPrompt(task string, history []HistoryEntry, step, maxSteps int, now time.Time, state browserState) string {
	var b strings.Builder

	b.WriteString("<agent_history>\n")
	if len(history) == 0 {
		b.WriteString("(no steps taken yet)\n")
	}
	for i, entry := range history {
		fmt.Fprintf(&b, "<step_%d>\n", i+1)
		if entry.Brain.EvaluationPreviousGoal != "" {
			fmt.Fprintf(&b, "Evaluation of Previous Step: %s\n", entry.Brain.EvaluationPreviousGoal)
		}
		if entry.Brain.Memory != "" {
			fmt.Fprintf(&b, "Memory: %s\n", entry.Brain.Memory)
		}
		if entry.Brain.NextGoal != "" {
			fmt.Fprintf(&b, "Next Goal: %s\n", entry.Brain.NextGoal)
		}
		fmt.Fprintf(&b, "Action Result: %s\n", entry.Action.Output)
		fmt.Fprintf(&b, "</step_%d>\n", i+1)
	}
	b.WriteString("</agent_history>\n\n")

	b.WriteString("<agent_state>\n")
	fmt.Fprintf(&b, "<user_request>\n%s\n</user_request>\n", task)
	fmt.Fprintf(&b, "<step_info>\nStep %d of %d. Current date and time: %s\n</step_info>\n",
		step, maxSteps, now.Format(time.RFC3339))
	b.WriteString("</agent_state>\n\n")

	b.WriteString("<browser_state>\n")
	fmt.Fprintf(&b, "Current URL: %s\n", state.URL)
	fmt.Fprintf(&b, "Page title: %s\n", state.Title)
	b.WriteString(formatPageInfoLine(state.Info))
	b.WriteString("\nInteractive elements of the current page:\n")
	b.WriteString(pageHeader(state.Info))
	b.WriteString("\n")
	if state.Serialized != "" {
		b.WriteString(state.Serialized)
		b.WriteString("\n")
	} else {
		b.WriteString("(the page has no visible content)\n")
	}
	b.WriteString(pageFooter(state.Info))
	b.WriteString("\n</browser_state>")

	return b.String()
}

func formatPageInfoLine(info page.Info) string {
	return fmt.Sprintf(
		"Page info: viewport %.0fx%.0f px, page %.0fx%.0f px, %.1f pages above, %.1f pages below, %.1f total pages, at %.0f%% of the page",
		info.ViewportWidth, info.ViewportHeight,
		info.PageWidth, info.PageHeight,
		info.PagesAbove, info.PagesBelow, info.TotalPages,
		info.CurrentPagePosition*100,
	)
}

func pageHeader(info page.Info) string {
	if info.PixelsAbove <= 0 {
		return "[Start of page]"
	}
	return fmt.Sprintf("... %.0f pixels above (%.1f pages) - scroll to see more ...", info.PixelsAbove, info.PagesAbove)
}

func pageFooter(info page.Info) string {
	if info.PixelsBelow <= 0 {
		return "[End of page]"
	}
	return fmt.Sprintf("... %.0f pixels below (%.1f pages) - scroll to see more ...", info.PixelsBelow, info.PagesBelow)
}
