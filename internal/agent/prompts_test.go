package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pagepilot/internal/browser/page"
)

func TestBuildSystemPrompt_Substitutions(t *testing.T) {
	prompt := buildSystemPrompt("German", 25, DefaultTools(false))

	assert.Contains(t, prompt, "Work in German.")
	assert.Contains(t, prompt, "at most 25 steps")
	assert.Contains(t, prompt, "click_element_by_index")
	assert.NotContains(t, prompt, "{working_language}")
	assert.NotContains(t, prompt, "{max_steps}")
	assert.NotContains(t, prompt, "{tools}")
	assert.NotContains(t, prompt, "execute_javascript")
}

func TestBuildUserPrompt_Sections(t *testing.T) {
	history := []HistoryEntry{
		{
			Brain:  Brain{EvaluationPreviousGoal: "clicked ok", Memory: "cart has 2 items", NextGoal: "check out"},
			Action: ActionRecord{Name: "click_element_by_index", Output: "Clicked element [3]"},
		},
	}
	state := browserState{
		URL:   "https://shop.test/cart",
		Title: "Cart",
		Info: page.Info{
			ViewportWidth: 1280, ViewportHeight: 800,
			PageWidth: 1280, PageHeight: 2400,
			PixelsAbove: 800, PixelsBelow: 800,
			PagesAbove: 1, PagesBelow: 1, TotalPages: 3,
			CurrentPagePosition: 0.5,
		},
		Serialized: "[0]<button>Checkout />",
	}
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	prompt := buildUserPrompt("buy the cart", history, 2, 50, now, state)

	require.Contains(t, prompt, "<agent_history>")
	assert.Contains(t, prompt, "<step_1>")
	assert.Contains(t, prompt, "Evaluation of Previous Step: clicked ok")
	assert.Contains(t, prompt, "Memory: cart has 2 items")
	assert.Contains(t, prompt, "Action Result: Clicked element [3]")

	require.Contains(t, prompt, "<agent_state>")
	assert.Contains(t, prompt, "<user_request>\nbuy the cart\n</user_request>")
	assert.Contains(t, prompt, "Step 2 of 50")
	assert.Contains(t, prompt, "2026-08-24T12:00:00Z")

	require.Contains(t, prompt, "<browser_state>")
	assert.Contains(t, prompt, "Current URL: https://shop.test/cart")
	assert.Contains(t, prompt, "Page title: Cart")
	assert.Contains(t, prompt, "[0]<button>Checkout />")
	assert.Contains(t, prompt, "... 800 pixels above (1.0 pages) - scroll to see more ...")
	assert.Contains(t, prompt, "... 800 pixels below (1.0 pages) - scroll to see more ...")

	// Sections appear in the fixed order.
	hi := strings.Index(prompt, "<agent_history>")
	si := strings.Index(prompt, "<agent_state>")
	bi := strings.Index(prompt, "<browser_state>")
	assert.Less(t, hi, si)
	assert.Less(t, si, bi)
}

func TestBuildUserPrompt_EmptyHistoryAndPageEdges(t *testing.T) {
	state := browserState{
		URL:   "https://example.test/",
		Title: "Example",
		Info:  page.Info{ViewportWidth: 1280, ViewportHeight: 800, PageWidth: 1280, PageHeight: 800, TotalPages: 1},
	}

	prompt := buildUserPrompt("look around", nil, 1, 50, time.Now(), state)

	assert.Contains(t, prompt, "(no steps taken yet)")
	assert.Contains(t, prompt, "[Start of page]")
	assert.Contains(t, prompt, "[End of page]")
	assert.Contains(t, prompt, "(the page has no visible content)")
}
