package steploop

import (
	"fmt"
	"strings"

	"github.com/anxuanzi/vera-go/snapshot"
)

// DefaultPromptBuilder renders the system prompt in the teacher's
// XML-tag-structured style (agent/prompts.go's SystemPrompt) generalized
// from a tool-calling agent's instructions into the strict action-grammar
// instructions the executor port expects, and a user turn carrying the
// compact element list (snapshot.CompactForLLM) plus recent history.
func DefaultPromptBuilder(taskGoal, stepGoal string, snap *snapshot.Snapshot, history *History) (system, user string) {
	return defaultSystemPrompt, buildUserPrompt(taskGoal, stepGoal, snap, history)
}

func buildUserPrompt(taskGoal, stepGoal string, snap *snapshot.Snapshot, history *History) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<task_goal>\n%s\n</task_goal>\n\n", taskGoal)
	if stepGoal != "" {
		fmt.Fprintf(&b, "<step_goal>\n%s\n</step_goal>\n\n", stepGoal)
	}

	fmt.Fprintf(&b, "<page url=%q>\n", snap.URL)
	lines := snap.CompactForLLM(snapshot.DefaultCardinality)
	if len(lines) == 0 {
		b.WriteString("(no interactive elements found)\n")
	}
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString("</page>\n")

	if recent := history.RecentActions(10); len(recent) > 0 {
		b.WriteString("\n<recent_actions>\n")
		for _, a := range recent {
			b.WriteString("- ")
			b.WriteString(a)
			b.WriteString("\n")
		}
		b.WriteString("</recent_actions>\n")
	}

	return b.String()
}

const defaultSystemPrompt = `You are a verification-first browser agent. You are given a task goal and,
each turn, a compact rendering of the current page's interactive elements:

<page>
id|role|text|importance|is_primary|docYq|groupRank|inDominantGroup|href
</page>

<action_grammar>
Respond with EXACTLY ONE line, one of:

CLICK(<id>)
TYPE(<id>,"<text>")
PRESS("<key>")
CLICK_XY(<x>,<y>)
CLICK_RECT(<x>,<y>,<w>,<h>)
FINISH()

No prose, no markdown fencing, no trailing commentary. The runtime parses
your response as a strict grammar; anything else is a fatal parse error.
</action_grammar>

<strategy>
Prefer CLICK/TYPE against an id from <page> over the coordinate fallbacks.
Use CLICK_XY/CLICK_RECT only when no id in <page> matches what you need.
Call FINISH() only once the task goal is verifiably complete.
</strategy>`
