// Package console narrates a run to stdout as it happens: one box-drawn
// block per step, a line per verification, a closing summary banner.
// Grounded on agent/logger.go's Logger — same box-drawing borders, same
// emoji-prefixed line vocabulary — but retargeted from the teacher's own
// Click/Type/Scroll/Navigate method set onto a trace.Sink that narrates
// runtime/steploop's step_start/action/verification/step_end/error events
// instead. Where the teacher kept a *TokenCounter with a fixed budget, this
// sink has no budget notion of its own: Done prints the token total its
// caller passes in, and omits the figure when that total is zero.
package console

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anxuanzi/vera-go/trace"
)

// Sink narrates trace.Events to an io stream (stdout by default) in the
// teacher's console style. It implements trace.Sink, so it can be wired
// into vera.Config.TraceSinks alongside any other sink (e.g. a JSONL file
// writer) without either implementation knowing about the other.
type Sink struct {
	mu        sync.Mutex
	enabled   bool
	write     func(string)
	stepStart time.Time
	taskStart time.Time
	steps     int
}

// New constructs a Sink. When enabled is false, every Emit is a no-op —
// mirroring the teacher's Logger.enabled short-circuit used to silence the
// narrator during tests or headless batch runs.
func New(enabled bool) *Sink {
	return &Sink{enabled: enabled, write: defaultWrite, taskStart: time.Time{}}
}

func defaultWrite(s string) {
	fmt.Print(s)
}

// Emit renders one trace.Event as console output. Unrecognized event types
// are silently ignored — this sink only narrates the vocabulary it knows.
func (s *Sink) Emit(evt trace.Event) error {
	if !s.enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch evt.Type {
	case trace.TypeStepStart:
		s.onStepStart(evt)
	case trace.TypeAction:
		s.onAction(evt)
	case trace.TypeVerification:
		s.onVerification(evt)
	case trace.TypeStepEnd:
		s.onStepEnd(evt)
	case trace.TypeError:
		s.onError(evt)
	}
	return nil
}

// Close satisfies trace.Sink. The console has nothing to flush.
func (s *Sink) Close() error {
	return nil
}

func (s *Sink) onStepStart(evt trace.Event) {
	if s.taskStart.IsZero() {
		s.taskStart = time.Now()
	}
	s.stepStart = time.Now()
	s.steps++

	goal, _ := evt.Data["goal"].(string)
	s.write("\n")
	s.write(border())
	s.write(fmt.Sprintf("│ 🎯 STEP %d │ %s\n", s.steps, timestamp()))
	s.write(divider())
	if goal != "" {
		s.write(fmt.Sprintf("│ 💭 Goal: %s\n", truncate(goal, 55)))
	}
	s.write(border())
}

func (s *Sink) onAction(evt trace.Event) {
	action, _ := evt.Data["action"].(string)
	if errStr, ok := evt.Data["error"].(string); ok && errStr != "" {
		s.write(fmt.Sprintf("   🔧 %s\n", truncate(action, 55)))
		s.write(fmt.Sprintf("   ❌ %s\n", truncate(errStr, 55)))
		return
	}
	s.write(fmt.Sprintf("   🔧 %s\n", truncate(action, 55)))
}

func (s *Sink) onVerification(evt trace.Event) {
	label, _ := evt.Data["label"].(string)
	passed, _ := evt.Data["passed"].(bool)
	required, _ := evt.Data["required"].(bool)
	reason, _ := evt.Data["reason"].(string)

	mark := "✅"
	if !passed {
		mark = "❌"
	}
	req := ""
	if required {
		req = " (required)"
	}
	s.write(fmt.Sprintf("   %s %s%s\n", mark, label, req))
	if !passed && reason != "" {
		s.write(fmt.Sprintf("      ↳ %s\n", truncate(reason, 60)))
	}
}

func (s *Sink) onStepEnd(evt trace.Event) {
	duration := time.Since(s.stepStart)
	ok, _ := evt.Data["ok"].(bool)
	mark := "✅"
	if !ok {
		mark = "❌"
	}
	s.write(fmt.Sprintf("   %s step done (%s)\n", mark, formatDuration(duration)))
}

func (s *Sink) onError(evt trace.Event) {
	msg, _ := evt.Data["error"].(string)
	s.write(fmt.Sprintf("   ⚠️  %s\n", truncate(msg, 60)))
}

// Done prints the closing summary banner. Called directly by the caller
// once a run finishes, since "the run is over" is not itself a trace event.
func (s *Sink) Done(success bool, summary string, totalTokens int) {
	if !s.enabled {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.write("\n")
	s.write(doubleBorder())
	if success {
		s.write(fmt.Sprintf("║ ✅ RUN COMPLETE │ %s\n", timestamp()))
	} else {
		s.write(fmt.Sprintf("║ ❌ RUN FAILED │ %s\n", timestamp()))
	}
	s.write(doubleDivider())
	if summary != "" {
		s.write(fmt.Sprintf("║ 📝 %s\n", truncate(summary, 60)))
	}
	s.write(doubleDivider())
	stats := fmt.Sprintf("║ 📊 Stats: %d steps", s.steps)
	if !s.taskStart.IsZero() {
		stats += fmt.Sprintf(" │ ⏱️  %s", formatDuration(time.Since(s.taskStart)))
	}
	if totalTokens > 0 {
		stats += fmt.Sprintf(" │ 🎫 %s tokens", formatTokens(totalTokens))
	}
	s.write(stats + "\n")
	s.write(doubleBorder())
}

func border() string        { return strings.Repeat("─", 69) + "\n" }
func divider() string        { return "│" + strings.Repeat("─", 68) + "\n" }
func doubleBorder() string   { return strings.Repeat("═", 69) + "\n" }
func doubleDivider() string  { return "╠" + strings.Repeat("═", 68) + "\n" }

func timestamp() string {
	return time.Now().Format("15:04:05")
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatTokens(n int) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
