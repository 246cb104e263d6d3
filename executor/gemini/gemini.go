// Package gemini implements executor.Executor against the ADK's Gemini
// model, the default executor per SPEC_FULL.md. Grounded on the teacher's
// agent.go (Init's gemini.NewModel/llmagent.New/runner.New wiring) and
// bua.go's Run (session-per-call, event draining) — narrowed from "run a
// full tool-using ADK agent loop" to "make one single-turn call and return
// its raw text," since the step loop (not the ADK runner) owns the
// action-grammar/backend dispatch loop here.
package gemini

import (
	"context"
	"fmt"
	"strings"

	adkagent "google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/artifact"
	"google.golang.org/adk/memory"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/anxuanzi/vera-go/executor"
)

// Config configures the Gemini executor.
type Config struct {
	APIKey string
	Model  string // default "gemini-2.5-flash"

	// Temperature controls sampling; default 0.2 (low, for deterministic
	// action selection).
	Temperature     float32
	MaxOutputTokens int32 // default 2048 — one action string, not prose
	SystemPrompt    string
}

// Executor wraps one ADK llmagent + runner pair dedicated to producing
// action-grammar strings from compact prompts.
type Executor struct {
	cfg    Config
	runner *runner.Runner
	sess   session.Service
}

const appName = "vera-executor"

// New constructs and initializes a Gemini-backed executor.Executor.
func New(ctx context.Context, cfg Config) (*Executor, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = 2048
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}

	model, err := gemini.NewModel(ctx, cfg.Model, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("gemini executor: create model: %w", err)
	}

	agent, err := llmagent.New(llmagent.Config{
		Name:        "vera_step_executor",
		Model:       model,
		Description: "Chooses exactly one action-grammar call per turn for a verification-first browser runtime.",
		Instruction: cfg.SystemPrompt,
		GenerateContentConfig: &genai.GenerateContentConfig{
			Temperature:     genai.Ptr(cfg.Temperature),
			MaxOutputTokens: cfg.MaxOutputTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini executor: create llmagent: %w", err)
	}

	sessionSvc := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:         appName,
		Agent:           agent,
		SessionService:  sessionSvc,
		MemoryService:   memory.InMemoryService(),
		ArtifactService: artifact.InMemoryService(),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini executor: create runner: %w", err)
	}

	return &Executor{cfg: cfg, runner: r, sess: sessionSvc}, nil
}

func (e *Executor) Name() string { return "gemini" }

// Call opens a fresh session per step — the compact prompt is self
// contained, so there is no benefit (and real risk of context bloat) in
// accumulating ADK session history across steps; the step loop's own
// history.go tracks cross-step memory instead.
func (e *Executor) Call(ctx context.Context, req executor.Request) (executor.Response, error) {
	userID := "vera"
	created, err := e.sess.Create(ctx, &session.CreateRequest{AppName: appName, UserID: userID})
	if err != nil {
		return executor.Response{}, fmt.Errorf("gemini executor: create session: %w", err)
	}
	sessionID := created.Session.ID()

	turn := buildTurn(req)
	message := &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: turn}},
	}

	var text string
	for event, err := range e.runner.Run(ctx, userID, sessionID, message, adkagent.RunConfig{}) {
		if err != nil {
			return executor.Response{}, fmt.Errorf("gemini executor: run: %w", err)
		}
		if event == nil || event.Content == nil || event.Partial {
			continue
		}
		for _, part := range event.Content.Parts {
			if part != nil && part.Text != "" {
				text += part.Text
			}
		}
	}

	// The ADK runner event stream does not surface per-turn usage, so usage
	// is estimated the way the teacher's TokenCounter fallback does:
	// roughly 4 characters per token. executor/gemini's callers should
	// treat this as an estimate, not an API-reported count.
	usage := executor.Usage{
		PromptTokens:     len(turn) / 4,
		CompletionTokens: len(text) / 4,
		ModelName:        e.cfg.Model,
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	return executor.Response{Action: extractActionLine(text), Usage: usage}, nil
}

var _ executor.Executor = (*Executor)(nil)

func buildTurn(req executor.Request) string {
	turn := "GOAL: " + req.Goal + "\n\nPAGE:\n" + req.Prompt
	if len(req.History) > 0 {
		turn += "\n\nRECENT ACTIONS:\n"
		for _, h := range req.History {
			turn += "- " + h + "\n"
		}
	}
	return turn
}

// extractActionLine returns the last non-blank line of the model's reply,
// trimmed of markdown code fences — models reliably wrap a bare call in
// ``` even when told not to, and any reasoning the model emits precedes
// the call rather than following it.
func extractActionLine(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.Trim(strings.TrimSpace(lines[i]), "`*")
		if line != "" {
			return line
		}
	}
	return ""
}

const defaultSystemPrompt = `You drive a browser through a verification-first runtime. Each turn you
receive a goal and a compact rendering of the current page (one line per
interactive element: "id|role|text|importance|is_primary|docYq|ord|DG|
href"). Respond with EXACTLY ONE action-grammar call and
nothing else:

CLICK(<id>)
TYPE(<id>,"<text>")
PRESS("<key>")
CLICK_XY(<x>,<y>)
CLICK_RECT(<x>,<y>,<w>,<h>)
FINISH()

Prefer CLICK/TYPE by id over the coordinate fallbacks. Call FINISH() only
when the goal is verifiably complete.`
