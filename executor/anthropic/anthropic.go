// Package anthropic implements executor.Executor against Claude, the
// second executor port SPEC_FULL.md wires in to prove spec.md §9's "each
// [LLM provider] is a value with two operations" design note. Grounded on
// haasonsaas-nexus's internal/agent/providers/anthropic.go (client
// construction, message conversion, retry-on-transient-error), narrowed
// from a full streaming multi-turn provider into one blocking call per
// step — the step loop needs exactly one action string, not a token
// stream.
package anthropic

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/anxuanzi/vera-go/executor"
)

// Config configures the Anthropic executor.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string // default "claude-sonnet-4-20250514"
	MaxTokens    int    // default 1024
	MaxRetries   int    // default 3
	RetryDelay   time.Duration
	SystemPrompt string
}

// Executor wraps an Anthropic client dedicated to producing action-grammar
// strings from compact prompts.
type Executor struct {
	client anthropic.Client
	cfg    Config
}

// New constructs an Anthropic-backed executor.Executor.
func New(cfg Config) (*Executor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic executor: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Executor{client: anthropic.NewClient(opts...), cfg: cfg}, nil
}

func (e *Executor) Name() string { return "anthropic" }

// Call sends one blocking (non-streaming) message request and returns the
// concatenated text content as the candidate action string.
func (e *Executor) Call(ctx context.Context, req executor.Request) (executor.Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.cfg.Model),
		MaxTokens: int64(e.cfg.MaxTokens),
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: e.cfg.SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildTurn(req))),
		},
	}

	var message *anthropic.Message
	var err error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		message, err = e.client.Messages.New(ctx, params)
		if err == nil {
			break
		}
		if !isRetryable(err) {
			return executor.Response{}, fmt.Errorf("anthropic executor: %w", err)
		}
		if attempt == e.cfg.MaxRetries {
			break
		}
		backoff := e.cfg.RetryDelay * time.Duration(math.Pow(2, float64(attempt)))
		select {
		case <-ctx.Done():
			return executor.Response{}, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if err != nil {
		return executor.Response{}, fmt.Errorf("anthropic executor: max retries exceeded: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if tb := block.AsText(); tb.Text != "" {
			text.WriteString(tb.Text)
		}
	}

	usage := executor.Usage{
		PromptTokens:     int(message.Usage.InputTokens),
		CompletionTokens: int(message.Usage.OutputTokens),
		ModelName:        e.cfg.Model,
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	return executor.Response{Action: extractActionLine(text.String()), Usage: usage}, nil
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

// isRetryable classifies transient failures (rate limits, 5xx, timeouts,
// connection errors) the way haasonsaas-nexus's AnthropicProvider does.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	substrings := []string{
		"rate_limit", "429", "too many requests",
		"500", "502", "503", "504",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout",
		"timeout", "deadline exceeded",
		"connection reset", "connection refused", "no such host",
	}
	for _, s := range substrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
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
