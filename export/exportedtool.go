// Package export wraps a vera.Agent as a tool another ADK-based agent can
// call, so a vera-driven browser session can sit behind a larger agent's
// toolset instead of only running standalone. The step loop itself lives
// inside vera.Agent, so this package only has to translate ADK's
// function-call shape into Agent calls and back.
package export

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"github.com/anxuanzi/vera-go"
)

// AgentTool wraps a vera.Agent for use as an ADK tool inside a larger
// agent.
type AgentTool struct {
	config *vera.Config

	mu    sync.Mutex
	agent *vera.Agent
}

// NewAgentTool creates a tool that lazily constructs one vera.Agent per
// call, closing it afterward unless the caller asks to keep the browser
// open for follow-up calls.
func NewAgentTool(cfg vera.Config) *AgentTool {
	return &AgentTool{config: &cfg}
}

// AgentToolInput is the input for the agent automation tool.
type AgentToolInput struct {
	Goal        string `json:"goal" jsonschema:"The browser automation goal to perform (e.g. 'find the contact email on this page')"`
	StartURL    string `json:"start_url,omitempty" jsonschema:"Optional: URL to navigate to before starting"`
	MaxSteps    int    `json:"max_steps,omitempty" jsonschema:"Optional: maximum number of steps to take (default 30)"`
	KeepBrowser bool   `json:"keep_browser,omitempty" jsonschema:"Optional: keep the browser open after the goal completes, for follow-up calls"`
}

// AgentToolOutput is the output from the agent automation tool.
type AgentToolOutput struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	StepCount int    `json:"step_count"`
	FinalURL  string `json:"final_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Tool returns the ADK tool that can be added to another agent's toolset.
func (at *AgentTool) Tool() (tool.Tool, error) {
	handler := func(ctx tool.Context, input AgentToolInput) (AgentToolOutput, error) {
		return at.execute(input)
	}

	return functiontool.New(
		functiontool.Config{
			Name:        "verified_browser_agent",
			Description: "Drive a browser toward a goal with snapshot-gated, verified actions: navigate, click, type, and extract data, re-checking the page after every action instead of assuming it worked. Useful for form submission, navigation chains, and any task where a naive click-and-hope automation would silently proceed past a failed step.",
		},
		handler,
	)
}

func (at *AgentTool) execute(input AgentToolInput) (AgentToolOutput, error) {
	at.mu.Lock()
	defer at.mu.Unlock()

	ctx := context.Background()

	if at.agent == nil || !input.KeepBrowser {
		if at.agent != nil {
			at.agent.Close()
			at.agent = nil
		}

		agent, err := vera.New(*at.config)
		if err != nil {
			return AgentToolOutput{Success: false, Error: fmt.Sprintf("construct agent: %v", err)}, nil
		}
		if err := agent.Start(ctx); err != nil {
			return AgentToolOutput{Success: false, Error: fmt.Sprintf("start agent: %v", err)}, nil
		}
		at.agent = agent
	}

	if input.StartURL != "" {
		if err := at.agent.Navigate(ctx, input.StartURL); err != nil {
			return AgentToolOutput{Success: false, Error: fmt.Sprintf("navigate: %v", err)}, nil
		}
	}

	result, err := at.agent.Run(ctx, input.Goal, vera.RunOptions{MaxSteps: input.MaxSteps})
	if err != nil {
		return AgentToolOutput{Success: false, Error: fmt.Sprintf("run: %v", err)}, nil
	}

	out := AgentToolOutput{
		Success:   result.Success,
		Message:   "goal reached",
		StepCount: len(result.Outcomes),
	}
	if !result.Success {
		out.Message = "goal not reached"
		out.Error = result.Error
	}
	if url, err := at.agent.CurrentURL(ctx); err == nil {
		out.FinalURL = url
	}

	if !input.KeepBrowser {
		at.agent.Close()
		at.agent = nil
	}

	return out, nil
}

// Close releases the wrapped agent's browser, if one is open.
func (at *AgentTool) Close() error {
	at.mu.Lock()
	defer at.mu.Unlock()

	if at.agent != nil {
		err := at.agent.Close()
		at.agent = nil
		return err
	}
	return nil
}

// MultiAgentTool manages several named vera.Agent instances so one ADK
// agent can run multiple concurrent goal-directed browsing sessions,
// keyed by an id the caller chooses (e.g. a run id or a profile name).
type MultiAgentTool struct {
	config    *vera.Config
	maxAgents int

	mu        sync.Mutex
	instances map[string]*vera.Agent
}

// NewMultiAgentTool creates a tool that manages up to maxAgents concurrent
// vera.Agent instances. maxAgents <= 0 defaults to 3.
func NewMultiAgentTool(cfg vera.Config, maxAgents int) *MultiAgentTool {
	if maxAgents <= 0 {
		maxAgents = 3
	}
	return &MultiAgentTool{
		config:    &cfg,
		maxAgents: maxAgents,
		instances: make(map[string]*vera.Agent),
	}
}

// MultiAgentInput is the input for multi-agent tool operations.
type MultiAgentInput struct {
	Action   string `json:"action" jsonschema:"Action to perform: 'create', 'run', 'close', or 'list'"`
	AgentID  string `json:"agent_id,omitempty" jsonschema:"Agent instance id (returned from 'create', or chosen by the caller)"`
	Goal     string `json:"goal,omitempty" jsonschema:"Goal to run (for the 'run' action)"`
	StartURL string `json:"start_url,omitempty" jsonschema:"URL to navigate to (for the 'create' action)"`
}

// MultiAgentOutput is the output from multi-agent tool operations.
type MultiAgentOutput struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	AgentID string   `json:"agent_id,omitempty"`
	Agents  []string `json:"agents,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Tool returns the ADK tool for multi-agent operations.
func (mt *MultiAgentTool) Tool() (tool.Tool, error) {
	handler := func(ctx tool.Context, input MultiAgentInput) (MultiAgentOutput, error) {
		return mt.execute(input)
	}

	return functiontool.New(
		functiontool.Config{
			Name:        "multi_browser_agent",
			Description: "Manage several concurrent verified-browser-agent sessions. Use 'create' to launch a new session, 'run' to drive it toward a goal, 'close' to release it, or 'list' to see active sessions.",
		},
		handler,
	)
}

func (mt *MultiAgentTool) execute(input MultiAgentInput) (MultiAgentOutput, error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	ctx := context.Background()

	switch input.Action {
	case "create":
		return mt.create(ctx, input)
	case "run":
		return mt.run(ctx, input)
	case "close":
		return mt.closeOne(input)
	case "list":
		return mt.list()
	default:
		return MultiAgentOutput{Success: false, Error: fmt.Sprintf("unknown action: %s", input.Action)}, nil
	}
}

func (mt *MultiAgentTool) create(ctx context.Context, input MultiAgentInput) (MultiAgentOutput, error) {
	if len(mt.instances) >= mt.maxAgents {
		return MultiAgentOutput{Success: false, Error: fmt.Sprintf("maximum concurrent agents reached (%d)", mt.maxAgents)}, nil
	}

	id := input.AgentID
	if id == "" {
		id = fmt.Sprintf("agent_%d", len(mt.instances)+1)
	}
	if _, exists := mt.instances[id]; exists {
		return MultiAgentOutput{Success: false, Error: fmt.Sprintf("agent id already in use: %s", id)}, nil
	}

	cfg := *mt.config
	cfg.ProfileName = id
	agent, err := vera.New(cfg)
	if err != nil {
		return MultiAgentOutput{Success: false, Error: fmt.Sprintf("construct agent: %v", err)}, nil
	}
	if err := agent.Start(ctx); err != nil {
		return MultiAgentOutput{Success: false, Error: fmt.Sprintf("start agent: %v", err)}, nil
	}
	if input.StartURL != "" {
		if err := agent.Navigate(ctx, input.StartURL); err != nil {
			agent.Close()
			return MultiAgentOutput{Success: false, Error: fmt.Sprintf("navigate: %v", err)}, nil
		}
	}

	mt.instances[id] = agent
	return MultiAgentOutput{Success: true, Message: "agent created", AgentID: id}, nil
}

func (mt *MultiAgentTool) run(ctx context.Context, input MultiAgentInput) (MultiAgentOutput, error) {
	agent, ok := mt.instances[input.AgentID]
	if !ok {
		return MultiAgentOutput{Success: false, Error: fmt.Sprintf("agent not found: %s", input.AgentID)}, nil
	}

	result, err := agent.Run(ctx, input.Goal, vera.RunOptions{})
	if err != nil {
		return MultiAgentOutput{Success: false, AgentID: input.AgentID, Error: fmt.Sprintf("run: %v", err)}, nil
	}

	msg := "goal reached"
	if !result.Success {
		msg = "goal not reached"
	}
	return MultiAgentOutput{Success: result.Success, Message: msg, AgentID: input.AgentID}, nil
}

func (mt *MultiAgentTool) closeOne(input MultiAgentInput) (MultiAgentOutput, error) {
	agent, ok := mt.instances[input.AgentID]
	if !ok {
		return MultiAgentOutput{Success: false, Error: fmt.Sprintf("agent not found: %s", input.AgentID)}, nil
	}
	agent.Close()
	delete(mt.instances, input.AgentID)
	return MultiAgentOutput{Success: true, Message: "agent closed", AgentID: input.AgentID}, nil
}

func (mt *MultiAgentTool) list() (MultiAgentOutput, error) {
	ids := make([]string, 0, len(mt.instances))
	for id := range mt.instances {
		ids = append(ids, id)
	}
	return MultiAgentOutput{Success: true, Message: fmt.Sprintf("%d active agents", len(ids)), Agents: ids}, nil
}

// Close releases every managed agent.
func (mt *MultiAgentTool) Close() error {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	var firstErr error
	for id, agent := range mt.instances {
		if err := agent.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(mt.instances, id)
	}
	return firstErr
}
