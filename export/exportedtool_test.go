package export

import (
	"testing"

	"github.com/anxuanzi/vera-go"
)

func testAgentConfig() vera.Config {
	return vera.Config{APIKey: "test-key", Executor: vera.ExecutorGemini}
}

func TestNewAgentTool(t *testing.T) {
	at := NewAgentTool(testAgentConfig())
	if at == nil {
		t.Fatal("NewAgentTool() returned nil")
	}
	if at.config.APIKey != "test-key" {
		t.Errorf("config.APIKey = %q, want test-key", at.config.APIKey)
	}
}

func TestAgentToolCloseWithoutAgent(t *testing.T) {
	at := NewAgentTool(testAgentConfig())
	if err := at.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestAgentToolInputOutputFields(t *testing.T) {
	input := AgentToolInput{
		Goal:        "find the pricing page",
		StartURL:    "https://example.com",
		MaxSteps:    10,
		KeepBrowser: true,
	}
	if input.Goal != "find the pricing page" {
		t.Errorf("Goal = %q", input.Goal)
	}
	if !input.KeepBrowser {
		t.Error("KeepBrowser should be true")
	}

	output := AgentToolOutput{Success: true, Message: "goal reached", StepCount: 3, FinalURL: "https://example.com/pricing"}
	if !output.Success {
		t.Error("Success should be true")
	}
	if output.StepCount != 3 {
		t.Errorf("StepCount = %d, want 3", output.StepCount)
	}
}

func TestNewMultiAgentTool(t *testing.T) {
	t.Run("defaults MaxConcurrentAgents", func(t *testing.T) {
		mt := NewMultiAgentTool(testAgentConfig(), 0)
		if mt.maxAgents != 3 {
			t.Errorf("maxAgents = %d, want 3", mt.maxAgents)
		}
		if mt.instances == nil {
			t.Error("instances map should be initialized")
		}
	})

	t.Run("custom max", func(t *testing.T) {
		mt := NewMultiAgentTool(testAgentConfig(), 5)
		if mt.maxAgents != 5 {
			t.Errorf("maxAgents = %d, want 5", mt.maxAgents)
		}
	})
}

func TestMultiAgentToolListEmpty(t *testing.T) {
	mt := NewMultiAgentTool(testAgentConfig(), 0)

	out, err := mt.list()
	if err != nil {
		t.Fatalf("list() error = %v", err)
	}
	if !out.Success {
		t.Error("Success should be true")
	}
	if len(out.Agents) != 0 {
		t.Errorf("Agents length = %d, want 0", len(out.Agents))
	}
}

func TestMultiAgentToolRunNotFound(t *testing.T) {
	mt := NewMultiAgentTool(testAgentConfig(), 0)

	out, err := mt.execute(MultiAgentInput{Action: "run", AgentID: "nonexistent", Goal: "anything"})
	if err != nil {
		t.Fatalf("execute() error = %v", err)
	}
	if out.Success {
		t.Error("Success should be false for nonexistent agent")
	}
	if out.Error == "" {
		t.Error("Error should not be empty")
	}
}

func TestMultiAgentToolCloseNotFound(t *testing.T) {
	mt := NewMultiAgentTool(testAgentConfig(), 0)

	out, err := mt.closeOne(MultiAgentInput{Action: "close", AgentID: "nonexistent"})
	if err != nil {
		t.Fatalf("closeOne() error = %v", err)
	}
	if out.Success {
		t.Error("Success should be false for nonexistent agent")
	}
}

func TestMultiAgentToolUnknownAction(t *testing.T) {
	mt := NewMultiAgentTool(testAgentConfig(), 0)

	out, err := mt.execute(MultiAgentInput{Action: "frobnicate"})
	if err != nil {
		t.Fatalf("execute() error = %v", err)
	}
	if out.Success {
		t.Error("Success should be false for an unknown action")
	}
}

func TestMultiAgentToolCloseReleasesAll(t *testing.T) {
	mt := NewMultiAgentTool(testAgentConfig(), 0)
	if err := mt.Close(); err != nil {
		t.Errorf("Close() on empty tool should not error, got %v", err)
	}
}
