package obslog

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestInfoIncludesRunAndStepID(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf, Format: "json"})

	ctx := WithStep(WithRun(context.Background(), "run-1"), "step-1")
	l.Info(ctx, "step started")

	out := buf.String()
	if !strings.Contains(out, `"run_id":"run-1"`) {
		t.Errorf("expected run_id in output, got %s", out)
	}
	if !strings.Contains(out, `"step_id":"step-1"`) {
		t.Errorf("expected step_id in output, got %s", out)
	}
}

func TestRedactsAPIKeyInMessage(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf, Format: "json"})

	l.Info(context.Background(), "calling provider", "error", "api_key=sk-ant-"+strings.Repeat("a", 100))
	if strings.Contains(buf.String(), "sk-ant-"+strings.Repeat("a", 100)) {
		t.Error("expected Anthropic API key to be redacted")
	}
	if !strings.Contains(buf.String(), "[REDACTED]") {
		t.Error("expected redaction marker in output")
	}
}

func TestWithFieldsPersistsAcrossCalls(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf, Format: "json"}).WithFields("component", "steploop")

	l.Info(context.Background(), "hello")
	if !strings.Contains(buf.String(), `"component":"steploop"`) {
		t.Errorf("expected component field in output, got %s", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf, Format: "json", Level: "warn"})

	l.Debug(context.Background(), "should not appear")
	l.Info(context.Background(), "should not appear either")
	if buf.Len() != 0 {
		t.Errorf("expected no output below warn level, got %s", buf.String())
	}

	l.Warn(context.Background(), "should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Error("expected warn-level message to be logged")
	}
}
