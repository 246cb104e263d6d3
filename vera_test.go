package vera

import "testing"

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	a, err := New(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.config.Executor != ExecutorGemini {
		t.Errorf("Executor = %q, want %q", a.config.Executor, ExecutorGemini)
	}
	if a.config.Viewport != DesktopViewport {
		t.Error("expected DesktopViewport default")
	}
	if a.config.SnapshotLimit != TokenPresetBalanced.SnapshotLimit {
		t.Errorf("SnapshotLimit = %d, want %d", a.config.SnapshotLimit, TokenPresetBalanced.SnapshotLimit)
	}
	if a.config.ProfileDir == "" {
		t.Error("expected ProfileDir to be defaulted")
	}
	if len(a.config.TraceSinks) != 1 {
		t.Errorf("expected 1 default trace sink, got %d", len(a.config.TraceSinks))
	}
}

func TestApplyTokenPreset(t *testing.T) {
	cfg := Config{}
	cfg.ApplyTokenPreset(TokenPresetQuality)
	if cfg.SnapshotLimit != TokenPresetQuality.SnapshotLimit {
		t.Errorf("SnapshotLimit = %d, want %d", cfg.SnapshotLimit, TokenPresetQuality.SnapshotLimit)
	}
}

func TestApplyTokenPresetNilIsNoop(t *testing.T) {
	cfg := Config{SnapshotLimit: 42}
	cfg.ApplyTokenPreset(nil)
	if cfg.SnapshotLimit != 42 {
		t.Errorf("SnapshotLimit changed on nil preset: got %d", cfg.SnapshotLimit)
	}
}

func TestNewRejectsUnknownExecutorAtStart(t *testing.T) {
	a, err := New(Config{APIKey: "k", Executor: "not-a-real-provider"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := a.newExecutor(); err == nil {
		t.Error("expected error constructing an unknown executor kind")
	}
}
