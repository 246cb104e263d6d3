package runtime

import (
	"context"
	"testing"

	"github.com/anxuanzi/vera-go/backend"
	"github.com/anxuanzi/vera-go/snapshot"
	"github.com/anxuanzi/vera-go/trace"
	"github.com/anxuanzi/vera-go/verify"
)

// fakeBackend implements backend.Backend with just enough behavior for
// scroll/eval tests: it tracks a single scrollY value that Wheel moves.
type fakeBackend struct {
	scrollY      float64
	wheelWorks   bool
	url          string
	evalOverride func(expr string) (any, error)
}

func (f *fakeBackend) RefreshPageInfo(ctx context.Context) (backend.ViewportInfo, error) {
	return backend.ViewportInfo{}, nil
}

func (f *fakeBackend) Eval(ctx context.Context, expression string) (any, error) {
	if f.evalOverride != nil {
		return f.evalOverride(expression)
	}
	return f.scrollY, nil
}

func (f *fakeBackend) Call(ctx context.Context, fn string, args ...any) (any, error) { return nil, nil }
func (f *fakeBackend) GetLayoutMetrics(ctx context.Context) (backend.LayoutMetrics, error) {
	return backend.LayoutMetrics{}, nil
}
func (f *fakeBackend) ScreenshotPNG(ctx context.Context) ([]byte, error) { return nil, nil }
func (f *fakeBackend) MouseMove(ctx context.Context, x, y float64) error { return nil }
func (f *fakeBackend) MouseClick(ctx context.Context, x, y float64, button backend.MouseButton, clickCount int) error {
	return nil
}

func (f *fakeBackend) Wheel(ctx context.Context, deltaY float64, x, y *float64) error {
	if f.wheelWorks {
		f.scrollY += deltaY
	}
	return nil
}
func (f *fakeBackend) TypeText(ctx context.Context, text string) error { return nil }
func (f *fakeBackend) KeyPress(ctx context.Context, key string) error  { return nil }
func (f *fakeBackend) WaitReadyState(ctx context.Context, state backend.ReadyState, timeoutMs int) error {
	return nil
}
func (f *fakeBackend) GetURL(ctx context.Context) (string, error) { return f.url, nil }
func (f *fakeBackend) Navigate(ctx context.Context, url string) error { f.url = url; return nil }
func (f *fakeBackend) Close() error                                   { return nil }

var _ backend.Backend = (*fakeBackend)(nil)

// fakeAcquirer returns a fixed snapshot sequence, one per call.
type fakeAcquirer struct {
	snaps []*snapshot.Snapshot
	calls int
}

func (f *fakeAcquirer) Acquire(ctx context.Context, opts snapshot.Options) (*snapshot.Snapshot, error) {
	i := f.calls
	if i >= len(f.snaps) {
		i = len(f.snaps) - 1
	}
	f.calls++
	return f.snaps[i], nil
}

func newTestRuntime(be backend.Backend, snaps ...*snapshot.Snapshot) *Runtime {
	tracer := trace.NewEmitter("test-run", trace.NoopSink{})
	return New(be, &fakeAcquirer{snaps: snaps}, tracer, Config{AutoStep: true})
}

func TestBeginStepEmitsStepStartAndAssignsID(t *testing.T) {
	r := newTestRuntime(&fakeBackend{})
	id, err := r.BeginStep(context.Background(), "goal", 0)
	if err != nil {
		t.Fatalf("BeginStep() error = %v", err)
	}
	if id == "" {
		t.Error("expected non-empty step id")
	}
	if r.StepID() != id {
		t.Errorf("StepID() = %q, want %q", r.StepID(), id)
	}
}

func TestBeginStepConcurrentWithoutAutoStepErrors(t *testing.T) {
	tracer := trace.NewEmitter("test-run", trace.NoopSink{})
	r := New(&fakeBackend{}, &fakeAcquirer{snaps: []*snapshot.Snapshot{{}}}, tracer, Config{AutoStep: false})

	if _, err := r.BeginStep(context.Background(), "goal", 0); err != nil {
		t.Fatalf("first BeginStep() error = %v", err)
	}
	if _, err := r.BeginStep(context.Background(), "goal2", 1); err == nil {
		t.Error("expected concurrent beginStep to error")
	}
}

func TestEmitStepEndIsIdempotent(t *testing.T) {
	r := newTestRuntime(&fakeBackend{})
	if _, err := r.BeginStep(context.Background(), "goal", 0); err != nil {
		t.Fatalf("BeginStep() error = %v", err)
	}
	if err := r.EmitStepEnd(context.Background(), nil); err != nil {
		t.Fatalf("first EmitStepEnd() error = %v", err)
	}
	if err := r.EmitStepEnd(context.Background(), nil); err != nil {
		t.Fatalf("second EmitStepEnd() should be a no-op, got error = %v", err)
	}
	if r.StepID() != "" {
		t.Error("step id should be cleared after EmitStepEnd")
	}
}

func TestAssertRequiredFailureMarksStepNotOK(t *testing.T) {
	snap := &snapshot.Snapshot{URL: "https://example.com"}
	r := newTestRuntime(&fakeBackend{}, snap)

	if _, err := r.Snapshot(context.Background(), snapshot.DefaultOptions(), true); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	always := func(ctx verify.Context) verify.Outcome {
		return verify.Outcome{Passed: false, Reason: "nope"}
	}
	result, err := r.Assert(context.Background(), always, "always-fails", true)
	if err != nil {
		t.Fatalf("Assert() error = %v", err)
	}
	if result.Passed {
		t.Error("expected failing verification")
	}
	if r.stepResult.OK {
		t.Error("required failure should mark step not OK")
	}
}

func TestAssertDoneMarksTerminal(t *testing.T) {
	snap := &snapshot.Snapshot{URL: "https://example.com"}
	r := newTestRuntime(&fakeBackend{}, snap)
	if _, err := r.Snapshot(context.Background(), snapshot.DefaultOptions(), true); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	always := func(ctx verify.Context) verify.Outcome { return verify.Outcome{Passed: true, Reason: "done"} }
	if _, err := r.AssertDone(context.Background(), always, "finish"); err != nil {
		t.Fatalf("AssertDone() error = %v", err)
	}
	if !r.TerminalReached() {
		t.Error("expected TerminalReached() to be true")
	}
}

func TestScrollByVerifiesProgress(t *testing.T) {
	be := &fakeBackend{wheelWorks: true}
	r := newTestRuntime(be)

	ok, err := r.ScrollBy(context.Background(), 200, ScrollOptions{Verify: true, MinDeltaPx: 50, TimeoutMs: 1000, PollMs: 10})
	if err != nil {
		t.Fatalf("ScrollBy() error = %v", err)
	}
	if !ok {
		t.Error("expected scroll to be verified as successful")
	}
}

func TestScrollByDetectsDroppedWheelEvents(t *testing.T) {
	be := &fakeBackend{wheelWorks: false}
	r := newTestRuntime(be)

	ok, err := r.ScrollBy(context.Background(), 200, ScrollOptions{Verify: true, MinDeltaPx: 50, TimeoutMs: 200, PollMs: 10})
	if err != nil {
		t.Fatalf("ScrollBy() error = %v", err)
	}
	if ok {
		t.Error("expected scroll verification to fail when wheel events are dropped")
	}
	if len(r.stepResult.Verifications) != 1 {
		t.Fatalf("expected 1 verification recorded, got %d", len(r.stepResult.Verifications))
	}
	v := r.stepResult.Verifications[0]
	if v.Kind != trace.KindScroll || v.Passed {
		t.Errorf("expected failing scroll verification, got %+v", v)
	}
}

func TestTokenAccountingAggregatesByRoleAndModel(t *testing.T) {
	ta := NewTokenAccounting()
	ta.Record("executor", TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, ModelName: "gemini-2.5-flash"})
	ta.Record("executor", TokenUsage{PromptTokens: 20, CompletionTokens: 5, TotalTokens: 25, ModelName: "gemini-2.5-flash"})
	ta.Record("vision_executor", TokenUsage{PromptTokens: 100, TotalTokens: 100, ModelName: "claude-3"})

	byRole := ta.ByRole()
	if byRole["executor"].TotalTokens != 40 {
		t.Errorf("executor total = %d, want 40", byRole["executor"].TotalTokens)
	}
	byModel := ta.ByModel()
	if byModel["gemini-2.5-flash"].TotalTokens != 40 {
		t.Errorf("gemini-2.5-flash total = %d, want 40", byModel["gemini-2.5-flash"].TotalTokens)
	}
	_, _, total, calls := ta.Total()
	if total != 140 || calls != 3 {
		t.Errorf("Total() = total=%d calls=%d, want 140, 3", total, calls)
	}
}
