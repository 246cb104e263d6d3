package steploop

import (
	"context"
	"testing"

	"github.com/anxuanzi/vera-go/backend"
	"github.com/anxuanzi/vera-go/executor"
	"github.com/anxuanzi/vera-go/runtime"
	"github.com/anxuanzi/vera-go/snapshot"
	"github.com/anxuanzi/vera-go/trace"
	"github.com/anxuanzi/vera-go/verify"
)

// fakeBackend records every mouse click and keystroke it receives.
type fakeBackend struct {
	clicks []struct{ x, y float64 }
	typed  []string
	keys   []string
	url    string
}

func (f *fakeBackend) RefreshPageInfo(ctx context.Context) (backend.ViewportInfo, error) {
	return backend.ViewportInfo{}, nil
}
func (f *fakeBackend) Eval(ctx context.Context, expression string) (any, error) { return nil, nil }
func (f *fakeBackend) Call(ctx context.Context, fn string, args ...any) (any, error) {
	return nil, nil
}
func (f *fakeBackend) GetLayoutMetrics(ctx context.Context) (backend.LayoutMetrics, error) {
	return backend.LayoutMetrics{}, nil
}
func (f *fakeBackend) ScreenshotPNG(ctx context.Context) ([]byte, error) { return []byte("png"), nil }
func (f *fakeBackend) MouseMove(ctx context.Context, x, y float64) error { return nil }
func (f *fakeBackend) MouseClick(ctx context.Context, x, y float64, button backend.MouseButton, clickCount int) error {
	f.clicks = append(f.clicks, struct{ x, y float64 }{x, y})
	return nil
}
func (f *fakeBackend) Wheel(ctx context.Context, deltaY float64, x, y *float64) error { return nil }
func (f *fakeBackend) TypeText(ctx context.Context, text string) error {
	f.typed = append(f.typed, text)
	return nil
}
func (f *fakeBackend) KeyPress(ctx context.Context, key string) error {
	f.keys = append(f.keys, key)
	return nil
}
func (f *fakeBackend) WaitReadyState(ctx context.Context, state backend.ReadyState, timeoutMs int) error {
	return nil
}
func (f *fakeBackend) GetURL(ctx context.Context) (string, error)    { return f.url, nil }
func (f *fakeBackend) Navigate(ctx context.Context, url string) error { f.url = url; return nil }
func (f *fakeBackend) Close() error                                   { return nil }

var _ backend.Backend = (*fakeBackend)(nil)

type fakeAcquirer struct{ snap *snapshot.Snapshot }

func (f *fakeAcquirer) Acquire(ctx context.Context, opts snapshot.Options) (*snapshot.Snapshot, error) {
	return f.snap, nil
}

// fakeExecutor returns a fixed, scripted sequence of action strings.
type fakeExecutor struct {
	actions []string
	i       int
}

func (f *fakeExecutor) Name() string { return "fake" }
func (f *fakeExecutor) Call(ctx context.Context, req executor.Request) (executor.Response, error) {
	a := f.actions[f.i]
	if f.i < len(f.actions)-1 {
		f.i++
	}
	return executor.Response{Action: a}, nil
}

func testSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Status: snapshot.StatusSuccess,
		URL:    "https://example.com",
		Elements: []snapshot.Element{
			{ID: 1, Role: "button", Text: "Submit", Importance: 90, BBox: snapshot.BoundingBox{X: 10, Y: 20, Width: 40, Height: 10}},
			{ID: 2, Role: "textbox", Text: "", Importance: 80, BBox: snapshot.BoundingBox{X: 0, Y: 0, Width: 100, Height: 10}},
		},
	}
}

func newTestLoop(be backend.Backend, snap *snapshot.Snapshot, exec executor.Executor) *Loop {
	tracer := trace.NewEmitter("test-run", trace.NoopSink{})
	rt := runtime.New(be, &fakeAcquirer{snap: snap}, tracer, runtime.Config{AutoStep: true})
	return New(rt, exec, "submit the form")
}

func TestStepClicksResolvedElement(t *testing.T) {
	be := &fakeBackend{}
	exec := &fakeExecutor{actions: []string{"CLICK(1)"}}
	loop := newTestLoop(be, testSnapshot(), exec)

	outcome := loop.Step(context.Background(), StepSpec{StepGoal: "click submit"})
	if outcome.Err != nil {
		t.Fatalf("Step() error = %v", outcome.Err)
	}
	if len(be.clicks) != 1 {
		t.Fatalf("expected 1 click, got %d", len(be.clicks))
	}
	want := struct{ x, y float64 }{30, 25}
	if be.clicks[0] != want {
		t.Errorf("click = %+v, want %+v", be.clicks[0], want)
	}
}

func TestStepUnknownElementIDFails(t *testing.T) {
	be := &fakeBackend{}
	exec := &fakeExecutor{actions: []string{"CLICK(999)"}}
	loop := newTestLoop(be, testSnapshot(), exec)

	outcome := loop.Step(context.Background(), StepSpec{StepGoal: "click missing"})
	if outcome.Err == nil {
		t.Fatal("expected error for unresolved element id")
	}
	if outcome.OK {
		t.Error("expected OK = false")
	}
}

func TestStepParseErrorFails(t *testing.T) {
	be := &fakeBackend{}
	exec := &fakeExecutor{actions: []string{"not a real action"}}
	loop := newTestLoop(be, testSnapshot(), exec)

	outcome := loop.Step(context.Background(), StepSpec{StepGoal: "garbage"})
	if outcome.Err == nil {
		t.Fatal("expected parse error")
	}
}

func TestStepFinishSkipsDispatch(t *testing.T) {
	be := &fakeBackend{}
	exec := &fakeExecutor{actions: []string{"FINISH()"}}
	loop := newTestLoop(be, testSnapshot(), exec)

	outcome := loop.Step(context.Background(), StepSpec{StepGoal: "done"})
	if outcome.Err != nil {
		t.Fatalf("Step() error = %v", outcome.Err)
	}
	if len(be.clicks) != 0 {
		t.Error("FINISH should not dispatch any click")
	}
	if !outcome.OK {
		t.Error("expected OK = true")
	}
}

func TestStepTypeFocusesThenTypes(t *testing.T) {
	be := &fakeBackend{}
	exec := &fakeExecutor{actions: []string{`TYPE(2,"hello")`}}
	loop := newTestLoop(be, testSnapshot(), exec)

	outcome := loop.Step(context.Background(), StepSpec{StepGoal: "fill field"})
	if outcome.Err != nil {
		t.Fatalf("Step() error = %v", outcome.Err)
	}
	if len(be.clicks) != 1 || len(be.typed) != 1 || be.typed[0] != "hello" {
		t.Errorf("expected one click and one typed 'hello', got clicks=%v typed=%v", be.clicks, be.typed)
	}
}

func TestStepVerificationFailureMarksOutcomeNotOK(t *testing.T) {
	be := &fakeBackend{}
	exec := &fakeExecutor{actions: []string{"CLICK(1)"}}
	loop := newTestLoop(be, testSnapshot(), exec)

	alwaysFails := func(ctx verify.Context) verify.Outcome {
		return verify.Outcome{Passed: false, Reason: "never happens"}
	}
	outcome := loop.Step(context.Background(), StepSpec{
		StepGoal: "click submit",
		Verifications: []VerificationSpec{
			{Predicate: alwaysFails, Label: "submitted", Required: true},
		},
	})
	if outcome.Err != nil {
		t.Fatalf("Step() error = %v", outcome.Err)
	}
	if outcome.OK {
		t.Error("expected OK = false when a required verification fails")
	}
}

func TestHistoryRecordsActionsAcrossSteps(t *testing.T) {
	be := &fakeBackend{}
	exec := &fakeExecutor{actions: []string{"CLICK(1)", "PRESS(\"Enter\")"}}
	loop := newTestLoop(be, testSnapshot(), exec)

	loop.Step(context.Background(), StepSpec{StepGoal: "first"})
	loop.Step(context.Background(), StepSpec{StepGoal: "second"})

	recent := loop.History.RecentActions(0)
	if len(recent) != 2 || recent[0] != "CLICK(1)" || recent[1] != `PRESS("Enter")` {
		t.Errorf("History.RecentActions() = %v, want [CLICK(1) PRESS(\"Enter\")]", recent)
	}
}

func TestRunStopsOnFailureWhenConfigured(t *testing.T) {
	be := &fakeBackend{}
	exec := &fakeExecutor{actions: []string{"not valid", "CLICK(1)"}}
	loop := newTestLoop(be, testSnapshot(), exec)

	outcomes, err := loop.Run(context.Background(), []StepSpec{
		{StepGoal: "bad"},
		{StepGoal: "good"},
	}, true)
	if err == nil {
		t.Fatal("expected Run() to return the parse error")
	}
	if len(outcomes) != 1 {
		t.Errorf("expected Run() to stop after 1 step, got %d", len(outcomes))
	}
}
