// Package vera provides a verification-first browser automation agent: one
// LLM executor, one backend-driven runtime, and one step loop wired
// together behind a small Agent surface. Grounded on bua.go's Agent/Config/
// New/Start/Run/Close, generalized from "own a browser plus an ADK agent
// directly" into "own a browser plus a runtime.Runtime plus a
// steploop.Loop" — the agent no longer talks to the model itself, it owns
// the pieces that let a steploop.Loop talk to the model on its behalf.
package vera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/anxuanzi/vera-go/action"
	"github.com/anxuanzi/vera-go/backend"
	"github.com/anxuanzi/vera-go/backend/rodbackend"
	"github.com/anxuanzi/vera-go/captcha"
	"github.com/anxuanzi/vera-go/executor"
	execanthropic "github.com/anxuanzi/vera-go/executor/anthropic"
	execgemini "github.com/anxuanzi/vera-go/executor/gemini"
	"github.com/anxuanzi/vera-go/runtime"
	"github.com/anxuanzi/vera-go/snapshot"
	"github.com/anxuanzi/vera-go/steploop"
	"github.com/anxuanzi/vera-go/trace"
)

// Viewport defines browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Viewport presets, carried over from the teacher's preset set.
var (
	DesktopViewport      = &Viewport{Width: 1280, Height: 800}
	LargeDesktopViewport = &Viewport{Width: 1920, Height: 1080}
	TabletViewport       = &Viewport{Width: 768, Height: 1024}
	MobileViewport       = &Viewport{Width: 375, Height: 812}
)

// TokenPreset bounds how many elements a step's snapshot asks for. Unlike
// the teacher's preset (which also tuned screenshot width/quality for a
// vision-heavy loop), this only needs a snapshot limit: the default compact
// prompt builder carries no screenshot unless the vision fallback engages.
type TokenPreset struct {
	SnapshotLimit int
}

var (
	TokenPresetEfficient = &TokenPreset{SnapshotLimit: 30}
	TokenPresetBalanced  = &TokenPreset{SnapshotLimit: 50}
	TokenPresetQuality   = &TokenPreset{SnapshotLimit: 100}
	TokenPresetMaximum   = &TokenPreset{SnapshotLimit: 200}
)

// ExecutorKind selects which LLM provider backs the step loop's executor.
type ExecutorKind string

const (
	ExecutorGemini    ExecutorKind = "gemini"
	ExecutorAnthropic ExecutorKind = "anthropic"
)

// Config holds everything needed to construct an Agent.
type Config struct {
	// Executor selects the LLM provider. Defaults to ExecutorGemini.
	Executor ExecutorKind
	// APIKey is the executor provider's API key.
	APIKey string
	// Model overrides the executor's default model id.
	Model string

	// ProfileName, if set, persists the browser profile under ProfileDir
	// for session reuse across runs.
	ProfileName string
	// ProfileDir defaults to ~/.vera/profiles.
	ProfileDir string

	Headless bool
	Viewport *Viewport

	// SnapshotLimit bounds elements requested per snapshot. Defaults to
	// TokenPresetBalanced's limit (50) when zero.
	SnapshotLimit int

	CaptchaPolicy  captcha.PolicyConfig
	CaptchaHandler captcha.Handler

	// TraceSinks receives every runtime trace event; defaults to
	// trace.NoopSink{} when empty.
	TraceSinks []trace.Sink

	Debug bool
}

// ApplyTokenPreset applies a token preset's snapshot limit to the config.
func (c *Config) ApplyTokenPreset(preset *TokenPreset) {
	if preset == nil {
		return
	}
	c.SnapshotLimit = preset.SnapshotLimit
}

// RunOptions bounds one Run call.
type RunOptions struct {
	MaxSteps       int // default 30
	StopOnFailure  bool
	VisionFallback executor.Executor
	VisionBudget   int
}

// Result is what Run returns.
type Result struct {
	Success  bool
	Outcomes []steploop.StepOutcome
	Error    string
}

// Agent owns one launched browser, its backend, its runtime, and the step
// loop that drives it.
type Agent struct {
	config   Config
	launcher *launcher.Launcher
	rodBr    *rod.Browser
	be       *rodbackend.Backend
	tracer   *trace.Emitter
	runtime  *runtime.Runtime
	exec     executor.Executor

	mu     sync.Mutex
	closed bool
}

// New validates and defaults cfg, returning an unstarted Agent.
func New(cfg Config) (*Agent, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("vera: APIKey is required")
	}
	if cfg.Executor == "" {
		cfg.Executor = ExecutorGemini
	}
	if cfg.Viewport == nil {
		cfg.Viewport = DesktopViewport
	}
	if cfg.SnapshotLimit <= 0 {
		cfg.SnapshotLimit = TokenPresetBalanced.SnapshotLimit
	}
	if cfg.ProfileDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("vera: resolve home directory: %w", err)
		}
		cfg.ProfileDir = filepath.Join(home, ".vera", "profiles")
	}
	if len(cfg.TraceSinks) == 0 {
		cfg.TraceSinks = []trace.Sink{trace.NoopSink{}}
	}

	return &Agent{config: cfg}, nil
}

// Start launches the browser, connects a backend, and wires the runtime and
// executor. Grounded on bua.go's Start, generalized from "launch + wrap +
// init an ADK agent" into "launch + wrap + construct a runtime.Runtime"
// (the anti-detection launcher flags are carried verbatim — they are a
// browser-launch concern, not an ADK concern, and apply equally here).
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return fmt.Errorf("vera: agent is closed")
	}

	var userDataDir string
	if a.config.ProfileName != "" {
		userDataDir = filepath.Join(a.config.ProfileDir, a.config.ProfileName)
		if err := os.MkdirAll(userDataDir, 0755); err != nil {
			return fmt.Errorf("vera: create profile directory: %w", err)
		}
	}

	l := launcher.New().
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-infobars").
		Set("disable-dev-shm-usage").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("autoplay-policy", "no-user-gesture-required").
		Set("disable-background-networking").
		Set("disable-client-side-phishing-detection").
		Set("disable-default-apps").
		Set("disable-popup-blocking").
		Set("disable-prompt-on-repost").
		Set("disable-sync").
		Set("disable-translate").
		Set("metrics-recording-only").
		Set("safebrowsing-disable-auto-update").
		Set("window-size", fmt.Sprintf("%d,%d", a.config.Viewport.Width, a.config.Viewport.Height)).
		Headless(a.config.Headless)
	if userDataDir != "" {
		l = l.UserDataDir(userDataDir)
	}
	a.launcher = l

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("vera: launch browser: %w", err)
	}

	rodBr := rod.New().ControlURL(controlURL)
	if err := rodBr.Connect(); err != nil {
		return fmt.Errorf("vera: connect to browser: %w", err)
	}
	a.rodBr = rodBr

	a.be = rodbackend.New(rodBr, rodbackend.Config{
		ViewportWidth:  a.config.Viewport.Width,
		ViewportHeight: a.config.Viewport.Height,
	})

	a.tracer = trace.NewEmitter(newRunID(), a.config.TraceSinks...)

	acquirer := snapshot.NewExtractor(a.be)

	exec, err := a.newExecutor()
	if err != nil {
		return fmt.Errorf("vera: construct executor: %w", err)
	}
	a.exec = exec

	a.runtime = runtime.New(a.be, acquirer, a.tracer, runtime.Config{
		CaptchaPolicy:  a.config.CaptchaPolicy,
		CaptchaHandler: a.config.CaptchaHandler,
	})

	return nil
}

func (a *Agent) newExecutor() (executor.Executor, error) {
	switch a.config.Executor {
	case ExecutorAnthropic:
		return execanthropic.New(execanthropic.Config{APIKey: a.config.APIKey, Model: a.config.Model})
	case ExecutorGemini, "":
		return execgemini.New(context.Background(), execgemini.Config{APIKey: a.config.APIKey, Model: a.config.Model})
	default:
		return nil, fmt.Errorf("unknown executor kind %q", a.config.Executor)
	}
}

// Navigate loads url in the active tab.
func (a *Agent) Navigate(ctx context.Context, url string) error {
	a.mu.Lock()
	be := a.be
	a.mu.Unlock()
	if be == nil {
		return backend.ErrNilBackend()
	}
	return be.Navigate(ctx, url)
}

// Run drives a steploop.Loop toward goal, one synthetic step per
// opts.MaxSteps, stopping early when the executor calls FINISH() or a
// required verification fails with opts.StopOnFailure set.
func (a *Agent) Run(ctx context.Context, goal string, opts RunOptions) (*Result, error) {
	a.mu.Lock()
	if a.runtime == nil || a.exec == nil {
		a.mu.Unlock()
		return nil, fmt.Errorf("vera: agent not started, call Start() first")
	}
	rt, exec := a.runtime, a.exec
	snapshotLimit := a.config.SnapshotLimit
	a.mu.Unlock()

	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 30
	}

	loop := steploop.New(rt, exec, goal)

	specs := make([]steploop.StepSpec, maxSteps)
	for i := range specs {
		specs[i] = steploop.StepSpec{
			StepIndex:         i,
			StepGoal:          goal,
			SnapshotLimitBase: snapshotLimit,
			VisionFallback:    opts.VisionFallback,
			VisionBudget:      opts.VisionBudget,
		}
	}

	outcomes, err := loop.Run(ctx, specs, opts.StopOnFailure)
	result := &Result{Success: true, Outcomes: outcomes}
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		return result, nil
	}

	for _, o := range outcomes {
		if o.Action.Kind == action.Finish {
			return result, nil
		}
		if !o.OK {
			result.Success = false
		}
	}
	return result, nil
}

// CurrentURL returns the active tab's URL. Returns an error if the agent
// has not been started.
func (a *Agent) CurrentURL(ctx context.Context) (string, error) {
	a.mu.Lock()
	be := a.be
	a.mu.Unlock()
	if be == nil {
		return "", backend.ErrNilBackend()
	}
	return be.GetURL(ctx)
}

// Close shuts down the browser process and releases resources.
func (a *Agent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	var firstErr error
	if a.be != nil {
		if err := a.be.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.rodBr != nil {
		if err := a.rodBr.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.launcher != nil {
		a.launcher.Cleanup()
	}
	if a.tracer != nil {
		if err := a.tracer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func newRunID() string {
	return fmt.Sprintf("run-%d", time.Now().UnixNano())
}
