// Package runtime implements the agent runtime spec.md §4.5 describes: the
// owner of a single backend, tracer, snapshot cache, and current step, that
// exposes the assert/check/scroll/captcha-gating surface the step loop
// drives. Grounded on the teacher's agent.Logger (step/task timing, token
// aggregation) generalized from a console narrator into a tracer-backed
// runtime with no UI concerns of its own.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/anxuanzi/vera-go/backend"
	"github.com/anxuanzi/vera-go/captcha"
	"github.com/anxuanzi/vera-go/snapshot"
	"github.com/anxuanzi/vera-go/trace"
)

// Hooks lets a caller observe step boundaries without subclassing the
// runtime. Every field is optional.
type Hooks struct {
	OnStepStart func(stepID string, goal string)
	OnStepEnd   func(stepID string, result StepResult)
}

// Config bounds a Runtime instance.
type Config struct {
	SnapshotMaxAge time.Duration
	CaptchaPolicy  captcha.PolicyConfig
	CaptchaHandler captcha.Handler

	// AutoStep, when true, lets Assert/Check open an implicit step instead
	// of raising a programmer error when none is open.
	AutoStep bool

	Hooks Hooks
}

// StepResult is the aggregated outcome a step produces, passed to
// Hooks.OnStepEnd and folded into the step_end trace event.
type StepResult struct {
	OK            bool
	Verifications []VerificationResult
	ActionError   error
}

// VerificationResult is what Assert/AssertDone/Check.Once return, and what
// populates each verification trace event.
type VerificationResult struct {
	Label    string
	Required bool
	Passed   bool
	Reason   string
	Kind     trace.VerificationKind
	Attempts int
	Details  map[string]any
}

// Runtime owns one backend, tracer, snapshot cache, and the bookkeeping for
// exactly one open step at a time. It is not safe for concurrent use from
// multiple goroutines — see spec.md §5's single-threaded cooperative model.
type Runtime struct {
	backend  backend.Backend
	tracer   *trace.Emitter
	cache    *snapshot.Cache
	cfg      Config
	tokens   *TokenAccounting

	stepOpen      bool
	stepID        string
	stepResult    StepResult
	terminalAsked bool

	captchaGated bool
}

// New constructs a Runtime around a backend and an Acquirer-backed snapshot
// cache, emitting trace events through tracer.
func New(be backend.Backend, acquirer snapshot.Acquirer, tracer *trace.Emitter, cfg Config) *Runtime {
	maxAge := cfg.SnapshotMaxAge
	if maxAge <= 0 {
		maxAge = 2 * time.Second
	}
	return &Runtime{
		backend: be,
		tracer:  tracer,
		cache:   snapshot.NewCache(acquirer, maxAge),
		cfg:     cfg,
		tokens:  NewTokenAccounting(),
	}
}

// Backend exposes the underlying backend for callers (e.g. the step loop's
// action executor) that need it directly.
func (r *Runtime) Backend() backend.Backend { return r.backend }

// Tokens exposes the runtime's token accounting for LLM call instrumentation.
func (r *Runtime) Tokens() *TokenAccounting { return r.tokens }

// StepID returns the currently open step id, or "" if none is open.
func (r *Runtime) StepID() string { return r.stepID }

// BeginStep opens a new step, generating a fresh id and emitting
// step_start. If a step is already open, that is a programmer error
// (concurrent beginStep from one runtime is never valid) — unless the open
// step was auto-opened by AutoStep, in which case it is closed first.
func (r *Runtime) BeginStep(ctx context.Context, goal string, stepIndex int) (string, error) {
	if r.stepOpen {
		if !r.cfg.AutoStep {
			return "", &concurrentStepError{openStepID: r.stepID}
		}
		if err := r.EmitStepEnd(ctx, nil); err != nil {
			return "", err
		}
	}

	r.stepID = uuid.New().String()
	r.stepOpen = true
	r.stepResult = StepResult{OK: true}
	r.terminalAsked = false

	if err := r.tracer.Emit(trace.TypeStepStart, r.stepID, map[string]any{
		"goal":       goal,
		"step_index": stepIndex,
	}); err != nil {
		return r.stepID, err
	}
	if r.cfg.Hooks.OnStepStart != nil {
		r.cfg.Hooks.OnStepStart(r.stepID, goal)
	}
	return r.stepID, nil
}

func (r *Runtime) ensureStepOpen(ctx context.Context) error {
	if r.stepOpen {
		return nil
	}
	if !r.cfg.AutoStep {
		return &noOpenStepError{}
	}
	_, err := r.BeginStep(ctx, "auto", 0)
	return err
}

// EmitStepEnd closes the current step, emits step_end with extra, and
// returns. A second call with no open step is a no-op, matching spec.md
// §8's idempotence property.
func (r *Runtime) EmitStepEnd(ctx context.Context, extra map[string]any) error {
	if !r.stepOpen {
		return nil
	}

	data := map[string]any{
		"ok":            r.stepResult.OK,
		"verifications": len(r.stepResult.Verifications),
	}
	if r.stepResult.ActionError != nil {
		data["action_error"] = r.stepResult.ActionError.Error()
	}
	for k, v := range extra {
		data[k] = v
	}

	stepID := r.stepID
	result := r.stepResult

	r.stepOpen = false
	r.stepID = ""
	r.stepResult = StepResult{}

	if err := r.tracer.Emit(trace.TypeStepEnd, stepID, data); err != nil {
		return err
	}
	if r.cfg.Hooks.OnStepEnd != nil {
		r.cfg.Hooks.OnStepEnd(stepID, result)
	}
	return nil
}

// Snapshot delegates to the cache, emitting a snapshot trace event
// summarizing element count and URL on every real (non-cached) acquisition.
func (r *Runtime) Snapshot(ctx context.Context, opts snapshot.Options, forceRefresh bool) (*snapshot.Snapshot, error) {
	before := r.cache.Peek()
	snap, err := r.cache.Get(ctx, opts, forceRefresh)
	if err != nil {
		_ = r.tracer.Emit(trace.TypeError, r.stepID, map[string]any{
			"op":  "snapshot",
			"err": err.Error(),
		})
		return nil, err
	}

	fresh := snap != before
	if fresh {
		_ = r.tracer.Emit(trace.TypeSnapshot, r.stepID, map[string]any{
			"url":           snap.URL,
			"element_count": len(snap.Elements),
		})
	}

	if err := r.gateCaptcha(ctx, snap); err != nil {
		return snap, err
	}
	return snap, nil
}

// EmitAction records a dispatched action against the current step, for
// trace consumers replaying what the agent did. stepResult.ActionError is
// set when err is non-nil, which EmitStepEnd folds into step_end data.
func (r *Runtime) EmitAction(ctx context.Context, actionStr string, err error) error {
	data := map[string]any{"action": actionStr}
	if err != nil {
		data["error"] = err.Error()
		r.stepResult.ActionError = err
		r.stepResult.OK = false
	}
	return r.tracer.Emit(trace.TypeAction, r.stepID, data)
}

// gateCaptcha inspects the snapshot's captcha diagnostics and applies the
// configured policy, per spec.md §4.5. Passive evidence never gates.
func (r *Runtime) gateCaptcha(ctx context.Context, snap *snapshot.Snapshot) error {
	var diag *snapshot.CaptchaDiagnostics
	if snap.Diagnostics != nil {
		diag = snap.Diagnostics.Captcha
	}

	cfg := r.cfg.CaptchaPolicy
	if cfg.Policy == "" {
		cfg = captcha.DefaultPolicyConfig()
	}

	resnapshot := func(ctx context.Context) (*snapshot.Snapshot, error) {
		return r.cache.Get(ctx, snapshot.DefaultOptions(), true)
	}

	assessment, err := captcha.Gate(ctx, diag, cfg, r.cfg.CaptchaHandler, resnapshot, nil)

	if assessment.Gating || assessment.Passive || err != nil {
		passed := err == nil
		reason := assessment.Reason
		if err != nil {
			reason = err.Error()
		}
		_ = r.tracer.Emit(trace.TypeVerification, r.stepID, verificationData(VerificationResult{
			Label:    "captcha",
			Required: true,
			Passed:   passed,
			Reason:   reason,
			Kind:     trace.KindCaptcha,
			Attempts: 1,
		}))
	}

	if err != nil {
		r.stepResult.OK = false
		return fmt.Errorf("runtime: captcha gate: %w", err)
	}
	return nil
}
