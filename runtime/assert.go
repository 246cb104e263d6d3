package runtime

import (
	"context"

	"github.com/anxuanzi/vera-go/eventually"
	"github.com/anxuanzi/vera-go/snapshot"
	"github.com/anxuanzi/vera-go/trace"
	"github.com/anxuanzi/vera-go/verify"
)

func verificationData(v VerificationResult) map[string]any {
	return map[string]any{
		"label":    v.Label,
		"required": v.Required,
		"passed":   v.Passed,
		"reason":   v.Reason,
		"kind":     v.Kind,
		"attempts": v.Attempts,
		"details":  v.Details,
	}
}

// currentContext builds a verify.Context from the runtime's current cached
// snapshot, without forcing a refresh.
func (r *Runtime) currentContext() verify.Context {
	snap := r.cache.Peek()
	ctx := verify.Context{StepID: r.stepID}
	if snap != nil {
		ctx.Snapshot = snap
		ctx.URL = snap.URL
	}
	return ctx
}

func (r *Runtime) recordVerification(ctx context.Context, v VerificationResult) {
	r.stepResult.Verifications = append(r.stepResult.Verifications, v)
	if v.Required && !v.Passed {
		r.stepResult.OK = false
	}
	_ = r.tracer.Emit(trace.TypeVerification, r.stepID, verificationData(v))
}

// Assert evaluates predicate synchronously against the current context,
// records a verification event, and returns the result. A failing required
// assertion marks the step failed but does not itself return an error — the
// step loop decides policy on StepResult.OK.
func (r *Runtime) Assert(ctx context.Context, predicate verify.Predicate, label string, required bool) (VerificationResult, error) {
	if err := r.ensureStepOpen(ctx); err != nil {
		return VerificationResult{}, err
	}

	outcome := predicate(r.currentContext())
	result := VerificationResult{
		Label: label, Required: required,
		Passed: outcome.Passed, Reason: outcome.Reason,
		Kind: trace.KindAssert, Attempts: 1, Details: outcome.Details,
	}
	r.recordVerification(ctx, result)
	return result, nil
}

// AssertDone behaves like Assert(..., required=true), but additionally
// marks the task terminally done when the predicate passes.
func (r *Runtime) AssertDone(ctx context.Context, predicate verify.Predicate, label string) (VerificationResult, error) {
	if err := r.ensureStepOpen(ctx); err != nil {
		return VerificationResult{}, err
	}

	outcome := predicate(r.currentContext())
	result := VerificationResult{
		Label: label, Required: true,
		Passed: outcome.Passed, Reason: outcome.Reason,
		Kind: trace.KindAssertDone, Attempts: 1, Details: outcome.Details,
	}
	r.recordVerification(ctx, result)
	if outcome.Passed {
		r.terminalAsked = true
	}
	return result, nil
}

// TerminalReached reports whether an AssertDone call has passed during the
// current (or most recently closed) step.
func (r *Runtime) TerminalReached() bool { return r.terminalAsked }

// AssertionHandle is returned by Check, supporting both an immediate
// one-shot evaluation and a retry-driven evaluation via the eventually
// package.
type AssertionHandle struct {
	r         *Runtime
	predicate verify.Predicate
	label     string
	required  bool
}

// Check begins a deferred assertion against predicate, to be resolved via
// Once or Eventually.
func (r *Runtime) Check(predicate verify.Predicate, label string, required bool) AssertionHandle {
	return AssertionHandle{r: r, predicate: predicate, label: label, required: required}
}

// Once evaluates the predicate immediately against the current context,
// equivalent to Assert.
func (h AssertionHandle) Once(ctx context.Context) (VerificationResult, error) {
	return h.r.Assert(ctx, h.predicate, h.label, h.required)
}

// Eventually runs the retry driver, rebuilding context from a fresh
// snapshot (at opts.Limit, growing per cfg.LimitGrowth) on every retry.
func (h AssertionHandle) Eventually(ctx context.Context, opts snapshot.Options, cfg eventually.Config) (VerificationResult, error) {
	r := h.r
	if err := r.ensureStepOpen(ctx); err != nil {
		return VerificationResult{}, err
	}

	refresh := func(ctx context.Context, limit int) (verify.Context, error) {
		refreshOpts := opts
		if limit > 0 {
			refreshOpts.Limit = limit
		}
		snap, err := r.Snapshot(ctx, refreshOpts, true)
		if err != nil {
			return verify.Context{}, err
		}
		return verify.Context{Snapshot: snap, URL: snap.URL, StepID: r.stepID}, nil
	}

	res := eventually.Do(ctx, r.currentContext(), h.predicate, refresh, cfg)
	result := VerificationResult{
		Label: h.label, Required: h.required,
		Passed: res.Outcome.Passed, Reason: res.Outcome.Reason,
		Kind: trace.KindAssert, Attempts: res.Attempts, Details: res.Outcome.Details,
	}
	r.recordVerification(ctx, result)
	return result, nil
}
