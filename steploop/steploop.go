// Package steploop implements spec.md §4.6's step loop: snapshot → compact
// prompt → executor call → action parse → backend dispatch → cache
// invalidation → verification. Grounded on bua.go's Run (the teacher's
// single analogous "drive one LLM turn against the browser" loop),
// generalized from "call an ADK tool, let the ADK route it" into "parse a
// grammar string and dispatch it against the backend port directly," since
// the executor here is a narrow text-in/text-out port, not a tool-calling
// agent.
package steploop

import (
	"context"
	"fmt"

	"github.com/anxuanzi/vera-go/action"
	"github.com/anxuanzi/vera-go/eventually"
	"github.com/anxuanzi/vera-go/executor"
	"github.com/anxuanzi/vera-go/runtime"
	"github.com/anxuanzi/vera-go/snapshot"
	"github.com/anxuanzi/vera-go/verify"
)

// VerificationSpec describes one verification a step must satisfy after its
// action executes. If Eventually is non-nil, the predicate is retried via
// the eventually driver; otherwise it is checked once, immediately.
type VerificationSpec struct {
	Predicate  verify.Predicate
	Label      string
	Required   bool
	Eventually *eventually.Config
}

// StepSpec is one step({taskGoal, step}) call's input.
type StepSpec struct {
	StepIndex         int
	StepGoal          string
	SnapshotLimitBase int
	Verifications     []VerificationSpec

	// VisionFallback, when set, is consulted if every required
	// verification still fails after the normal action+verify cycle.
	VisionFallback executor.Executor
	VisionBudget   int // max vision attempts; default 1
}

// StepOutcome is what Run returns for one step.
type StepOutcome struct {
	StepID        string
	OK            bool
	Action        action.Action
	ActionRaw     string
	Verifications []runtime.VerificationResult
	Err           error
}

// PromptBuilder renders the (system, user) prompt pair for one step. The
// default builder (DefaultPromptBuilder) enumerates compact element lines
// and asks for one action; callers may substitute a richer builder via
// Loop.PromptBuilder, per spec §4.6's compactPromptBuilder hook.
type PromptBuilder func(taskGoal, stepGoal string, snap *snapshot.Snapshot, history *History) (system, user string)

// Loop drives a sequence of steps against one runtime and executor.
type Loop struct {
	Runtime       *runtime.Runtime
	Executor      executor.Executor
	PromptBuilder PromptBuilder
	History       *History
	TaskGoal      string
}

// New constructs a Loop with the default prompt builder and a fresh History.
func New(rt *runtime.Runtime, exec executor.Executor, taskGoal string) *Loop {
	return &Loop{
		Runtime:       rt,
		Executor:      exec,
		PromptBuilder: DefaultPromptBuilder,
		History:       NewHistory(20),
		TaskGoal:      taskGoal,
	}
}

// Run executes spec.steps in order. It stops after a step whose action is
// FINISH() and, when stopOnFailure is set, after the first failed step.
func (l *Loop) Run(ctx context.Context, steps []StepSpec, stopOnFailure bool) ([]StepOutcome, error) {
	outcomes := make([]StepOutcome, 0, len(steps))
	for _, spec := range steps {
		outcome := l.Step(ctx, spec)
		outcomes = append(outcomes, outcome)
		if outcome.Err == nil && outcome.Action.Kind == action.Finish {
			return outcomes, nil
		}
		if outcome.Err != nil && stopOnFailure {
			return outcomes, outcome.Err
		}
		if !outcome.OK && stopOnFailure {
			return outcomes, nil
		}
	}
	return outcomes, nil
}

// Step executes exactly one step: fresh snapshot, compact prompt, one
// executor call, one parsed action, dispatch, invalidate, verify.
func (l *Loop) Step(ctx context.Context, spec StepSpec) StepOutcome {
	limit := spec.SnapshotLimitBase
	if limit <= 0 {
		limit = snapshot.DefaultOptions().Limit
	}

	stepID, err := l.Runtime.BeginStep(ctx, spec.StepGoal, spec.StepIndex)
	if err != nil {
		return StepOutcome{Err: fmt.Errorf("steploop: begin step: %w", err)}
	}
	outcome := StepOutcome{StepID: stepID, OK: true}

	snap, err := l.Runtime.Snapshot(ctx, snapshot.Options{Limit: limit}, true)
	if err != nil {
		outcome.Err = fmt.Errorf("steploop: snapshot: %w", err)
		outcome.OK = false
		_ = l.Runtime.EmitStepEnd(ctx, map[string]any{"error": outcome.Err.Error()})
		return outcome
	}

	system, user := l.PromptBuilder(l.TaskGoal, spec.StepGoal, snap, l.History)

	resp, err := l.Executor.Call(ctx, executor.Request{
		Goal:    system,
		Prompt:  user,
		History: l.History.RecentActions(5),
	})
	if err != nil {
		outcome.Err = fmt.Errorf("steploop: executor call: %w", err)
		outcome.OK = false
		_ = l.Runtime.EmitStepEnd(ctx, map[string]any{"error": outcome.Err.Error()})
		return outcome
	}
	l.Runtime.Tokens().Record("executor", runtime.TokenUsage{
		PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens: resp.Usage.TotalTokens, ModelName: resp.Usage.ModelName,
	})

	outcome.ActionRaw = resp.Action
	act, err := action.Parse(resp.Action)
	if err != nil {
		outcome.Err = fmt.Errorf("steploop: %w", err)
		outcome.OK = false
		_ = l.Runtime.EmitStepEnd(ctx, map[string]any{"error": outcome.Err.Error()})
		return outcome
	}
	outcome.Action = act
	l.History.Record(act.String())

	if act.Kind == action.Finish {
		_ = l.Runtime.EmitAction(ctx, act.String(), nil)
		_ = l.Runtime.EmitStepEnd(ctx, map[string]any{"action": act.String(), "finish": true})
		outcome.OK = true
		return outcome
	}

	dispatchErr := l.dispatch(ctx, snap, act)
	_ = l.Runtime.EmitAction(ctx, act.String(), dispatchErr)
	if dispatchErr != nil {
		outcome.Err = fmt.Errorf("steploop: dispatch: %w", dispatchErr)
		outcome.OK = false
		_ = l.Runtime.EmitStepEnd(ctx, map[string]any{"action": act.String(), "error": outcome.Err.Error()})
		return outcome
	}

	verifications, ok := l.runVerifications(ctx, spec.Verifications)
	outcome.Verifications = verifications
	outcome.OK = ok

	if !ok && spec.VisionFallback != nil {
		vok := l.visionFallback(ctx, spec)
		outcome.OK = vok
	}

	if err := l.Runtime.EmitStepEnd(ctx, map[string]any{"action": act.String(), "ok": outcome.OK}); err != nil {
		outcome.Err = err
	}
	return outcome
}

// runVerifications evaluates spec.Verifications, via Eventually when
// configured, otherwise a single immediate check. Returns every result and
// whether every required one passed.
func (l *Loop) runVerifications(ctx context.Context, specs []VerificationSpec) ([]runtime.VerificationResult, bool) {
	results := make([]runtime.VerificationResult, 0, len(specs))
	ok := true
	for _, v := range specs {
		handle := l.Runtime.Check(v.Predicate, v.Label, v.Required)
		var res runtime.VerificationResult
		var err error
		if v.Eventually != nil {
			res, err = handle.Eventually(ctx, snapshot.DefaultOptions(), *v.Eventually)
		} else {
			res, err = handle.Once(ctx)
		}
		if err != nil {
			ok = false
			continue
		}
		results = append(results, res)
		if v.Required && !res.Passed {
			ok = false
		}
	}
	return results, ok
}

// visionFallback asks the vision executor for a coordinate-based action
// when every normal verification still fails, per spec §4.6 step 6.
func (l *Loop) visionFallback(ctx context.Context, spec StepSpec) bool {
	budget := spec.VisionBudget
	if budget <= 0 {
		budget = 1
	}

	for attempt := 0; attempt < budget; attempt++ {
		png, err := l.Runtime.Backend().ScreenshotPNG(ctx)
		if err != nil {
			return false
		}
		resp, err := spec.VisionFallback.Call(ctx, executor.Request{
			Goal:     spec.StepGoal,
			Prompt:   "vision fallback: locate the target element by pixel coordinates.",
			ImageURL: encodeDataURL(png),
		})
		if err != nil {
			return false
		}
		l.Runtime.Tokens().Record("vision_executor", runtime.TokenUsage{
			PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens: resp.Usage.TotalTokens, ModelName: resp.Usage.ModelName,
		})

		act, err := action.Parse(resp.Action)
		if err != nil {
			continue
		}
		if err := l.dispatchVision(ctx, act); err != nil {
			continue
		}

		_, ok := l.runVerifications(ctx, spec.Verifications)
		if ok {
			return true
		}
	}
	return false
}

func encodeDataURL(png []byte) string {
	return "data:image/png;base64," + base64Std(png)
}
