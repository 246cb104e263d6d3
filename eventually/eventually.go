// Package eventually implements the retry-with-refresh driver: given a
// predicate and a snapshot-refresh callback, repeatedly evaluate until the
// predicate passes or a timeout/retry budget is exhausted.
package eventually

import (
	"context"
	"fmt"
	"time"

	"github.com/anxuanzi/vera-go/verify"
)

// ApplyOn controls when LimitGrowth bumps the requested snapshot limit.
type ApplyOn string

const (
	// ApplyOnFail grows the limit only after a failing attempt.
	ApplyOnFail ApplyOn = "only_on_fail"
	// ApplyOnAll grows the limit on every refresh, regardless of outcome.
	ApplyOnAll ApplyOn = "all"
)

// LimitGrowth configures the adaptive snapshot-limit growth policy:
// virtualized/long pages need a larger capture to reveal below-the-fold
// targets, but unconditionally requesting the max limit would waste tokens.
type LimitGrowth struct {
	StartLimit int
	Step       int
	MaxLimit   int
	ApplyOn    ApplyOn
}

// nextLimit returns the limit to request for the given attempt number
// (0-based) given whether the previous attempt failed.
func (g LimitGrowth) nextLimit(attempt int, previousFailed bool) int {
	if g.Step <= 0 {
		return g.StartLimit
	}
	grow := g.ApplyOn == ApplyOnAll || (g.ApplyOn == ApplyOnFail && previousFailed)
	if !grow {
		return g.StartLimit
	}
	limit := g.StartLimit + attempt*g.Step
	if g.MaxLimit > 0 && limit > g.MaxLimit {
		limit = g.MaxLimit
	}
	return limit
}

// RefreshFunc fetches a fresh snapshot/URL/downloads context, optionally at a
// larger element limit per the growth policy, and returns the rebuilt
// verify.Context.
type RefreshFunc func(ctx context.Context, limit int) (verify.Context, error)

// Config bounds one eventually run.
type Config struct {
	TimeoutMs   int
	PollMs      int
	MaxRetries  int
	LimitGrowth *LimitGrowth

	// Clock is the time/sleep seam; nil uses the real clock.
	Clock Clock
}

// Result is the outcome of an eventually run, annotated with how many
// attempts it took.
type Result struct {
	Outcome  verify.Outcome
	Attempts int
}

// Do evaluates predicate against an initial context, then — on failure —
// repeatedly calls refresh and re-evaluates, until the predicate passes or
// termination (elapsed >= timeoutMs, attempts >= maxRetries, or pass)
// whichever comes first. On timeout/retry exhaustion the returned Result
// carries the last failing Outcome with its reason prefixed by the
// termination cause.
func Do(ctx context.Context, initial verify.Context, predicate verify.Predicate, refresh RefreshFunc, cfg Config) Result {
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock{}
	}

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	poll := time.Duration(cfg.PollMs) * time.Millisecond
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1<<31 - 1
	}

	start := clock.Now()
	current := initial
	attempt := 0
	var last verify.Outcome
	previousFailed := false

	for {
		if attempt > 0 {
			limit := 0
			if cfg.LimitGrowth != nil {
				limit = cfg.LimitGrowth.nextLimit(attempt, previousFailed)
			}
			refreshed, err := refresh(ctx, limit)
			if err != nil {
				last = verify.Outcome{Passed: false, Reason: fmt.Sprintf("refresh failed: %v", err)}
				previousFailed = true
			} else {
				current = refreshed
			}
		}

		outcome := predicate(current)
		attempt++
		if outcome.Passed {
			outcome.Details = withAttempts(outcome.Details, attempt)
			return Result{Outcome: outcome, Attempts: attempt}
		}

		last = outcome
		previousFailed = true

		elapsed := clock.Now().Sub(start)
		if elapsed >= timeout {
			last.Reason = "timeout: " + last.Reason
			last.Details = withAttempts(last.Details, attempt)
			return Result{Outcome: last, Attempts: attempt}
		}
		if attempt >= maxRetries {
			last.Reason = "retries exhausted: " + last.Reason
			last.Details = withAttempts(last.Details, attempt)
			return Result{Outcome: last, Attempts: attempt}
		}

		remaining := timeout - elapsed
		sleepFor := poll
		if sleepFor > remaining {
			sleepFor = remaining
		}
		if err := clock.Sleep(ctx, sleepFor); err != nil {
			last.Reason = "cancelled: " + last.Reason
			last.Details = withAttempts(last.Details, attempt)
			return Result{Outcome: last, Attempts: attempt}
		}
	}
}

func withAttempts(details map[string]any, attempts int) map[string]any {
	if details == nil {
		details = map[string]any{}
	}
	details["attempts"] = attempts
	return details
}
