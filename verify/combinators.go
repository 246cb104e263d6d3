package verify

import (
	"fmt"
	"strings"
)

// AllOf is the AND combinator: it evaluates every sub-predicate, collects
// all outcomes, and passes only if every one of them passed. On failure the
// reason lists every failing sub-reason.
func AllOf(predicates ...Predicate) Predicate {
	return func(ctx Context) Outcome {
		var failures []string
		details := map[string]any{"sub_outcomes": make([]Outcome, 0, len(predicates))}
		allPassed := true
		for _, p := range predicates {
			o := p(ctx)
			details["sub_outcomes"] = append(details["sub_outcomes"].([]Outcome), o)
			if !o.Passed {
				allPassed = false
				failures = append(failures, o.Reason)
			}
		}
		if allPassed {
			return Outcome{Passed: true, Reason: "all predicates passed", Details: details}
		}
		return Outcome{Passed: false, Reason: "failed: " + strings.Join(failures, "; "), Details: details}
	}
}

// AnyOf is the OR combinator: it returns the first passing sub-outcome, or,
// if none pass, a failure listing every sub-reason.
func AnyOf(predicates ...Predicate) Predicate {
	return func(ctx Context) Outcome {
		var failures []string
		for _, p := range predicates {
			o := p(ctx)
			if o.Passed {
				return o
			}
			failures = append(failures, o.Reason)
		}
		return fail("no predicate passed: " + strings.Join(failures, "; "))
	}
}

// Not inverts a predicate's pass/fail, keeping the original reason visible.
func Not(p Predicate) Predicate {
	return func(ctx Context) Outcome {
		o := p(ctx)
		if o.Passed {
			return fail("negated: " + o.Reason)
		}
		return pass("negated: " + o.Reason)
	}
}

// Custom wraps an arbitrary check function with recover-based fault
// isolation: a panicking check produces a failing Outcome instead of
// crashing the step loop.
func Custom(fn func(ctx Context) (bool, string), label string) (p Predicate) {
	return func(ctx Context) (o Outcome) {
		defer func() {
			if r := recover(); r != nil {
				o = fail(fmt.Sprintf("%s: panicked: %v", label, r))
			}
		}()
		ok, reason := fn(ctx)
		if reason == "" {
			reason = label
		}
		if ok {
			return pass(reason)
		}
		return fail(reason)
	}
}
