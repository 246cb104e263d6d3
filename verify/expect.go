package verify

import (
	"fmt"
	"strings"
)

// Expectation is the fluent layer over ElementQuery. Each method compiles to
// the same Predicate shape the algebra's primitives produce — it is sugar,
// not a separate evaluation path.
type Expectation struct {
	query ElementQuery
	label string
}

// Expect begins a fluent assertion against the given query.
func Expect(q ElementQuery) Expectation {
	return Expectation{query: q, label: describeQuery(q)}
}

func describeQuery(q ElementQuery) string {
	var parts []string
	if q.Role != "" {
		parts = append(parts, "role="+q.Role)
	}
	if q.TextContains != "" {
		parts = append(parts, fmt.Sprintf("text~%q", q.TextContains))
	}
	if q.HrefContains != "" {
		parts = append(parts, fmt.Sprintf("href~%q", q.HrefContains))
	}
	if len(parts) == 0 {
		return "query"
	}
	return strings.Join(parts, " && ")
}

// ToExist compiles to a predicate equivalent to Exists on the same query.
func (e Expectation) ToExist() Predicate {
	return func(ctx Context) Outcome {
		matches := e.query.Find(ctx)
		if len(matches) > 0 {
			return pass(fmt.Sprintf("%s: matched %d element(s)", e.label, len(matches)))
		}
		return fail(fmt.Sprintf("%s: matched no elements", e.label))
	}
}

// NotToExist compiles to a predicate equivalent to NotExists.
func (e Expectation) NotToExist() Predicate {
	return Not(e.ToExist())
}

// ToBeVisible passes when at least one match is in-viewport and not
// occluded.
func (e Expectation) ToBeVisible() Predicate {
	return func(ctx Context) Outcome {
		for _, el := range e.query.Find(ctx) {
			if el.InViewport && !el.IsOccluded {
				return pass(fmt.Sprintf("%s: visible match found", e.label))
			}
		}
		return fail(fmt.Sprintf("%s: no visible match", e.label))
	}
}

// ToHaveTextContains passes when at least one match's text contains substr.
func (e Expectation) ToHaveTextContains(substr string) Predicate {
	return func(ctx Context) Outcome {
		for _, el := range e.query.Find(ctx) {
			if containsFold(el.Text, substr) {
				return pass(fmt.Sprintf("%s: text contains %q", e.label, substr))
			}
		}
		return fail(fmt.Sprintf("%s: no match with text containing %q", e.label, substr))
	}
}

// globalExpect holds the package-level scan-all-elements helpers.
type globalExpect struct{}

// ExpectGlobal exposes expect.textPresent/expect.noText-equivalent helpers
// that scan every element's text case-insensitively, rather than a single
// query's matches.
var ExpectGlobal globalExpect

// TextPresent passes when any element's text contains substr
// (case-insensitive).
func (globalExpect) TextPresent(substr string) Predicate {
	return func(ctx Context) Outcome {
		if ctx.Snapshot == nil {
			return fail("no snapshot")
		}
		for _, el := range ctx.Snapshot.Elements {
			if containsFold(el.Text, substr) {
				return pass(fmt.Sprintf("text %q present", substr))
			}
		}
		return fail(fmt.Sprintf("text %q not present", substr))
	}
}

// NoText passes when no element's text contains substr.
func (globalExpect) NoText(substr string) Predicate {
	return Not(ExpectGlobal.TextPresent(substr))
}
