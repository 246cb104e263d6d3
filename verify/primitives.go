package verify

import (
	"fmt"
	"regexp"
	"strings"
)

// UrlMatches passes when ctx.URL matches the given regular expression.
func UrlMatches(pattern string) Predicate {
	re, compileErr := regexp.Compile(pattern)
	return func(ctx Context) Outcome {
		if compileErr != nil {
			return fail(fmt.Sprintf("invalid url pattern %q: %v", pattern, compileErr))
		}
		if re.MatchString(ctx.URL) {
			return pass(fmt.Sprintf("url %q matches %q", ctx.URL, pattern))
		}
		return fail(fmt.Sprintf("url %q does not match %q", ctx.URL, pattern))
	}
}

// UrlContains passes when ctx.URL contains substr.
func UrlContains(substr string) Predicate {
	return func(ctx Context) Outcome {
		if strings.Contains(ctx.URL, substr) {
			return pass(fmt.Sprintf("url %q contains %q", ctx.URL, substr))
		}
		return fail(fmt.Sprintf("url %q does not contain %q", ctx.URL, substr))
	}
}

// Exists passes when at least one element matches the selector.
func Exists(selector string) Predicate {
	q, parseErr := ParseSelector(selector)
	return func(ctx Context) Outcome {
		if parseErr != nil {
			return fail(parseErr.Error())
		}
		matches := q.Find(ctx)
		if len(matches) > 0 {
			return pass(fmt.Sprintf("selector %q matched %d element(s)", selector, len(matches)))
		}
		return fail(fmt.Sprintf("selector %q matched no elements", selector))
	}
}

// NotExists passes when no element matches the selector.
func NotExists(selector string) Predicate {
	q, parseErr := ParseSelector(selector)
	return func(ctx Context) Outcome {
		if parseErr != nil {
			return fail(parseErr.Error())
		}
		matches := q.Find(ctx)
		if len(matches) == 0 {
			return pass(fmt.Sprintf("selector %q matched no elements", selector))
		}
		return fail(fmt.Sprintf("selector %q unexpectedly matched %d element(s)", selector, len(matches)))
	}
}

// CountBounds constrains ElementCount's acceptable match count. A zero value
// for Max means unbounded.
type CountBounds struct {
	Min int
	Max int
}

// ElementCount passes when the number of elements matching selector falls
// within [bounds.Min, bounds.Max] (Max == 0 meaning unbounded).
func ElementCount(selector string, bounds CountBounds) Predicate {
	q, parseErr := ParseSelector(selector)
	return func(ctx Context) Outcome {
		if parseErr != nil {
			return fail(parseErr.Error())
		}
		n := len(q.Find(ctx))
		if n < bounds.Min || (bounds.Max > 0 && n > bounds.Max) {
			return fail(fmt.Sprintf("selector %q matched %d elements, want [%d,%d]", selector, n, bounds.Min, bounds.Max))
		}
		return pass(fmt.Sprintf("selector %q matched %d elements", selector, n))
	}
}

// IsEnabled passes when the first element matching selector is not disabled.
func IsEnabled(selector string) Predicate {
	return stateCheck(selector, func(e boolFields) (bool, string) {
		if !e.Disabled {
			return true, "element is enabled"
		}
		return false, "element is disabled"
	})
}

// IsDisabled passes when the first element matching selector is disabled.
func IsDisabled(selector string) Predicate {
	return stateCheck(selector, func(e boolFields) (bool, string) {
		if e.Disabled {
			return true, "element is disabled"
		}
		return false, "element is not disabled"
	})
}

// IsChecked passes when the first element matching selector is checked.
func IsChecked(selector string) Predicate {
	return stateCheck(selector, func(e boolFields) (bool, string) {
		if e.Checked {
			return true, "element is checked"
		}
		return false, "element is not checked"
	})
}

// IsUnchecked passes when the first element matching selector is not checked.
func IsUnchecked(selector string) Predicate {
	return stateCheck(selector, func(e boolFields) (bool, string) {
		if !e.Checked {
			return true, "element is unchecked"
		}
		return false, "element is checked"
	})
}

// IsExpanded passes when the first element matching selector is expanded.
func IsExpanded(selector string) Predicate {
	return stateCheck(selector, func(e boolFields) (bool, string) {
		if e.Expanded {
			return true, "element is expanded"
		}
		return false, "element is not expanded"
	})
}

// IsCollapsed passes when the first element matching selector is not
// expanded.
func IsCollapsed(selector string) Predicate {
	return stateCheck(selector, func(e boolFields) (bool, string) {
		if !e.Expanded {
			return true, "element is collapsed"
		}
		return false, "element is expanded"
	})
}

// ValueEquals passes when the first element matching selector has exactly
// the given value.
func ValueEquals(selector, want string) Predicate {
	return stateCheck(selector, func(e boolFields) (bool, string) {
		if e.Value == want {
			return true, fmt.Sprintf("value equals %q", want)
		}
		return false, fmt.Sprintf("value %q does not equal %q", e.Value, want)
	})
}

// ValueContains passes when the first element matching selector has a value
// containing substr.
func ValueContains(selector, substr string) Predicate {
	return stateCheck(selector, func(e boolFields) (bool, string) {
		if strings.Contains(e.Value, substr) {
			return true, fmt.Sprintf("value contains %q", substr)
		}
		return false, fmt.Sprintf("value %q does not contain %q", e.Value, substr)
	})
}

// boolFields is the subset of snapshot.Element state predicates inspect.
type boolFields struct {
	Disabled bool
	Checked  bool
	Expanded bool
	Value    string
}

func stateCheck(selector string, test func(boolFields) (bool, string)) Predicate {
	q, parseErr := ParseSelector(selector)
	return func(ctx Context) Outcome {
		if parseErr != nil {
			return fail(parseErr.Error())
		}
		matches := q.Find(ctx)
		if len(matches) == 0 {
			return fail(fmt.Sprintf("selector %q matched no elements", selector))
		}
		e := matches[0]
		ok, reason := test(boolFields{Disabled: e.Disabled, Checked: e.Checked, Expanded: e.Expanded, Value: e.Value})
		if ok {
			return pass(reason)
		}
		return fail(reason)
	}
}

// DownloadCompleted passes when ctx.Downloads has an entry with
// Status == completed and, if filenameSubstr is non-empty, whose filename
// contains it.
func DownloadCompleted(filenameSubstr string) Predicate {
	return func(ctx Context) Outcome {
		for _, d := range ctx.Downloads {
			if d.Status != DownloadStatusCompleted {
				continue
			}
			if filenameSubstr == "" || strings.Contains(d.Filename, filenameSubstr) {
				return pass(fmt.Sprintf("download %q completed", d.Filename))
			}
		}
		return fail(fmt.Sprintf("no completed download matching %q", filenameSubstr))
	}
}
