package verify

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/anxuanzi/vera-go/snapshot"
)

// ElementQuery is a pure, order-deterministic filter over a snapshot's
// elements. Matching results are sorted by DocY ascending so "first match"
// semantics are stable regardless of the element ordering the extension
// bridge happened to produce.
type ElementQuery struct {
	Role            string
	Name            string
	Text            string
	TextContains    string
	HrefContains    string
	InViewport      *bool
	Occluded        *bool
	Group           string
	InDominantGroup *bool
	GroupIndex      *int
	FromDominantList bool
}

func boolPtr(b bool) *bool { return &b }

// Matches reports whether e satisfies every filter set on q. Unset filters
// (zero value / nil pointer) are ignored.
func (q ElementQuery) Matches(e snapshot.Element) bool {
	if q.Role != "" && !strings.EqualFold(e.Role, q.Role) {
		return false
	}
	if q.Name != "" && !strings.EqualFold(e.Text, q.Name) {
		return false
	}
	if q.Text != "" && !strings.EqualFold(e.Text, q.Text) {
		return false
	}
	if q.TextContains != "" && !containsFold(e.Text, q.TextContains) {
		return false
	}
	if q.HrefContains != "" && !containsFold(e.Href, q.HrefContains) {
		return false
	}
	if q.InViewport != nil && e.InViewport != *q.InViewport {
		return false
	}
	if q.Occluded != nil && e.IsOccluded != *q.Occluded {
		return false
	}
	if q.Group != "" && e.GroupKey != q.Group {
		return false
	}
	if q.InDominantGroup != nil && e.InDominantGroup != *q.InDominantGroup {
		return false
	}
	if q.GroupIndex != nil && e.GroupIndex != *q.GroupIndex {
		return false
	}
	if q.FromDominantList && !e.InDominantGroup {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// Find returns every matching element, sorted by document order (DocY
// ascending, falling back to BBox.Y/BBox.X).
func (q ElementQuery) Find(ctx Context) []snapshot.Element {
	if ctx.Snapshot == nil {
		return nil
	}
	var out []snapshot.Element
	for _, e := range ctx.Snapshot.Elements {
		if q.Matches(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		yi, yj := elemDocY(out[i]), elemDocY(out[j])
		if yi != yj {
			return yi < yj
		}
		if out[i].BBox.Y != out[j].BBox.Y {
			return out[i].BBox.Y < out[j].BBox.Y
		}
		return out[i].BBox.X < out[j].BBox.X
	})
	return out
}

func elemDocY(e snapshot.Element) float64 {
	if e.DocY != nil {
		return *e.DocY
	}
	return e.BBox.Y
}

// ParseSelector parses the semantic selector DSL spec.md §4.3 describes:
// `role=X`, `text~'Y'` (substring, case-insensitive), `href~Z`, combined
// with `&&` conjunctions. Anything else is a parse error — the grammar is
// intentionally small.
func ParseSelector(selector string) (ElementQuery, error) {
	q := ElementQuery{}
	clauses := strings.Split(selector, "&&")
	for _, raw := range clauses {
		clause := strings.TrimSpace(raw)
		if clause == "" {
			continue
		}
		if err := applyClause(&q, clause); err != nil {
			return ElementQuery{}, err
		}
	}
	return q, nil
}

func applyClause(q *ElementQuery, clause string) error {
	switch {
	case strings.HasPrefix(clause, "role="):
		q.Role = strings.TrimSpace(strings.TrimPrefix(clause, "role="))
	case strings.HasPrefix(clause, "text~"):
		val, err := parseQuoted(strings.TrimPrefix(clause, "text~"))
		if err != nil {
			return err
		}
		q.TextContains = val
	case strings.HasPrefix(clause, "href~"):
		raw := strings.TrimPrefix(clause, "href~")
		val, err := parseQuoted(raw)
		if err != nil {
			val = strings.TrimSpace(raw)
		}
		q.HrefContains = val
	default:
		return fmt.Errorf("verify: unrecognized selector clause %q", clause)
	}
	return nil
}

func parseQuoted(s string) (string, error) {
	s = strings.TrimSpace(s)
	unquoted, err := strconv.Unquote(strings.Replace(s, "'", "\"", -1))
	if err != nil {
		// Fall back to a bare strip of surrounding quote characters — the
		// selector DSL accepts both ' and " in practice.
		trimmed := strings.Trim(s, `'"`)
		if trimmed == s {
			return "", fmt.Errorf("verify: expected quoted string, got %q", s)
		}
		return trimmed, nil
	}
	return unquoted, nil
}
