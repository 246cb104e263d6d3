package snapshot

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
)

// interactiveRoles is the fixed set of roles eligible for compact selection.
// Anything else (static text, decorative images, ...) never makes it into a
// compact prompt no matter how it scores.
var interactiveRoles = map[string]bool{
	"button": true, "link": true, "textbox": true, "searchbox": true,
	"combobox": true, "checkbox": true, "radio": true, "slider": true,
	"tab": true, "menuitem": true, "option": true, "switch": true,
	"cell": true, "a": true, "input": true, "select": true, "textarea": true,
}

// SelectionCardinality tunes the 3-way merge compact selection performs.
type SelectionCardinality struct {
	ByImportance     int
	FromDominantGroup int
	ByPosition       int
}

// DefaultCardinality matches spec.md's documented defaults.
var DefaultCardinality = SelectionCardinality{ByImportance: 60, FromDominantGroup: 15, ByPosition: 10}

const maxCompactTextLen = 30

// CompactForLLM renders the selected elements as pipe-delimited lines:
//
//	id|role|text|importance|is_primary|docYq|ord|DG|href
//
// Selection is a 3-way merge, de-duplicated, in this priority order: top-N by
// importance descending, top-N from the dominant group by GroupIndex, top-N
// by position (lowest DocY, importance-desc tiebreak). Only roles in the
// fixed interactive set are considered. The within-dominant-group rank is
// computed over the full dominant-group population before selection, so
// ordinals remain stable regardless of cardinality.
func (s *Snapshot) CompactForLLM(card SelectionCardinality) []string {
	eligible := make([]Element, 0, len(s.Elements))
	for _, e := range s.Elements {
		if interactiveRoles[strings.ToLower(e.Role)] {
			eligible = append(eligible, e)
		}
	}

	ranks := s.rankInDominantGroup()

	byImportance := make([]Element, len(eligible))
	copy(byImportance, eligible)
	sort.SliceStable(byImportance, func(i, j int) bool {
		return byImportance[i].Importance > byImportance[j].Importance
	})
	if len(byImportance) > card.ByImportance {
		byImportance = byImportance[:card.ByImportance]
	}

	var fromDominant []Element
	if s.DominantGroupKey != "" {
		group := make([]Element, 0)
		for _, e := range eligible {
			if e.GroupKey == s.DominantGroupKey {
				group = append(group, e)
			}
		}
		sort.SliceStable(group, func(i, j int) bool { return group[i].GroupIndex < group[j].GroupIndex })
		if len(group) > card.FromDominantGroup {
			group = group[:card.FromDominantGroup]
		}
		fromDominant = group
	}

	byPosition := make([]Element, len(eligible))
	copy(byPosition, eligible)
	sort.SliceStable(byPosition, func(i, j int) bool {
		yi, yj := docY(byPosition[i]), docY(byPosition[j])
		if yi != yj {
			return yi < yj
		}
		return byPosition[i].Importance > byPosition[j].Importance
	})
	if len(byPosition) > card.ByPosition {
		byPosition = byPosition[:card.ByPosition]
	}

	selected := make(map[int]Element)
	order := make([]int, 0, len(eligible))
	add := func(elems []Element) {
		for _, e := range elems {
			if _, ok := selected[e.ID]; !ok {
				order = append(order, e.ID)
			}
			selected[e.ID] = e
		}
	}
	add(byImportance)
	add(fromDominant)
	add(byPosition)

	lines := make([]string, 0, len(order))
	for _, id := range order {
		e := selected[id]
		lines = append(lines, compactLine(e, s.DominantGroupKey, ranks))
	}
	return lines
}

func compactLine(e Element, dominantKey string, ranks map[int]int) string {
	text := normalizeWhitespace(e.Text)
	text = truncateCompact(text, maxCompactTextLen)

	isPrimary := 0
	if e.VisualCues.IsPrimary {
		isPrimary = 1
	}

	docYq := int(math.Round(docY(e) / 200))

	ord := "-"
	dg := 0
	if dominantKey != "" && e.GroupKey == dominantKey {
		dg = 1
		if r, ok := ranks[e.ID]; ok {
			ord = fmt.Sprintf("%d", r)
		}
	}

	href := compactHref(e.Href)

	return fmt.Sprintf("%d|%s|%s|%d|%d|%d|%s|%d|%s",
		e.ID, e.Role, text, e.Importance, isPrimary, docYq, ord, dg, href)
}

func normalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// truncateCompact ellipsis-truncates to maxLen, keeping 27 chars plus "..."
// when the input exceeds 30 characters, matching spec.md's compact line rule.
func truncateCompact(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// compactHref renders the second-level domain, or the last path segment,
// truncated to 10 characters.
func compactHref(href string) string {
	if href == "" {
		return "-"
	}
	u, err := url.Parse(href)
	if err != nil || u.Host == "" {
		segs := strings.Split(strings.TrimRight(href, "/"), "/")
		last := segs[len(segs)-1]
		return truncateCompact(last, 10)
	}
	host := u.Host
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		host = parts[len(parts)-2] + "." + parts[len(parts)-1]
	}
	return truncateCompact(host, 10)
}
