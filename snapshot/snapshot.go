// Package snapshot implements the semantic page model: a point-in-time,
// immutable view of a browser page produced by the extension bridge, cached
// with staleness, and compacted for LLM prompts.
//
// A Snapshot is never mutated after it is returned. Elements carry no
// references to one another; the only relational concept is GroupKey, which
// groups like elements (e.g. search-result rows) without forming a graph.
package snapshot

import "fmt"

// Status is the outcome of a snapshot acquisition.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ViewportInfo describes the page's current viewport and scroll position, as
// derived from a JS evaluation against the backend. It is cached per step.
type ViewportInfo struct {
	Width         int
	Height        int
	ScrollX       int
	ScrollY       int
	ContentWidth  int
	ContentHeight int
}

// BoundingBox is always expressed in CSS viewport pixels.
type BoundingBox struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// VisualCues carries a handful of cheap, extension-computed signals about how
// prominent an element looks, used to bias importance scoring without a full
// layout pass.
type VisualCues struct {
	IsPrimary           bool
	BackgroundColorName string
	IsClickable         bool
}

// Element is an immutable, snapshot-scoped description of one interactive or
// structurally significant node. Its ID is unique within the Snapshot that
// produced it and must never be assumed stable across snapshots — the page
// may have re-rendered between two acquisitions.
type Element struct {
	ID         int
	Role       string
	Text       string
	Importance int

	BBox       BoundingBox
	VisualCues VisualCues

	InViewport bool
	IsOccluded bool
	ZIndex     int
	DocY       *float64

	GroupKey        string
	GroupIndex      int
	InDominantGroup bool

	Href     string
	Disabled bool
	Checked  bool
	Expanded bool
	Value    string
}

// CaptchaEvidence records what, specifically, triggered a captcha detection.
type CaptchaEvidence struct {
	IframeSrcHits []string
	SelectorHits  []string
	TextHits      []string
	URLHits       []string
}

// CaptchaDiagnostics is attached to a Snapshot when the extension's probe
// script found captcha-shaped markup on the page. Detection alone does not
// imply the challenge is blocking the user — see the captcha package for the
// passive/interactive distinction.
type CaptchaDiagnostics struct {
	Detected     bool
	Confidence   float64
	ProviderHint string
	Evidence     CaptchaEvidence
}

// Diagnostics is the snapshot-level diagnostic bag; today it carries only
// captcha evidence but is a struct (not a bare *CaptchaDiagnostics) so future
// diagnostic channels have somewhere to live without breaking callers.
type Diagnostics struct {
	Captcha *CaptchaDiagnostics
}

// Snapshot is an immutable value produced atomically by one extension call.
// Two snapshots of the same page state may assign different element IDs;
// nothing outside this package should compare IDs across snapshots.
type Snapshot struct {
	Status      Status
	URL         string
	TimestampMs int64
	Viewport    ViewportInfo
	Elements    []Element

	// DominantGroupKey is the GroupKey with the most members and the highest
	// aggregate importance, when the page has at least one such group.
	DominantGroupKey string

	Diagnostics *Diagnostics
}

// ByID returns the element with the given ID, if present in this snapshot.
func (s *Snapshot) ByID(id int) (*Element, bool) {
	for i := range s.Elements {
		if s.Elements[i].ID == id {
			return &s.Elements[i], true
		}
	}
	return nil, false
}

// DominantGroup returns the elements belonging to the snapshot's dominant
// group, in ascending GroupIndex order. Empty if no dominant group was
// computed.
func (s *Snapshot) DominantGroup() []Element {
	if s.DominantGroupKey == "" {
		return nil
	}
	out := make([]Element, 0, len(s.Elements))
	for _, e := range s.Elements {
		if e.GroupKey == s.DominantGroupKey {
			out = append(out, e)
		}
	}
	return out
}

// rankInDominantGroup computes, for every element in the dominant group, its
// rank (0-based, document order: DocY asc, then BBox.Y asc, then BBox.X asc)
// within the *full* dominant-group population. This is computed once over
// the whole population so that ordinals stay stable regardless of which
// subset of elements a later compaction pass selects — see spec's resolution
// of the ord-vs-group_index open question.
func (s *Snapshot) rankInDominantGroup() map[int]int {
	ranks := make(map[int]int)
	group := s.DominantGroup()
	if len(group) == 0 {
		return ranks
	}
	ordered := make([]Element, len(group))
	copy(ordered, group)
	sortByDocOrder(ordered)
	for i, e := range ordered {
		ranks[e.ID] = i
	}
	return ranks
}

func sortByDocOrder(elems []Element) {
	// Simple insertion sort: element counts in a compact snapshot are small
	// (tens, not thousands), and stability matters more than asymptotics.
	for i := 1; i < len(elems); i++ {
		for j := i; j > 0 && docOrderLess(elems[j], elems[j-1]); j-- {
			elems[j], elems[j-1] = elems[j-1], elems[j]
		}
	}
}

func docOrderLess(a, b Element) bool {
	ay, by := docY(a), docY(b)
	if ay != by {
		return ay < by
	}
	if a.BBox.Y != b.BBox.Y {
		return a.BBox.Y < b.BBox.Y
	}
	return a.BBox.X < b.BBox.X
}

func docY(e Element) float64 {
	if e.DocY != nil {
		return *e.DocY
	}
	return e.BBox.Y
}

// Validate checks the invariants spec.md §3 requires of a successfully
// acquired snapshot: unique element IDs, monotonic GroupIndex within a group,
// and InDominantGroup implying GroupKey == DominantGroupKey.
func (s *Snapshot) Validate() error {
	if s.Status != StatusSuccess {
		return nil
	}
	seen := make(map[int]bool, len(s.Elements))
	lastIndexByGroup := make(map[string]int)
	seenGroup := make(map[string]bool)
	for _, e := range s.Elements {
		if seen[e.ID] {
			return fmt.Errorf("snapshot: duplicate element id %d", e.ID)
		}
		seen[e.ID] = true

		if e.GroupKey != "" {
			if seenGroup[e.GroupKey] && e.GroupIndex < lastIndexByGroup[e.GroupKey] {
				return fmt.Errorf("snapshot: group %q index not monotonic (%d after %d)", e.GroupKey, e.GroupIndex, lastIndexByGroup[e.GroupKey])
			}
			lastIndexByGroup[e.GroupKey] = e.GroupIndex
			seenGroup[e.GroupKey] = true
		}

		if e.InDominantGroup && s.DominantGroupKey != "" && e.GroupKey != s.DominantGroupKey {
			return fmt.Errorf("snapshot: element %d marked in dominant group but group_key %q != dominant %q", e.ID, e.GroupKey, s.DominantGroupKey)
		}
	}
	return nil
}
