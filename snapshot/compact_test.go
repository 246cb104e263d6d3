package snapshot

import (
	"strings"
	"testing"
)

func TestCompactForLLMFieldCount(t *testing.T) {
	s := &Snapshot{
		DominantGroupKey: "results",
		Elements: []Element{
			{ID: 1, Role: "link", Text: "First result with a fairly long label text", Importance: 100, Href: "https://go.dev/doc/"},
			{ID: 2, Role: "button", Text: "Search", Importance: 80},
			{ID: 3, Role: "link", Text: "Second", Importance: 40, GroupKey: "results", GroupIndex: 0, InDominantGroup: true},
			{ID: 4, Role: "link", Text: "Third", Importance: 30, GroupKey: "results", GroupIndex: 1, InDominantGroup: true},
			{ID: 5, Role: "img", Text: "decorative", Importance: 999}, // not an interactive role
		},
	}

	lines := s.CompactForLLM(SelectionCardinality{ByImportance: 2, FromDominantGroup: 2, ByPosition: 0})
	if len(lines) != 4 {
		t.Fatalf("expected 4 selected lines, got %d: %v", len(lines), lines)
	}
	for _, line := range lines {
		if n := strings.Count(line, "|"); n != 8 {
			t.Errorf("line %q has %d pipes, want 8", line, n)
		}
	}
}

func TestCompactForLLMTextTruncation(t *testing.T) {
	s := &Snapshot{
		Elements: []Element{
			{ID: 1, Role: "button", Text: "  this   text has   lots of   whitespace and exceeds thirty characters  ", Importance: 1},
		},
	}
	lines := s.CompactForLLM(SelectionCardinality{ByImportance: 10})
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	fields := strings.Split(lines[0], "|")
	text := fields[2]
	if len(text) > maxCompactTextLen {
		t.Errorf("text field %q exceeds %d chars", text, maxCompactTextLen)
	}
	if !strings.HasSuffix(text, "...") {
		t.Errorf("expected truncated text to end with ..., got %q", text)
	}
	if strings.Contains(text, "  ") {
		t.Errorf("expected whitespace-normalized text, got %q", text)
	}
}

func TestCompactForLLMDominantGroupOrdinal(t *testing.T) {
	s := &Snapshot{
		DominantGroupKey: "results",
		Elements: []Element{
			{ID: 1, Role: "link", Text: "no group", Importance: 100},
			{ID: 3, Role: "link", Text: "in group rank 0", Importance: 40, GroupKey: "results", GroupIndex: 0, DocY: floatp(100)},
			{ID: 4, Role: "link", Text: "in group rank 1", Importance: 30, GroupKey: "results", GroupIndex: 1, DocY: floatp(300)},
		},
	}
	lines := s.CompactForLLM(SelectionCardinality{ByImportance: 10, FromDominantGroup: 10})
	byID := map[string]string{}
	for _, l := range lines {
		id := strings.SplitN(l, "|", 2)[0]
		byID[id] = l
	}
	if f := strings.Split(byID["1"], "|"); len(f) != 9 || f[6] != "-" || f[7] != "0" {
		t.Errorf("element 1 (no group) should have ord=- DG=0, got %q", byID["1"])
	}
	if f := strings.Split(byID["3"], "|"); len(f) != 9 || f[6] != "0" || f[7] != "1" {
		t.Errorf("element 3 (rank 0) should have ord=0 DG=1, got %q", byID["3"])
	}
}

func TestCompactHref(t *testing.T) {
	cases := map[string]string{
		"https://www.iana.org/help/example-domains": "iana.org",
		"/relative/path/segment":                     "segment",
		"":                                            "-",
	}
	for in, want := range cases {
		if got := compactHref(in); got != want {
			t.Errorf("compactHref(%q) = %q, want %q", in, got, want)
		}
	}
}
