package verify

import (
	"testing"

	"github.com/anxuanzi/vera-go/snapshot"
)

func sampleSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Status: snapshot.StatusSuccess,
		URL:    "https://www.iana.org/help/example-domains",
		Elements: []snapshot.Element{
			{ID: 1, Role: "heading", Text: "Example Domain"},
			{ID: 2, Role: "link", Text: "More information...", Href: "https://www.iana.org/domains/example"},
			{ID: 3, Role: "textbox", Disabled: true, Value: "hello"},
			{ID: 4, Role: "checkbox", Checked: true},
		},
	}
}

func TestPredicatePurity(t *testing.T) {
	ctx := Context{Snapshot: sampleSnapshot(), URL: sampleSnapshot().URL}
	p := Exists("role=link && text~'More'")
	o1 := p(ctx)
	o2 := p(ctx)
	if o1.Passed != o2.Passed || o1.Reason != o2.Reason {
		t.Fatalf("predicate not pure: %+v vs %+v", o1, o2)
	}
}

func TestUrlContainsAndMatches(t *testing.T) {
	ctx := Context{URL: "https://www.iana.org/help/example-domains"}
	if !UrlContains("iana.org")(ctx).Passed {
		t.Error("expected urlContains to pass")
	}
	if UrlContains("example.com")(ctx).Passed {
		t.Error("expected urlContains to fail")
	}
	if !UrlMatches(`iana\.org/help`)(ctx).Passed {
		t.Error("expected urlMatches to pass")
	}
}

func TestExistsAndNotExists(t *testing.T) {
	ctx := Context{Snapshot: sampleSnapshot()}
	if !Exists("role=heading")(ctx).Passed {
		t.Error("expected role=heading to exist")
	}
	if !NotExists("role=button")(ctx).Passed {
		t.Error("expected role=button to not exist")
	}
}

func TestElementCountBounds(t *testing.T) {
	ctx := Context{Snapshot: sampleSnapshot()}
	if !ElementCount("role=link", CountBounds{Min: 1, Max: 1})(ctx).Passed {
		t.Error("expected exactly one link")
	}
	if ElementCount("role=link", CountBounds{Min: 2})(ctx).Passed {
		t.Error("expected min 2 links to fail")
	}
}

func TestStatePredicates(t *testing.T) {
	ctx := Context{Snapshot: sampleSnapshot()}
	if !IsDisabled("role=textbox")(ctx).Passed {
		t.Error("expected textbox to be disabled")
	}
	if !IsChecked("role=checkbox")(ctx).Passed {
		t.Error("expected checkbox to be checked")
	}
	if !ValueEquals("role=textbox", "hello")(ctx).Passed {
		t.Error("expected textbox value to equal hello")
	}
}

func TestDownloadCompleted(t *testing.T) {
	ctx := Context{Downloads: []Download{{Filename: "report.csv", Status: DownloadStatusCompleted}}}
	if !DownloadCompleted("report.csv")(ctx).Passed {
		t.Error("expected download completed to pass")
	}
	if DownloadCompleted("other")(ctx).Passed {
		t.Error("expected download completed to fail for mismatched filename")
	}
}

func TestAllOfCollectsFailures(t *testing.T) {
	ctx := Context{Snapshot: sampleSnapshot()}
	p := AllOf(Exists("role=heading"), Exists("role=button"), Exists("role=banana"))
	o := p(ctx)
	if o.Passed {
		t.Fatal("expected allOf to fail")
	}
	if o.Reason == "" {
		t.Fatal("expected non-empty combined failure reason")
	}
}

func TestAnyOfFirstPass(t *testing.T) {
	ctx := Context{Snapshot: sampleSnapshot()}
	p := AnyOf(Exists("role=button"), Exists("role=heading"))
	if !p(ctx).Passed {
		t.Fatal("expected anyOf to pass")
	}
}

func TestNotInverts(t *testing.T) {
	ctx := Context{Snapshot: sampleSnapshot()}
	if Not(Exists("role=heading"))(ctx).Passed {
		t.Fatal("expected Not(exists) to fail when element exists")
	}
}

func TestCustomRecoversFromPanic(t *testing.T) {
	p := Custom(func(ctx Context) (bool, string) {
		panic("boom")
	}, "custom-check")
	o := p(Context{})
	if o.Passed {
		t.Fatal("expected panicking custom predicate to fail, not panic")
	}
}

func TestExpectFluentLayer(t *testing.T) {
	ctx := Context{Snapshot: sampleSnapshot()}
	q := ElementQuery{Role: "link"}
	if !Expect(q).ToExist()(ctx).Passed {
		t.Error("expected link to exist")
	}
	if !Expect(q).ToHaveTextContains("More")(ctx).Passed {
		t.Error("expected link text to contain More")
	}
}

func TestExpectGlobalTextPresent(t *testing.T) {
	ctx := Context{Snapshot: sampleSnapshot()}
	if !ExpectGlobal.TextPresent("Example Domain")(ctx).Passed {
		t.Error("expected global text scan to find Example Domain")
	}
	if !ExpectGlobal.NoText("nonexistent phrase")(ctx).Passed {
		t.Error("expected noText to pass for absent phrase")
	}
}
