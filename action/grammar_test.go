package action

import "testing"

func TestParseValidActions(t *testing.T) {
	cases := []struct {
		input string
		want  Action
	}{
		{"CLICK(42)", Action{Kind: Click, ElementID: 42}},
		{"click(7)", Action{Kind: Click, ElementID: 7}},
		{`TYPE(3,"hello world")`, Action{Kind: Type, ElementID: 3, Text: "hello world"}},
		{`PRESS("Enter")`, Action{Kind: Press, Key: "Enter"}},
		{`press("a")`, Action{Kind: Press, Key: "a"}},
		{"CLICK_XY(10.5,20)", Action{Kind: ClickXY, X: 10.5, Y: 20}},
		{"CLICK_RECT(0,0,100,50)", Action{Kind: ClickRect, X: 0, Y: 0, W: 100, H: 50}},
		{"FINISH()", Action{Kind: Finish}},
		{"  FINISH()  ", Action{Kind: Finish}},
	}
	for _, c := range cases {
		got, err := Parse(c.input)
		if err != nil {
			t.Errorf("Parse(%q) error = %v", c.input, err)
			continue
		}
		if got != c.want {
			t.Errorf("Parse(%q) = %+v, want %+v", c.input, got, c.want)
		}
	}
}

func TestParseCaseSensitivePayload(t *testing.T) {
	got, err := Parse(`PRESS("Enter")`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.Key != "Enter" {
		t.Errorf("Key = %q, want exact case preserved", got.Key)
	}
}

func TestParseRejectsUnrecognizedInput(t *testing.T) {
	cases := []string{
		"",
		"DANCE(1)",
		"CLICK",
		"CLICK(1",
		"CLICK(abc)",
		"TYPE(1,hello)",
		"TYPE(1)",
		`PRESS(Enter)`,
		"CLICK_XY(1)",
		"CLICK_XY(1,2,3)",
		"CLICK_RECT(1,2,3)",
		"FINISH(1)",
		"finish(extra)",
	}
	for _, in := range cases {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", in)
		} else if _, ok := err.(*ParseError); !ok {
			t.Errorf("Parse(%q) error type = %T, want *ParseError", in, err)
		}
	}
}

func TestParseTypeTextWithComma(t *testing.T) {
	got, err := Parse(`TYPE(5,"hello, world")`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.Text != "hello, world" {
		t.Errorf("Text = %q, want %q", got.Text, "hello, world")
	}
}

func TestRoundTrip(t *testing.T) {
	actions := []Action{
		{Kind: Click, ElementID: 12},
		{Kind: Type, ElementID: 3, Text: "search term"},
		{Kind: Press, Key: "Tab"},
		{Kind: ClickXY, X: 100, Y: 200.5},
		{Kind: ClickRect, X: 0, Y: 0, W: 50, H: 20},
		{Kind: Finish},
	}
	for _, a := range actions {
		serialized := a.String()
		reparsed, err := Parse(serialized)
		if err != nil {
			t.Errorf("Parse(%q) error = %v", serialized, err)
			continue
		}
		if reparsed != a {
			t.Errorf("round trip of %+v via %q = %+v", a, serialized, reparsed)
		}
	}
}

func TestKindString(t *testing.T) {
	if Click.String() != "CLICK" || Finish.String() != "FINISH" {
		t.Error("Kind.String() mismatch")
	}
}
