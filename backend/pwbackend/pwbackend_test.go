package pwbackend

import (
	"testing"

	"github.com/anxuanzi/vera-go/backend"
)

func TestPwButton(t *testing.T) {
	cases := map[backend.MouseButton]string{
		backend.MouseButtonLeft:      "left",
		backend.MouseButtonRight:     "right",
		backend.MouseButtonMiddle:    "middle",
		backend.MouseButton("bogus"): "left",
	}
	for in, want := range cases {
		if got := pwButton(in); got != want {
			t.Errorf("pwButton(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestToInt(t *testing.T) {
	if got := toInt(float64(42)); got != 42 {
		t.Errorf("toInt(float64(42)) = %d, want 42", got)
	}
	if got := toInt(7); got != 7 {
		t.Errorf("toInt(7) = %d, want 7", got)
	}
	if got := toInt("nope"); got != 0 {
		t.Errorf("toInt(unsupported) = %d, want 0", got)
	}
}
