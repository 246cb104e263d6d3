// Package action parses the strict action grammar spec.md §6 defines —
// the executor's only channel back into the runtime. Grounded on the
// teacher's agent.go tool definitions (click/type_text/scroll/navigate as
// distinct, narrowly-typed operations), reworked from "structured tool call
// routed by the ADK" into "parse one line of text against a fixed grammar."
package action

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags which production an Action matched. Tagged variants over an
// interface, per spec.md §9's dynamic-dispatch design note.
type Kind int

const (
	Click Kind = iota
	Type
	Press
	ClickXY
	ClickRect
	Finish
)

func (k Kind) String() string {
	switch k {
	case Click:
		return "CLICK"
	case Type:
		return "TYPE"
	case Press:
		return "PRESS"
	case ClickXY:
		return "CLICK_XY"
	case ClickRect:
		return "CLICK_RECT"
	case Finish:
		return "FINISH"
	default:
		return "UNKNOWN"
	}
}

// Action is one parsed step of the grammar. Only the fields relevant to
// Kind are populated; the rest are zero.
type Action struct {
	Kind Kind

	ElementID int     // CLICK, TYPE
	Text      string  // TYPE
	Key       string  // PRESS
	X, Y      float64 // CLICK_XY, CLICK_RECT (top-left for CLICK_RECT)
	W, H      float64 // CLICK_RECT
}

// String re-serializes an Action to its canonical grammar form. Round-trip
// property per spec.md §8: Parse(a.String()) == a, modulo whitespace in the
// original input.
func (a Action) String() string {
	switch a.Kind {
	case Click:
		return fmt.Sprintf("CLICK(%d)", a.ElementID)
	case Type:
		return fmt.Sprintf("TYPE(%d,\"%s\")", a.ElementID, strings.ReplaceAll(a.Text, `"`, `\"`))
	case Press:
		return fmt.Sprintf("PRESS(\"%s\")", strings.ReplaceAll(a.Key, `"`, `\"`))
	case ClickXY:
		return fmt.Sprintf("CLICK_XY(%s,%s)", formatNum(a.X), formatNum(a.Y))
	case ClickRect:
		return fmt.Sprintf("CLICK_RECT(%s,%s,%s,%s)", formatNum(a.X), formatNum(a.Y), formatNum(a.W), formatNum(a.H))
	case Finish:
		return "FINISH()"
	default:
		return ""
	}
}

func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ParseError is the ActionParseError the spec's error taxonomy §7 names:
// fatal for the current action, never silently swallowed.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("action: parse %q: %s", e.Input, e.Reason)
}

// Parse matches raw against the strict action grammar. The keyword is
// case-insensitive; string payloads (TYPE's text, PRESS's key) are taken
// verbatim, case-sensitive. Unrecognized input is an *ParseError, never a
// best-effort guess.
func Parse(raw string) (Action, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Action{}, &ParseError{Input: raw, Reason: "empty input"}
	}

	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return Action{}, &ParseError{Input: raw, Reason: "missing call syntax NAME(...)"}
	}

	keyword := strings.ToUpper(strings.TrimSpace(s[:open]))
	body := s[open+1 : len(s)-1]

	switch keyword {
	case "CLICK":
		id, err := parseInt(body)
		if err != nil {
			return Action{}, &ParseError{Input: raw, Reason: "CLICK expects a single int argument: " + err.Error()}
		}
		return Action{Kind: Click, ElementID: id}, nil

	case "TYPE":
		id, text, err := parseIntAndString(body)
		if err != nil {
			return Action{}, &ParseError{Input: raw, Reason: "TYPE expects (int,\"text\"): " + err.Error()}
		}
		return Action{Kind: Type, ElementID: id, Text: text}, nil

	case "PRESS":
		key, err := parseString(strings.TrimSpace(body))
		if err != nil {
			return Action{}, &ParseError{Input: raw, Reason: "PRESS expects a single quoted string argument: " + err.Error()}
		}
		return Action{Kind: Press, Key: key}, nil

	case "CLICK_XY":
		nums, err := parseNums(body, 2)
		if err != nil {
			return Action{}, &ParseError{Input: raw, Reason: "CLICK_XY expects (num,num): " + err.Error()}
		}
		return Action{Kind: ClickXY, X: nums[0], Y: nums[1]}, nil

	case "CLICK_RECT":
		nums, err := parseNums(body, 4)
		if err != nil {
			return Action{}, &ParseError{Input: raw, Reason: "CLICK_RECT expects (num,num,num,num): " + err.Error()}
		}
		return Action{Kind: ClickRect, X: nums[0], Y: nums[1], W: nums[2], H: nums[3]}, nil

	case "FINISH":
		if strings.TrimSpace(body) != "" {
			return Action{}, &ParseError{Input: raw, Reason: "FINISH expects no arguments"}
		}
		return Action{Kind: Finish}, nil

	default:
		return Action{}, &ParseError{Input: raw, Reason: "unrecognized keyword " + keyword}
	}
}

func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not an int", s)
	}
	return n, nil
}

func parseNums(body string, want int) ([]float64, error) {
	parts := splitArgs(body)
	if len(parts) != want {
		return nil, fmt.Errorf("expected %d arguments, got %d", want, len(parts))
	}
	out := make([]float64, want)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", p)
		}
		out[i] = f
	}
	return out, nil
}

// parseString requires s to be a double-quoted string literal with no
// escaped quote handling beyond a literal backslash-quote pair — the
// grammar's payloads are flat text, not a general string-literal language.
func parseString(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("%q is not a quoted string", s)
	}
	inner := s[1 : len(s)-1]
	inner = strings.ReplaceAll(inner, `\"`, `"`)
	return inner, nil
}

// parseIntAndString splits TYPE's "<int>,\"<text>\"" body: the first
// top-level comma outside the quoted string separates the two arguments,
// since text itself may legitimately contain commas.
func parseIntAndString(body string) (int, string, error) {
	comma := strings.IndexByte(body, ',')
	if comma < 0 {
		return 0, "", fmt.Errorf("missing comma separator")
	}
	idPart := strings.TrimSpace(body[:comma])
	textPart := strings.TrimSpace(body[comma+1:])

	id, err := parseInt(idPart)
	if err != nil {
		return 0, "", err
	}
	text, err := parseString(textPart)
	if err != nil {
		return 0, "", err
	}
	return id, text, nil
}

// splitArgs splits a flat, quote-free argument list on top-level commas.
// CLICK_XY/CLICK_RECT arguments are always bare numbers, so no quote
// tracking is needed here (unlike parseIntAndString).
func splitArgs(body string) []string {
	if strings.TrimSpace(body) == "" {
		return nil
	}
	return strings.Split(body, ",")
}
