// Package trace implements the structured event stream the runtime emits
// to: step_start/step_end/snapshot/action/verification/error events, written
// append-only to one or more pluggable sinks. This is the runtime's only
// channel to the outside world for observability.
package trace

// Type enumerates the event kinds spec.md §4.7/§6 name.
type Type string

const (
	TypeStepStart   Type = "step_start"
	TypeStepEnd     Type = "step_end"
	TypeSnapshot    Type = "snapshot"
	TypeAction      Type = "action"
	TypeVerification Type = "verification"
	TypeError       Type = "error"
)

// VerificationKind distinguishes what produced a verification event.
type VerificationKind string

const (
	KindAssert     VerificationKind = "assert"
	KindAssertDone VerificationKind = "assertDone"
	KindScroll     VerificationKind = "scroll"
	KindCustom     VerificationKind = "custom"
	KindCaptcha    VerificationKind = "captcha"
)

// Event is one JSONL record. Data carries type-specific fields; the shared
// envelope fields (Type/RunID/StepID/TimestampMs) are always present.
type Event struct {
	Type        Type           `json:"type"`
	RunID       string         `json:"run_id"`
	StepID      string         `json:"step_id,omitempty"`
	TimestampMs int64          `json:"ts"`
	Data        map[string]any `json:"data,omitempty"`
}

// VerificationData is the additional shape a verification event's Data
// carries, per spec.md §6.
type VerificationData struct {
	Label     string           `json:"label"`
	Required  bool             `json:"required"`
	Passed    bool             `json:"passed"`
	Reason    string           `json:"reason"`
	Kind      VerificationKind `json:"kind"`
	Attempts  int              `json:"attempts"`
	Details   map[string]any   `json:"details,omitempty"`
}

// ToMap renders VerificationData as the map Event.Data expects.
func (v VerificationData) ToMap() map[string]any {
	return map[string]any{
		"label":    v.Label,
		"required": v.Required,
		"passed":   v.Passed,
		"reason":   v.Reason,
		"kind":     v.Kind,
		"attempts": v.Attempts,
		"details":  v.Details,
	}
}
