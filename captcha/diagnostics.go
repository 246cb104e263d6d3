// Package captcha implements the passive/interactive evidence distinction
// and the gating policy spec.md §4.5 describes: passive evidence (e.g. an
// invisible recaptcha badge iframe) must never block progress; interactive
// evidence (a text or selector challenge) must, subject to policy.
package captcha

import "github.com/anxuanzi/vera-go/snapshot"

// Policy is the configured response to interactive captcha evidence.
type Policy string

const (
	// PolicyAbort fails the step immediately with a captcha error.
	PolicyAbort Policy = "abort"
	// PolicyCallback invokes a user-supplied handler and re-snapshots until
	// clear or timeout.
	PolicyCallback Policy = "callback"
)

// PolicyConfig bounds captcha gating behavior.
type PolicyConfig struct {
	Policy Policy
	// MinConfidence is the threshold interactive evidence must clear to
	// gate progress. Defaults to 0.95, matching spec.md's S4 example.
	MinConfidence float64
	PollMs        int
	TimeoutMs     int
}

// DefaultPolicyConfig matches spec.md's documented defaults (captcha wait
// timeout 120s).
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{Policy: PolicyAbort, MinConfidence: 0.95, PollMs: 1000, TimeoutMs: 120_000}
}

// Assessment is the result of inspecting a snapshot's captcha diagnostics
// against a PolicyConfig.
type Assessment struct {
	// Gating is true when interactive evidence at or above MinConfidence
	// was found — this is what should block step progress.
	Gating bool
	// Passive is true when only passive evidence (iframe_src_hits alone)
	// was found — this must never gate progress regardless of confidence.
	Passive bool
	Reason  string
}

// Assess inspects diag against cfg and classifies the evidence. A nil diag,
// or one with Detected == false, is never gating.
func Assess(diag *snapshot.CaptchaDiagnostics, cfg PolicyConfig) Assessment {
	if diag == nil || !diag.Detected {
		return Assessment{Reason: "no captcha detected"}
	}

	hasInteractive := len(diag.Evidence.SelectorHits) > 0 || len(diag.Evidence.TextHits) > 0
	hasOnlyPassive := !hasInteractive && len(diag.Evidence.IframeSrcHits) > 0

	if hasOnlyPassive {
		return Assessment{Passive: true, Reason: "passive evidence only (iframe badge), not gating"}
	}

	if hasInteractive && diag.Confidence >= cfg.MinConfidence {
		return Assessment{Gating: true, Reason: "interactive captcha evidence above confidence threshold"}
	}

	return Assessment{Reason: "interactive evidence below confidence threshold"}
}
