package captcha

import (
	"context"
	"fmt"
	"time"

	"github.com/anxuanzi/vera-go/snapshot"
)

// AbortError is returned when PolicyAbort gates a step on interactive
// captcha evidence.
type AbortError struct {
	Reason string
}

func (e *AbortError) Error() string { return fmt.Sprintf("captcha abort: %s", e.Reason) }

// Handler is the user-supplied callback PolicyCallback invokes; it performs
// whatever out-of-band action clears the challenge (human takeover, a
// solving service, ...) and returns when it believes the challenge is
// cleared. The SDK ships no solvers — this is interface-only.
type Handler func(ctx context.Context) error

// Resnapshotter re-acquires a snapshot so Gate can re-assess after the
// handler runs.
type Resnapshotter func(ctx context.Context) (*snapshot.Snapshot, error)

// Clock mirrors eventually.Clock's shape without importing it, keeping
// captcha a leaf package.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Gate inspects diag under cfg's policy. Passive evidence always passes
// through untouched. Interactive evidence under PolicyAbort returns an
// AbortError immediately. Under PolicyCallback, it invokes handler, then
// polls resnapshot (at cfg.PollMs) re-assessing until clear or cfg.TimeoutMs
// elapses.
func Gate(ctx context.Context, diag *snapshot.CaptchaDiagnostics, cfg PolicyConfig, handler Handler, resnapshot Resnapshotter, clock Clock) (Assessment, error) {
	assessment := Assess(diag, cfg)
	if !assessment.Gating {
		return assessment, nil
	}

	switch cfg.Policy {
	case PolicyAbort:
		return assessment, &AbortError{Reason: assessment.Reason}
	case PolicyCallback:
		if clock == nil {
			clock = realClock{}
		}
		if handler != nil {
			if err := handler(ctx); err != nil {
				return assessment, fmt.Errorf("captcha: handler failed: %w", err)
			}
		}
		start := clock.Now()
		timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
		poll := time.Duration(cfg.PollMs) * time.Millisecond
		for {
			latest, err := resnapshot(ctx)
			if err == nil {
				var latestDiag *snapshot.CaptchaDiagnostics
				if latest.Diagnostics != nil {
					latestDiag = latest.Diagnostics.Captcha
				}
				reassessed := Assess(latestDiag, cfg)
				if !reassessed.Gating {
					return reassessed, nil
				}
				assessment = reassessed
			}
			if clock.Now().Sub(start) >= timeout {
				return assessment, &AbortError{Reason: "captcha callback timed out: " + assessment.Reason}
			}
			if err := clock.Sleep(ctx, poll); err != nil {
				return assessment, fmt.Errorf("captcha: cancelled: %w", err)
			}
		}
	default:
		return assessment, fmt.Errorf("captcha: unknown policy %q", cfg.Policy)
	}
}
