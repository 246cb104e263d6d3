package captcha

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anxuanzi/vera-go/snapshot"
)

func TestAssessPassiveNeverGates(t *testing.T) {
	diag := &snapshot.CaptchaDiagnostics{
		Detected:   true,
		Confidence: 0.99,
		Evidence:   snapshot.CaptchaEvidence{IframeSrcHits: []string{"https://www.google.com/recaptcha/api2/anchor"}},
	}
	a := Assess(diag, DefaultPolicyConfig())
	if a.Gating {
		t.Fatal("passive evidence must never gate")
	}
	if !a.Passive {
		t.Fatal("expected evidence to be classified as passive")
	}
}

func TestAssessInteractiveAboveThresholdGates(t *testing.T) {
	diag := &snapshot.CaptchaDiagnostics{
		Detected:   true,
		Confidence: 0.95,
		Evidence:   snapshot.CaptchaEvidence{TextHits: []string{"I'm not a robot"}},
	}
	a := Assess(diag, DefaultPolicyConfig())
	if !a.Gating {
		t.Fatal("expected interactive evidence above threshold to gate")
	}
}

func TestAssessInteractiveBelowThresholdDoesNotGate(t *testing.T) {
	diag := &snapshot.CaptchaDiagnostics{
		Detected:   true,
		Confidence: 0.5,
		Evidence:   snapshot.CaptchaEvidence{TextHits: []string{"suspicious activity"}},
	}
	a := Assess(diag, DefaultPolicyConfig())
	if a.Gating {
		t.Fatal("expected below-threshold evidence to not gate")
	}
}

func TestGateAbortPolicy(t *testing.T) {
	diag := &snapshot.CaptchaDiagnostics{
		Detected:   true,
		Confidence: 0.95,
		Evidence:   snapshot.CaptchaEvidence{SelectorHits: []string{"#captcha-challenge"}},
	}
	_, err := Gate(context.Background(), diag, PolicyConfig{Policy: PolicyAbort, MinConfidence: 0.9}, nil, nil, nil)
	var abortErr *AbortError
	if !errors.As(err, &abortErr) {
		t.Fatalf("expected AbortError, got %v", err)
	}
}

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }
func (f *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	f.now = f.now.Add(d)
	return nil
}

func TestGateCallbackPolicyClearsAfterOnePoll(t *testing.T) {
	diag := &snapshot.CaptchaDiagnostics{
		Detected:   true,
		Confidence: 0.95,
		Evidence:   snapshot.CaptchaEvidence{TextHits: []string{"verify you are human"}},
	}
	handlerCalled := false
	handler := func(ctx context.Context) error {
		handlerCalled = true
		return nil
	}
	polls := 0
	resnapshot := func(ctx context.Context) (*snapshot.Snapshot, error) {
		polls++
		if polls >= 1 {
			return &snapshot.Snapshot{Diagnostics: &snapshot.Diagnostics{Captcha: &snapshot.CaptchaDiagnostics{Detected: false}}}, nil
		}
		return &snapshot.Snapshot{Diagnostics: &snapshot.Diagnostics{Captcha: diag}}, nil
	}

	clock := &fakeClock{now: time.Now()}
	cfg := PolicyConfig{Policy: PolicyCallback, MinConfidence: 0.9, PollMs: 100, TimeoutMs: 5000}
	a, err := Gate(context.Background(), diag, cfg, handler, resnapshot, clock)
	if err != nil {
		t.Fatalf("expected clean clearance, got %v", err)
	}
	if a.Gating {
		t.Fatal("expected assessment to clear")
	}
	if !handlerCalled {
		t.Fatal("expected handler to be invoked")
	}
}

func TestGateCallbackPolicyTimesOut(t *testing.T) {
	diag := &snapshot.CaptchaDiagnostics{
		Detected: true, Confidence: 0.95,
		Evidence: snapshot.CaptchaEvidence{TextHits: []string{"still blocked"}},
	}
	resnapshot := func(ctx context.Context) (*snapshot.Snapshot, error) {
		return &snapshot.Snapshot{Diagnostics: &snapshot.Diagnostics{Captcha: diag}}, nil
	}
	clock := &fakeClock{now: time.Now()}
	cfg := PolicyConfig{Policy: PolicyCallback, MinConfidence: 0.9, PollMs: 1000, TimeoutMs: 2000}
	_, err := Gate(context.Background(), diag, cfg, nil, resnapshot, clock)
	var abortErr *AbortError
	if !errors.As(err, &abortErr) {
		t.Fatalf("expected timeout to surface as AbortError, got %v", err)
	}
}
