package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/anxuanzi/vera-go/trace"
)

// ScrollOptions bounds one ScrollBy call.
type ScrollOptions struct {
	Verify     bool
	MinDeltaPx float64
	TimeoutMs  int
	PollMs     int
	JSFallback bool
	Label      string
	Required   bool
}

func (o ScrollOptions) pollInterval() time.Duration {
	if o.PollMs > 0 {
		return time.Duration(o.PollMs) * time.Millisecond
	}
	return 100 * time.Millisecond
}

func (o ScrollOptions) timeout() time.Duration {
	if o.TimeoutMs > 0 {
		return time.Duration(o.TimeoutMs) * time.Millisecond
	}
	return 5 * time.Second
}

// ScrollBy dispatches a wheel event and, if opts.Verify, proves progress by
// polling scrollY before/after rather than assuming the event landed —
// overlays and nested scrollers silently absorb wheel events. Returns
// whether the scroll was proven (always true when !opts.Verify and the
// dispatch itself did not error).
func (r *Runtime) ScrollBy(ctx context.Context, deltaY float64, opts ScrollOptions) (bool, error) {
	if err := r.ensureStepOpen(ctx); err != nil {
		return false, err
	}

	label := opts.Label
	if label == "" {
		label = "scroll"
	}

	before, err := r.readScrollY(ctx)
	if err != nil && opts.Verify {
		return false, fmt.Errorf("runtime: scroll: read initial scrollY: %w", err)
	}

	if err := r.backend.Wheel(ctx, deltaY, nil, nil); err != nil {
		return false, fmt.Errorf("runtime: scroll: dispatch wheel: %w", err)
	}

	if !opts.Verify {
		return true, nil
	}

	ok, after, verr := r.pollScrollProgress(ctx, before, opts)
	if !ok && opts.JSFallback {
		if _, ferr := r.backend.Eval(ctx, jsScrollByExpr(deltaY)); ferr == nil {
			ok, after, verr = r.pollScrollProgress(ctx, before, opts)
		}
	}

	result := VerificationResult{
		Label: label, Required: opts.Required,
		Passed: ok, Kind: trace.KindScroll, Attempts: 1,
		Details: map[string]any{"before": before, "after": after, "delta": after - before},
	}
	if ok {
		result.Reason = fmt.Sprintf("scrollY moved %.0fpx (>= %.0fpx required)", after-before, opts.MinDeltaPx)
	} else {
		result.Reason = fmt.Sprintf("scrollY moved %.0fpx, short of %.0fpx required", after-before, opts.MinDeltaPx)
		if verr != nil {
			result.Reason = fmt.Sprintf("%s (%v)", result.Reason, verr)
		}
	}
	r.recordVerification(ctx, result)
	return ok, nil
}

func jsScrollByExpr(deltaY float64) string {
	return fmt.Sprintf(`(() => { (document.scrollingElement || document.documentElement).scrollBy(0, %f); return true; })()`, deltaY)
}

func (r *Runtime) readScrollY(ctx context.Context) (float64, error) {
	v, err := r.backend.Eval(ctx, `window.scrollY || document.documentElement.scrollTop || 0`)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("unexpected scrollY type %T", v)
	}
}

func (r *Runtime) pollScrollProgress(ctx context.Context, before float64, opts ScrollOptions) (bool, float64, error) {
	deadline := time.Now().Add(opts.timeout())
	poll := opts.pollInterval()
	after := before

	for {
		v, err := r.readScrollY(ctx)
		if err == nil {
			after = v
			if absF(after-before) >= opts.MinDeltaPx {
				return true, after, nil
			}
		}
		if time.Now().After(deadline) {
			return false, after, nil
		}
		t := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return false, after, ctx.Err()
		case <-t.C:
		}
	}
}

func absF(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
