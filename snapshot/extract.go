package snapshot

import (
	"context"
	"fmt"
	"time"
)

// bridgeEvaluator is the subset of backend.Backend the extraction layer
// needs. Declared locally (rather than importing backend.Backend directly)
// so snapshot has no compile-time dependency on the backend package's wider
// surface — only Eval/Call/GetURL are required to talk to the extension
// bridge.
type bridgeEvaluator interface {
	Eval(ctx context.Context, expression string) (any, error)
	Call(ctx context.Context, functionDeclaration string, args ...any) (any, error)
	GetURL(ctx context.Context) (string, error)
}

// ExtensionNotLoadedError is raised when the extension-ready poll (default
// 5s) expires without the bridge ever defining its snapshot function.
type ExtensionNotLoadedError struct {
	Diagnostics map[string]any
}

func (e *ExtensionNotLoadedError) Error() string {
	return fmt.Sprintf("extension not loaded: %v", e.Diagnostics)
}

// SnapshotError is raised when the extension call itself returns nil.
type SnapshotError struct {
	URL string
}

func (e *SnapshotError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("snapshot error at %s", e.URL)
	}
	return "snapshot error"
}

// probeScript reports whether the bridge is defined and a snapshot is
// available, for ExtensionNotLoadedError's diagnostics bag.
const probeScript = `() => ({
	defined: typeof window.__veraSnapshot === "function",
	snapshotAvailable: !!window.__veraSnapshotReady,
	url: window.location.href,
	extensionId: window.__veraExtensionId || null,
})`

const bridgeFunctionName = "__veraSnapshot"

// Extractor acquires Snapshots by polling for the extension bridge and
// invoking it through a bridgeEvaluator (normally a backend.Backend).
type Extractor struct {
	eval bridgeEvaluator

	// ExtensionReadyTimeout bounds the initial poll for the bridge
	// function; default 5s per spec.md §5.
	ExtensionReadyTimeout time.Duration
	// ExtensionPollInterval is how often the probe script re-runs.
	ExtensionPollInterval time.Duration

	sleep func(context.Context, time.Duration) error
}

// NewExtractor wraps the given evaluator with spec-mandated defaults.
func NewExtractor(eval bridgeEvaluator) *Extractor {
	return &Extractor{
		eval:                  eval,
		ExtensionReadyTimeout: 5 * time.Second,
		ExtensionPollInterval: 100 * time.Millisecond,
		sleep:                 defaultSleep,
	}
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Acquire implements the snapshot acquisition sequence from spec.md §4.2:
// wait for the extension, call it with options, and fail with a structured
// error if the extension never loads or returns nil.
func (x *Extractor) Acquire(ctx context.Context, opts Options) (*Snapshot, error) {
	if err := x.waitForExtension(ctx); err != nil {
		return nil, err
	}

	raw, err := x.eval.Call(ctx, bridgeFunctionName, compactOptionsArg(opts))
	if err != nil {
		return nil, fmt.Errorf("snapshot: extension call failed: %w", err)
	}
	if raw == nil {
		url, _ := x.eval.GetURL(ctx)
		return nil, &SnapshotError{URL: url}
	}

	snap, err := decodeSnapshot(raw)
	if err != nil {
		return nil, fmt.Errorf("snapshot: decode failed: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("snapshot: invalid: %w", err)
	}
	return snap, nil
}

func (x *Extractor) waitForExtension(ctx context.Context) error {
	deadline := time.Now().Add(x.ExtensionReadyTimeout)
	var lastDiag map[string]any
	for {
		result, err := x.eval.Eval(ctx, "("+probeScript+")()")
		if err == nil {
			if diag, ok := result.(map[string]any); ok {
				lastDiag = diag
				if defined, _ := diag["defined"].(bool); defined {
					return nil
				}
			}
		}
		if time.Now().After(deadline) {
			return &ExtensionNotLoadedError{Diagnostics: lastDiag}
		}
		if err := x.sleep(ctx, x.ExtensionPollInterval); err != nil {
			return err
		}
	}
}

func compactOptionsArg(opts Options) map[string]any {
	arg := map[string]any{}
	if opts.Limit > 0 {
		arg["limit"] = opts.Limit
	}
	filter := map[string]any{}
	if opts.Filter.Clickable {
		filter["clickable"] = true
	}
	if opts.Filter.Visible {
		filter["visible"] = true
	}
	if opts.Filter.InViewport {
		filter["inViewport"] = true
	}
	if len(filter) > 0 {
		arg["filter"] = filter
	}
	if opts.Screenshot.Attach {
		arg["screenshot"] = map[string]any{
			"format":  opts.Screenshot.Format,
			"quality": opts.Screenshot.Quality,
		}
	}
	if opts.ShowOverlay {
		arg["showOverlay"] = true
	}
	if opts.ShowGrid {
		arg["showGrid"] = true
		if opts.GridID != 0 {
			arg["gridId"] = opts.GridID
		}
	}
	return arg
}

// decodeSnapshot converts the loosely-typed JSON-ish value returned by the
// extension bridge into a typed Snapshot. The bridge is external glue
// (spec.md §1 explicitly excludes its JS source from scope), so this is a
// defensive, field-by-field decode rather than a json.Unmarshal into a typed
// struct — the wire shape is a map[string]any coming back from a CDP/
// Playwright JS evaluation, not JSON text.
func decodeSnapshot(raw any) (*Snapshot, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected snapshot shape %T", raw)
	}

	snap := &Snapshot{Status: StatusSuccess}
	if status, ok := m["status"].(string); ok && status != "" {
		snap.Status = Status(status)
	}
	snap.URL, _ = m["url"].(string)
	if ts, ok := asFloat(m["timestamp"]); ok {
		snap.TimestampMs = int64(ts)
	}
	snap.DominantGroupKey, _ = m["dominant_group_key"].(string)

	if vp, ok := m["viewport"].(map[string]any); ok {
		snap.Viewport = decodeViewport(vp)
	}

	if elemsRaw, ok := m["elements"].([]any); ok {
		snap.Elements = make([]Element, 0, len(elemsRaw))
		for _, er := range elemsRaw {
			em, ok := er.(map[string]any)
			if !ok {
				continue
			}
			snap.Elements = append(snap.Elements, decodeElement(em))
		}
	}

	if diagRaw, ok := m["diagnostics"].(map[string]any); ok {
		snap.Diagnostics = decodeDiagnostics(diagRaw)
	}

	return snap, nil
}

func decodeViewport(vp map[string]any) ViewportInfo {
	v := ViewportInfo{}
	v.Width = asInt(vp["width"])
	v.Height = asInt(vp["height"])
	v.ScrollX = asInt(vp["scrollX"])
	v.ScrollY = asInt(vp["scrollY"])
	v.ContentWidth = asInt(vp["contentWidth"])
	v.ContentHeight = asInt(vp["contentHeight"])
	return v
}

func decodeElement(em map[string]any) Element {
	e := Element{}
	e.ID = asInt(em["id"])
	e.Role, _ = em["role"].(string)
	e.Text, _ = em["text"].(string)
	e.Importance = asInt(em["importance"])

	if bbox, ok := em["bbox"].(map[string]any); ok {
		e.BBox = BoundingBox{
			X:      asFloatOr(bbox["x"], 0),
			Y:      asFloatOr(bbox["y"], 0),
			Width:  asFloatOr(bbox["width"], 0),
			Height: asFloatOr(bbox["height"], 0),
		}
	}
	if vc, ok := em["visual_cues"].(map[string]any); ok {
		e.VisualCues = VisualCues{
			IsPrimary:           asBool(vc["is_primary"]),
			BackgroundColorName: strOr(vc["background_color_name"]),
			IsClickable:         asBool(vc["is_clickable"]),
		}
	}
	e.InViewport = asBool(em["in_viewport"])
	e.IsOccluded = asBool(em["is_occluded"])
	e.ZIndex = asInt(em["z_index"])
	if dy, ok := asFloat(em["doc_y"]); ok {
		e.DocY = &dy
	}
	e.GroupKey, _ = em["group_key"].(string)
	e.GroupIndex = asInt(em["group_index"])
	e.InDominantGroup = asBool(em["in_dominant_group"])
	e.Href = strOr(em["href"])
	e.Disabled = asBool(em["disabled"])
	e.Checked = asBool(em["checked"])
	e.Expanded = asBool(em["expanded"])
	e.Value = strOr(em["value"])
	return e
}

func decodeDiagnostics(m map[string]any) *Diagnostics {
	d := &Diagnostics{}
	if c, ok := m["captcha"].(map[string]any); ok {
		diag := &CaptchaDiagnostics{
			Detected:     asBool(c["detected"]),
			Confidence:   asFloatOr(c["confidence"], 0),
			ProviderHint: strOr(c["provider_hint"]),
		}
		if ev, ok := c["evidence"].(map[string]any); ok {
			diag.Evidence = CaptchaEvidence{
				IframeSrcHits: asStringSlice(ev["iframe_src_hits"]),
				SelectorHits:  asStringSlice(ev["selector_hits"]),
				TextHits:      asStringSlice(ev["text_hits"]),
				URLHits:       asStringSlice(ev["url_hits"]),
			}
		}
		d.Captcha = diag
	}
	return d
}

func asInt(v any) int {
	f, _ := asFloat(v)
	return int(f)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asFloatOr(v any, fallback float64) float64 {
	if f, ok := asFloat(v); ok {
		return f
	}
	return fallback
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func strOr(v any) string {
	s, _ := v.(string)
	return s
}

func asStringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
