// Package rodbackend implements backend.Backend over go-rod/rod, driving
// Chrome via the DevTools Protocol. It is the primary backend, grounded
// directly on the teacher's own browser package: multi-tab bookkeeping via a
// tabID->page map, raw mouse dispatch through proto.InputDispatchMouseEvent,
// per-character key dispatch through proto.InputDispatchKeyEvent, and a
// bounded WaitStable instead of an
// unbounded one so animated pages never hang a step.
package rodbackend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/anxuanzi/vera-go/backend"
)

// Config configures the viewport a new tab is created with.
type Config struct {
	ViewportWidth  int
	ViewportHeight int
}

// Backend drives a single rod.Browser, exposing the backend.Backend surface
// plus the optional TabManager and DownloadWatcher capabilities.
type Backend struct {
	mu     sync.RWMutex
	rod    *rod.Browser
	cfg    Config
	pages  map[string]*rod.Page
	active string

	lastMetrics backend.ViewportInfo

	downloads   map[string]backend.Download
	downloadsMu sync.Mutex
}

// New wraps an already-launched rod.Browser. The caller retains ownership of
// launching (and, via Close, of shutting down) the underlying process.
func New(rb *rod.Browser, cfg Config) *Backend {
	return &Backend{
		rod:       rb,
		cfg:       cfg,
		pages:     make(map[string]*rod.Page),
		downloads: make(map[string]backend.Download),
	}
}

func (b *Backend) activePageLocked() (*rod.Page, error) {
	if b.active == "" {
		return nil, fmt.Errorf("rodbackend: no active page")
	}
	page, ok := b.pages[b.active]
	if !ok {
		return nil, fmt.Errorf("rodbackend: active tab %q missing", b.active)
	}
	return page, nil
}

func waitStableBounded(page *rod.Page, stability, maxWait time.Duration) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = page.WaitStable(stability)
	}()
	select {
	case <-done:
	case <-time.After(maxWait):
	}
}

func (b *Backend) Navigate(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page, err := b.activePageLocked()
	if err != nil {
		tabID, cerr := b.createTabLocked(url)
		if cerr != nil {
			return &backend.BackendError{Op: "Navigate", Err: cerr}
		}
		page = b.pages[tabID]
	} else if err := page.Navigate(url); err != nil {
		return &backend.BackendError{Op: "Navigate", Err: err}
	}

	if err := page.WaitLoad(); err != nil {
		return &backend.BackendError{Op: "Navigate.WaitLoad", Err: err}
	}
	waitStableBounded(page, 300*time.Millisecond, 5*time.Second)
	return nil
}

func (b *Backend) createTabLocked(url string) (string, error) {
	page, err := b.rod.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	if b.cfg.ViewportWidth > 0 && b.cfg.ViewportHeight > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             b.cfg.ViewportWidth,
			Height:            b.cfg.ViewportHeight,
			DeviceScaleFactor: 1.0,
			Mobile:            false,
		}); err != nil {
			return "", fmt.Errorf("set viewport: %w", err)
		}
	}
	tabID := uuid.New().String()[:8]
	b.pages[tabID] = page
	b.active = tabID
	return tabID, nil
}

func (b *Backend) RefreshPageInfo(ctx context.Context) (backend.ViewportInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	page, err := b.activePageLocked()
	if err != nil {
		return backend.ViewportInfo{}, &backend.BackendError{Op: "RefreshPageInfo", Err: err}
	}

	result, err := page.Eval(`(() => ({
		width: window.innerWidth,
		height: window.innerHeight,
		scrollX: window.scrollX,
		scrollY: window.scrollY,
		contentWidth: document.documentElement.scrollWidth,
		contentHeight: document.documentElement.scrollHeight,
	}))()`)
	if err != nil {
		return backend.ViewportInfo{}, &backend.BackendError{Op: "RefreshPageInfo", Err: err}
	}

	info := backend.ViewportInfo{
		Width:         result.Value.Get("width").Int(),
		Height:        result.Value.Get("height").Int(),
		ScrollX:       result.Value.Get("scrollX").Int(),
		ScrollY:       result.Value.Get("scrollY").Int(),
		ContentWidth:  result.Value.Get("contentWidth").Int(),
		ContentHeight: result.Value.Get("contentHeight").Int(),
	}
	b.lastMetrics = info
	return info, nil
}

func (b *Backend) Eval(ctx context.Context, expression string) (any, error) {
	b.mu.RLock()
	page, err := b.activePageLocked()
	b.mu.RUnlock()
	if err != nil {
		return nil, &backend.BackendError{Op: "Eval", Err: err}
	}

	result, err := page.Eval(expression)
	if err != nil {
		return nil, &backend.EvalError{Text: err.Error()}
	}
	if !result.Value.Exists() {
		return nil, nil
	}
	var v any
	if err := result.Value.Unmarshal(&v); err != nil {
		return nil, &backend.BackendError{Op: "Eval.Unmarshal", Err: err}
	}
	return v, nil
}

func (b *Backend) Call(ctx context.Context, functionDeclaration string, args ...any) (any, error) {
	b.mu.RLock()
	page, err := b.activePageLocked()
	b.mu.RUnlock()
	if err != nil {
		return nil, &backend.BackendError{Op: "Call", Err: err}
	}

	result, err := page.Evaluate(rod.Eval(functionDeclaration, args...))
	if err != nil {
		return nil, &backend.EvalError{Text: err.Error()}
	}
	if !result.Value.Exists() {
		return nil, nil
	}
	var v any
	if err := result.Value.Unmarshal(&v); err != nil {
		return nil, &backend.BackendError{Op: "Call.Unmarshal", Err: err}
	}
	return v, nil
}

func (b *Backend) GetLayoutMetrics(ctx context.Context) (backend.LayoutMetrics, error) {
	b.mu.RLock()
	page, err := b.activePageLocked()
	b.mu.RUnlock()
	if err != nil {
		return backend.LayoutMetrics{}, &backend.BackendError{Op: "GetLayoutMetrics", Err: err}
	}

	metrics, err := proto.PageGetLayoutMetrics{}.Call(page)
	if err != nil {
		return backend.LayoutMetrics{}, &backend.BackendError{Op: "GetLayoutMetrics", Err: err}
	}

	dpr := 1.0
	cs := metrics.CSSVisualViewport
	return backend.LayoutMetrics{
		ViewportX:        cs.PageX,
		ViewportY:        cs.PageY,
		ViewportWidth:    cs.ClientWidth,
		ViewportHeight:   cs.ClientHeight,
		ContentWidth:     float64(metrics.CSSContentSize.Width),
		ContentHeight:    float64(metrics.CSSContentSize.Height),
		DevicePixelRatio: dpr,
	}, nil
}

// ScreenshotPNG always captures the viewport (never full-page): stitching a
// full-page capture re-renders fixed-position overlays once per scroll
// segment, which is exactly the artifact the teacher's Screenshot method
// avoids by passing fullPage=false.
func (b *Backend) ScreenshotPNG(ctx context.Context) ([]byte, error) {
	b.mu.RLock()
	page, err := b.activePageLocked()
	b.mu.RUnlock()
	if err != nil {
		return nil, &backend.BackendError{Op: "ScreenshotPNG", Err: err}
	}

	data, err := page.Screenshot(false, nil)
	if err != nil {
		return nil, &backend.BackendError{Op: "ScreenshotPNG", Err: err}
	}
	return data, nil
}

func (b *Backend) MouseMove(ctx context.Context, x, y float64) error {
	b.mu.RLock()
	page, err := b.activePageLocked()
	b.mu.RUnlock()
	if err != nil {
		return &backend.BackendError{Op: "MouseMove", Err: err}
	}

	err = proto.InputDispatchMouseEvent{
		Type: proto.InputDispatchMouseEventTypeMouseMoved,
		X:    x, Y: y,
	}.Call(page)
	if err != nil {
		return &backend.BackendError{Op: "MouseMove", Err: err}
	}
	return nil
}

func mouseButtonFor(b backend.MouseButton) proto.InputMouseButton {
	switch b {
	case backend.MouseButtonRight:
		return proto.InputMouseButtonRight
	case backend.MouseButtonMiddle:
		return proto.InputMouseButtonMiddle
	default:
		return proto.InputMouseButtonLeft
	}
}

func (b *Backend) MouseClick(ctx context.Context, x, y float64, button backend.MouseButton, clickCount int) error {
	b.mu.RLock()
	page, err := b.activePageLocked()
	b.mu.RUnlock()
	if err != nil {
		return &backend.BackendError{Op: "MouseClick", Err: err}
	}

	btn := mouseButtonFor(button)
	if clickCount <= 0 {
		clickCount = 1
	}

	if err := (proto.InputDispatchMouseEvent{
		Type: proto.InputDispatchMouseEventTypeMouseMoved,
		X:    x, Y: y, Button: btn,
	}).Call(page); err != nil {
		return &backend.BackendError{Op: "MouseClick.move", Err: err}
	}
	if err := (proto.InputDispatchMouseEvent{
		Type: proto.InputDispatchMouseEventTypeMousePressed,
		X:    x, Y: y, Button: btn, ClickCount: clickCount,
	}).Call(page); err != nil {
		return &backend.BackendError{Op: "MouseClick.press", Err: err}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(50 * time.Millisecond):
	}
	if err := (proto.InputDispatchMouseEvent{
		Type: proto.InputDispatchMouseEventTypeMouseReleased,
		X:    x, Y: y, Button: btn, ClickCount: clickCount,
	}).Call(page); err != nil {
		return &backend.BackendError{Op: "MouseClick.release", Err: err}
	}
	return nil
}

func (b *Backend) Wheel(ctx context.Context, deltaY float64, x, y *float64) error {
	b.mu.RLock()
	page, err := b.activePageLocked()
	last := b.lastMetrics
	b.mu.RUnlock()
	if err != nil {
		return &backend.BackendError{Op: "Wheel", Err: err}
	}

	px, py := float64(last.Width)/2, float64(last.Height)/2
	if x != nil {
		px = *x
	}
	if y != nil {
		py = *y
	}

	if err := page.Mouse.MoveTo(proto.Point{X: px, Y: py}); err != nil {
		return &backend.BackendError{Op: "Wheel.move", Err: err}
	}
	if err := page.Mouse.Scroll(0, deltaY, 1); err != nil {
		return &backend.BackendError{Op: "Wheel.scroll", Err: err}
	}
	return nil
}

func (b *Backend) TypeText(ctx context.Context, text string) error {
	b.mu.RLock()
	page, err := b.activePageLocked()
	b.mu.RUnlock()
	if err != nil {
		return &backend.BackendError{Op: "TypeText", Err: err}
	}

	for i, r := range text {
		if i > 0 {
			time.Sleep(10 * time.Millisecond)
		}
		for _, ev := range []proto.InputDispatchKeyEvent{
			{Type: proto.InputDispatchKeyEventTypeKeyDown},
			{Type: proto.InputDispatchKeyEventTypeChar, Text: string(r)},
			{Type: proto.InputDispatchKeyEventTypeKeyUp},
		} {
			if err := ev.Call(page); err != nil {
				return &backend.BackendError{Op: "TypeText", Err: err}
			}
		}
	}
	return nil
}

var namedKeys = map[string]input.Key{
	"Enter":      input.Enter,
	"Escape":     input.Escape,
	"Tab":        input.Tab,
	"Backspace":  input.Backspace,
	"Delete":     input.Delete,
	"ArrowUp":    input.ArrowUp,
	"ArrowDown":  input.ArrowDown,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
}

func (b *Backend) KeyPress(ctx context.Context, key string) error {
	b.mu.RLock()
	page, err := b.activePageLocked()
	b.mu.RUnlock()
	if err != nil {
		return &backend.BackendError{Op: "KeyPress", Err: err}
	}

	if k, ok := namedKeys[key]; ok {
		if err := page.Keyboard.Press(k); err != nil {
			return &backend.BackendError{Op: "KeyPress", Err: err}
		}
		return nil
	}
	if len([]rune(key)) == 1 {
		if err := page.InsertText(key); err != nil {
			return &backend.BackendError{Op: "KeyPress", Err: err}
		}
		return nil
	}
	return &backend.BackendError{Op: "KeyPress", Err: fmt.Errorf("unrecognized key %q", key)}
}

func (b *Backend) WaitReadyState(ctx context.Context, state backend.ReadyState, timeoutMs int) error {
	b.mu.RLock()
	page, err := b.activePageLocked()
	b.mu.RUnlock()
	if err != nil {
		return &backend.BackendError{Op: "WaitReadyState", Err: err}
	}

	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	want := string(state)
	for {
		result, err := page.Eval(`document.readyState`)
		if err == nil && (result.Value.Str() == want ||
			(state == backend.ReadyStateInteractive && result.Value.Str() == string(backend.ReadyStateComplete))) {
			return nil
		}
		if time.Now().After(deadline) {
			waited := time.Duration(timeoutMs) * time.Millisecond
			return &backend.TimeoutError{Op: "WaitReadyState:" + want, Waited: waited.String()}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (b *Backend) GetURL(ctx context.Context) (string, error) {
	b.mu.RLock()
	page, err := b.activePageLocked()
	b.mu.RUnlock()
	if err != nil {
		return "", &backend.BackendError{Op: "GetURL", Err: err}
	}
	info, err := page.Info()
	if err != nil {
		return "", &backend.BackendError{Op: "GetURL", Err: err}
	}
	return info.URL, nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for tabID, page := range b.pages {
		if page != nil {
			page.Close()
		}
		delete(b.pages, tabID)
	}
	b.active = ""

	if b.rod != nil {
		err := b.rod.Close()
		b.rod = nil
		return err
	}
	return nil
}

// NewTab, SwitchTab, CloseTab, ListTabs implement backend.TabManager.

func (b *Backend) NewTab(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tabID, err := b.createTabLocked("about:blank")
	if err != nil {
		return "", &backend.BackendError{Op: "NewTab", Err: err}
	}
	return tabID, nil
}

func (b *Backend) SwitchTab(ctx context.Context, tabID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page, ok := b.pages[tabID]
	if !ok {
		return &backend.BackendError{Op: "SwitchTab", Err: fmt.Errorf("tab %s not found", tabID)}
	}
	b.active = tabID
	page.MustActivate()
	return nil
}

func (b *Backend) CloseTab(ctx context.Context, tabID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page, ok := b.pages[tabID]
	if !ok {
		return &backend.BackendError{Op: "CloseTab", Err: fmt.Errorf("tab %s not found", tabID)}
	}
	if len(b.pages) <= 1 {
		return &backend.BackendError{Op: "CloseTab", Err: fmt.Errorf("cannot close the last tab")}
	}
	page.Close()
	delete(b.pages, tabID)

	if b.active == tabID {
		for id, p := range b.pages {
			b.active = id
			p.MustActivate()
			break
		}
	}
	return nil
}

func (b *Backend) ListTabs(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.pages))
	for id := range b.pages {
		ids = append(ids, id)
	}
	return ids, nil
}

// Downloads implements backend.DownloadWatcher using CDP's download events,
// recorded by a page-level event listener the caller wires via
// WatchDownloads at startup (rod's EachEvent over
// proto.PageDownloadWillBegin / proto.PageDownloadProgress).
func (b *Backend) Downloads(ctx context.Context) ([]backend.Download, error) {
	b.downloadsMu.Lock()
	defer b.downloadsMu.Unlock()

	out := make([]backend.Download, 0, len(b.downloads))
	for _, d := range b.downloads {
		out = append(out, d)
	}
	return out, nil
}

// WatchDownloads installs a page-level listener translating CDP download
// lifecycle events into the DownloadWatcher-visible set. Call once per page
// after Navigate creates it.
func (b *Backend) WatchDownloads(page *rod.Page) {
	go page.EachEvent(func(e *proto.PageDownloadWillBegin) {
		b.downloadsMu.Lock()
		b.downloads[e.GUID] = backend.Download{
			Filename: e.SuggestedFilename,
			Status:   backend.DownloadStatusInProgress,
		}
		b.downloadsMu.Unlock()
	}, func(e *proto.PageDownloadProgress) {
		b.downloadsMu.Lock()
		d := b.downloads[e.GUID]
		switch e.State {
		case proto.PageDownloadProgressStateCompleted:
			d.Status = backend.DownloadStatusCompleted
		case proto.PageDownloadProgressStateCanceled:
			d.Status = backend.DownloadStatusFailed
		}
		b.downloads[e.GUID] = d
		b.downloadsMu.Unlock()
	})()
}

var _ backend.Backend = (*Backend)(nil)
var _ backend.TabManager = (*Backend)(nil)
var _ backend.DownloadWatcher = (*Backend)(nil)
