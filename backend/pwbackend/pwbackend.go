// Package pwbackend implements backend.Backend over
// playwright-community/playwright-go, the second driver the spec calls for
// alongside rodbackend. It is grounded on the action-routing pattern in the
// pack's Playwright-based browser tool: Page.Evaluate for JS, Page.Mouse and
// Page.Keyboard for input dispatch, and Page.Screenshot for capture.
package pwbackend

import (
	"context"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/anxuanzi/vera-go/backend"
)

// Backend drives a single Playwright page.
type Backend struct {
	mu   sync.RWMutex
	pw   *playwright.Playwright
	ctxs map[string]playwright.BrowserContext
	page playwright.Page

	pages  map[string]playwright.Page
	active string
}

// New wraps an already-opened Playwright page. The caller owns launching the
// browser and the Playwright driver process.
func New(page playwright.Page) *Backend {
	b := &Backend{
		pages: map[string]playwright.Page{"default": page},
	}
	b.active = "default"
	return b
}

func (b *Backend) activePageLocked() (playwright.Page, error) {
	page, ok := b.pages[b.active]
	if !ok || page == nil {
		return nil, fmt.Errorf("pwbackend: no active page")
	}
	return page, nil
}

func (b *Backend) Navigate(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page, err := b.activePageLocked()
	if err != nil {
		return &backend.BackendError{Op: "Navigate", Err: err}
	}

	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return &backend.BackendError{Op: "Navigate", Err: err}
	}
	return nil
}

func (b *Backend) RefreshPageInfo(ctx context.Context) (backend.ViewportInfo, error) {
	b.mu.RLock()
	page, err := b.activePageLocked()
	b.mu.RUnlock()
	if err != nil {
		return backend.ViewportInfo{}, &backend.BackendError{Op: "RefreshPageInfo", Err: err}
	}

	raw, err := page.Evaluate(`(() => ({
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

	m, ok := raw.(map[string]any)
	if !ok {
		return backend.ViewportInfo{}, &backend.BackendError{Op: "RefreshPageInfo", Err: fmt.Errorf("unexpected eval result shape %T", raw)}
	}
	return backend.ViewportInfo{
		Width:         toInt(m["width"]),
		Height:        toInt(m["height"]),
		ScrollX:       toInt(m["scrollX"]),
		ScrollY:       toInt(m["scrollY"]),
		ContentWidth:  toInt(m["contentWidth"]),
		ContentHeight: toInt(m["contentHeight"]),
	}, nil
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func (b *Backend) Eval(ctx context.Context, expression string) (any, error) {
	b.mu.RLock()
	page, err := b.activePageLocked()
	b.mu.RUnlock()
	if err != nil {
		return nil, &backend.BackendError{Op: "Eval", Err: err}
	}

	result, err := page.Evaluate(expression)
	if err != nil {
		return nil, &backend.EvalError{Text: err.Error()}
	}
	return result, nil
}

func (b *Backend) Call(ctx context.Context, functionDeclaration string, args ...any) (any, error) {
	b.mu.RLock()
	page, err := b.activePageLocked()
	b.mu.RUnlock()
	if err != nil {
		return nil, &backend.BackendError{Op: "Call", Err: err}
	}

	result, err := page.Evaluate(functionDeclaration, args...)
	if err != nil {
		return nil, &backend.EvalError{Text: err.Error()}
	}
	return result, nil
}

func (b *Backend) GetLayoutMetrics(ctx context.Context) (backend.LayoutMetrics, error) {
	info, err := b.RefreshPageInfo(ctx)
	if err != nil {
		return backend.LayoutMetrics{}, err
	}
	return backend.LayoutMetrics{
		ViewportX:        float64(info.ScrollX),
		ViewportY:        float64(info.ScrollY),
		ViewportWidth:    float64(info.Width),
		ViewportHeight:   float64(info.Height),
		ContentWidth:     float64(info.ContentWidth),
		ContentHeight:    float64(info.ContentHeight),
		DevicePixelRatio: 1.0,
	}, nil
}

func (b *Backend) ScreenshotPNG(ctx context.Context) ([]byte, error) {
	b.mu.RLock()
	page, err := b.activePageLocked()
	b.mu.RUnlock()
	if err != nil {
		return nil, &backend.BackendError{Op: "ScreenshotPNG", Err: err}
	}

	data, err := page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(false),
		Type:     playwright.ScreenshotTypePng,
	})
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
	if err := page.Mouse().Move(x, y); err != nil {
		return &backend.BackendError{Op: "MouseMove", Err: err}
	}
	return nil
}

func (b *Backend) MouseClick(ctx context.Context, x, y float64, button backend.MouseButton, clickCount int) error {
	b.mu.RLock()
	page, err := b.activePageLocked()
	b.mu.RUnlock()
	if err != nil {
		return &backend.BackendError{Op: "MouseClick", Err: err}
	}

	if clickCount <= 0 {
		clickCount = 1
	}
	if err := page.Mouse().Move(x, y); err != nil {
		return &backend.BackendError{Op: "MouseClick.move", Err: err}
	}
	opts := playwright.MouseClickOptions{
		Button:     playwright.MouseButton(pwButton(button)),
		ClickCount: playwright.Int(clickCount),
		Delay:      playwright.Float(50),
	}
	if err := page.Mouse().Click(x, y, opts); err != nil {
		return &backend.BackendError{Op: "MouseClick", Err: err}
	}
	return nil
}

func pwButton(b backend.MouseButton) string {
	switch b {
	case backend.MouseButtonRight:
		return "right"
	case backend.MouseButtonMiddle:
		return "middle"
	default:
		return "left"
	}
}

func (b *Backend) Wheel(ctx context.Context, deltaY float64, x, y *float64) error {
	b.mu.RLock()
	page, err := b.activePageLocked()
	b.mu.RUnlock()
	if err != nil {
		return &backend.BackendError{Op: "Wheel", Err: err}
	}

	px, py := 0.0, 0.0
	if vp := page.ViewportSize(); vp != nil {
		px, py = float64(vp.Width)/2, float64(vp.Height)/2
	}
	if x != nil {
		px = *x
	}
	if y != nil {
		py = *y
	}
	if err := page.Mouse().Move(px, py); err != nil {
		return &backend.BackendError{Op: "Wheel.move", Err: err}
	}
	if err := page.Mouse().Wheel(0, deltaY); err != nil {
		return &backend.BackendError{Op: "Wheel", Err: err}
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
	if err := page.Keyboard().Type(text, playwright.KeyboardTypeOptions{Delay: playwright.Float(10)}); err != nil {
		return &backend.BackendError{Op: "TypeText", Err: err}
	}
	return nil
}

func (b *Backend) KeyPress(ctx context.Context, key string) error {
	b.mu.RLock()
	page, err := b.activePageLocked()
	b.mu.RUnlock()
	if err != nil {
		return &backend.BackendError{Op: "KeyPress", Err: err}
	}
	if err := page.Keyboard().Press(key); err != nil {
		return &backend.BackendError{Op: "KeyPress", Err: err}
	}
	return nil
}

func (b *Backend) WaitReadyState(ctx context.Context, state backend.ReadyState, timeoutMs int) error {
	b.mu.RLock()
	page, err := b.activePageLocked()
	b.mu.RUnlock()
	if err != nil {
		return &backend.BackendError{Op: "WaitReadyState", Err: err}
	}

	var pwState *playwright.LoadState
	switch state {
	case backend.ReadyStateComplete:
		s := playwright.LoadStateLoad
		pwState = &s
	default:
		s := playwright.LoadStateDomcontentloaded
		pwState = &s
	}

	timeout := float64(timeoutMs)
	if err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   pwState,
		Timeout: &timeout,
	}); err != nil {
		return &backend.TimeoutError{Op: "WaitReadyState:" + string(state), Waited: fmt.Sprintf("%dms", timeoutMs)}
	}
	return nil
}

func (b *Backend) GetURL(ctx context.Context) (string, error) {
	b.mu.RLock()
	page, err := b.activePageLocked()
	b.mu.RUnlock()
	if err != nil {
		return "", &backend.BackendError{Op: "GetURL", Err: err}
	}
	return page.URL(), nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for id, page := range b.pages {
		if page != nil {
			if err := page.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		delete(b.pages, id)
	}
	if b.pw != nil {
		if err := b.pw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewTab, SwitchTab, CloseTab, ListTabs implement backend.TabManager by
// opening additional pages against the same context as the active page.

func (b *Backend) NewTab(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	active, err := b.activePageLocked()
	if err != nil {
		return "", &backend.BackendError{Op: "NewTab", Err: err}
	}

	newPage, err := active.Context().NewPage()
	if err != nil {
		return "", &backend.BackendError{Op: "NewTab", Err: err}
	}

	tabID := fmt.Sprintf("tab-%d", len(b.pages))
	b.pages[tabID] = newPage
	b.active = tabID
	return tabID, nil
}

func (b *Backend) SwitchTab(ctx context.Context, tabID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page, ok := b.pages[tabID]
	if !ok {
		return &backend.BackendError{Op: "SwitchTab", Err: fmt.Errorf("tab %s not found", tabID)}
	}
	if err := page.BringToFront(); err != nil {
		return &backend.BackendError{Op: "SwitchTab", Err: err}
	}
	b.active = tabID
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
	if err := page.Close(); err != nil {
		return &backend.BackendError{Op: "CloseTab", Err: err}
	}
	delete(b.pages, tabID)

	if b.active == tabID {
		for id := range b.pages {
			b.active = id
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

var _ backend.Backend = (*Backend)(nil)
var _ backend.TabManager = (*Backend)(nil)
