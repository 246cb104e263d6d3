// Package backend defines the minimal browser-control surface the runtime
// consumes: JS evaluation, mouse/keyboard/wheel dispatch, layout metrics,
// screenshot capture, and ready-state waiting. It is intentionally small so
// that a CDP-based driver (rodbackend) and a Playwright-based driver
// (pwbackend) remain behaviorally interchangeable — anything richer than
// this (element queries, accessibility trees) is delegated to the
// extension-produced snapshot, not to the backend.
package backend

import (
	"context"
	"errors"
	"fmt"
)

// ReadyState is one of the document.readyState values the backend can wait
// for.
type ReadyState string

const (
	ReadyStateInteractive ReadyState = "interactive"
	ReadyStateComplete    ReadyState = "complete"
)

// MouseButton identifies which button a click dispatches.
type MouseButton string

const (
	MouseButtonLeft   MouseButton = "left"
	MouseButtonRight  MouseButton = "right"
	MouseButtonMiddle MouseButton = "middle"
)

// LayoutMetrics reports viewport origin, content size, and device pixel
// ratio, used for screenshot-region math and scroll bounds.
type LayoutMetrics struct {
	ViewportX        float64
	ViewportY        float64
	ViewportWidth    float64
	ViewportHeight   float64
	ContentWidth     float64
	ContentHeight    float64
	DevicePixelRatio float64
}

// ViewportInfo is the cheap, idempotent result of RefreshPageInfo.
type ViewportInfo struct {
	Width         int
	Height        int
	ScrollX       int
	ScrollY       int
	ContentWidth  int
	ContentHeight int
}

// Backend is the capability surface the agent runtime consumes. Every
// method may fail; failures are translated at the call site into one of the
// runtime's typed errors (BackendError, EvalError, TimeoutError, ...).
type Backend interface {
	// RefreshPageInfo populates an internal viewport cache used by
	// default-centered wheel events, and returns the fresh reading.
	RefreshPageInfo(ctx context.Context) (ViewportInfo, error)

	// Eval executes a JS expression in the page's main frame, awaits any
	// promise result, and returns a JSON-round-trippable value.
	// JS `undefined` normalizes to nil.
	Eval(ctx context.Context, expression string) (any, error)

	// Call invokes a function expression with args passed by value,
	// avoiding string-concatenation injection. Implementations may fall
	// back to Eval if no object handle is available to call against.
	Call(ctx context.Context, functionDeclaration string, args ...any) (any, error)

	GetLayoutMetrics(ctx context.Context) (LayoutMetrics, error)

	// ScreenshotPNG captures the viewport only — never full-page.
	ScreenshotPNG(ctx context.Context) ([]byte, error)

	MouseMove(ctx context.Context, x, y float64) error
	// MouseClick decomposes into press+release with a short gap.
	MouseClick(ctx context.Context, x, y float64, button MouseButton, clickCount int) error
	// Wheel dispatches a wheel event; x/y default to the viewport center
	// when omitted (nil).
	Wheel(ctx context.Context, deltaY float64, x, y *float64) error

	// TypeText dispatches per-character keyDown/char/keyUp with a small
	// inter-character delay. Non-ASCII passes through via the text field.
	TypeText(ctx context.Context, text string) error
	// KeyPress dispatches a single named key (Enter, Escape, Tab, or a
	// single character).
	KeyPress(ctx context.Context, key string) error

	WaitReadyState(ctx context.Context, state ReadyState, timeoutMs int) error

	GetURL(ctx context.Context) (string, error)

	// Navigate loads a URL and waits for navigation to commit.
	Navigate(ctx context.Context, url string) error

	Close() error
}

// TabManager is an optional capability: backends that support more than one
// page per browser process implement it. This is not part of the minimal
// port — it is a supplemented feature (multi-tab orchestration), kept
// separate so a single-tab backend stays a valid Backend without it.
type TabManager interface {
	NewTab(ctx context.Context) (tabID string, err error)
	SwitchTab(ctx context.Context, tabID string) error
	CloseTab(ctx context.Context, tabID string) error
	ListTabs(ctx context.Context) ([]string, error)
}

// DownloadStatus is the lifecycle state of a tracked download.
type DownloadStatus string

const (
	DownloadStatusInProgress DownloadStatus = "in_progress"
	DownloadStatusCompleted  DownloadStatus = "completed"
	DownloadStatusFailed     DownloadStatus = "failed"
)

// Download is one entry in a DownloadWatcher's tracked set.
type Download struct {
	Filename string
	FilePath string
	Size     int64
	MimeType string
	Status   DownloadStatus
}

// DownloadWatcher is an optional capability backends implement to surface
// completed/in-flight downloads to the downloadCompleted predicate.
type DownloadWatcher interface {
	Downloads(ctx context.Context) ([]Download, error)
}

// Error taxonomy (spec.md §7). Each carries a stable Name so callers can
// switch on it without string matching, and an optional ReasonCode for the
// wire-observable error surface (spec.md §6).

// BackendError wraps a transient transport/protocol failure talking to the
// browser process.
type BackendError struct {
	Op         string
	ReasonCode string
	Err        error
}

func (e *BackendError) Error() string {
	if e.ReasonCode != "" {
		return fmt.Sprintf("backend: %s (%s): %v", e.Op, e.ReasonCode, e.Err)
	}
	return fmt.Sprintf("backend: %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// EvalError wraps a JS exception thrown during Eval/Call.
type EvalError struct {
	Text string
}

func (e *EvalError) Error() string { return fmt.Sprintf("eval error: %s", e.Text) }

// TimeoutError is raised when a polling loop (ready-state wait, extension
// probe, scroll verify, ...) exceeds its budget.
type TimeoutError struct {
	Op      string
	Waited  string
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("timeout waiting for %s after %s", e.Op, e.Waited) }

var errNilBackend = errors.New("backend: nil backend")

// ErrNilBackend is returned by callers that received a nil Backend where one
// was required.
func ErrNilBackend() error { return errNilBackend }
