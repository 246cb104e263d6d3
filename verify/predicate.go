// Package verify implements the verification algebra: predicates over
// snapshot+URL+download state, their composition (all/any/not), and a fluent
// query/expect layer on top. Predicates are pure — the same context always
// produces the same outcome, no I/O, no time dependence. Refresh is the
// eventually driver's job, never a predicate's.
package verify

import "github.com/anxuanzi/vera-go/snapshot"

// DownloadStatus mirrors backend.DownloadStatus without importing the
// backend package — verify must stay a leaf package with no dependency on
// browser control.
type DownloadStatus string

const (
	DownloadStatusInProgress DownloadStatus = "in_progress"
	DownloadStatusCompleted  DownloadStatus = "completed"
	DownloadStatusFailed     DownloadStatus = "failed"
)

// Download is one tracked download entry, as surfaced by a backend's
// DownloadWatcher.
type Download struct {
	Filename string
	Status   DownloadStatus
}

// Context is everything a Predicate may read. It must never be mutated by a
// predicate.
type Context struct {
	Snapshot  *snapshot.Snapshot
	URL       string
	StepID    string
	Downloads []Download
}

// Outcome is the result of evaluating a Predicate.
type Outcome struct {
	Passed  bool
	Reason  string
	Details map[string]any
}

func pass(reason string) Outcome  { return Outcome{Passed: true, Reason: reason} }
func fail(reason string) Outcome  { return Outcome{Passed: false, Reason: reason} }

// Predicate is a pure function (Context) -> Outcome. Implementations must
// not perform I/O, consult wall-clock time, or hold state between calls:
// given the same Context, a Predicate always returns the same Outcome.
type Predicate func(ctx Context) Outcome
