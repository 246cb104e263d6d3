package snapshot

import (
	"context"
	"time"
)

// Options control acquisition, and are passed through to the extension
// bridge largely unexamined — the service only uses Limit when computing the
// adaptive-limit growth policy in the eventually driver.
type Options struct {
	Limit       int
	Filter      Filter
	Screenshot  ScreenshotRequest
	ShowOverlay bool
	ShowGrid    bool
	GridID      int
}

// Filter matches spec.md §6's extension-side pre-filters.
type Filter struct {
	Clickable  bool
	Visible    bool
	InViewport bool
}

// ScreenshotRequest asks the extension to attach a base64 screenshot to the
// acquired snapshot.
type ScreenshotRequest struct {
	Attach  bool
	Format  string
	Quality int
}

// DefaultOptions mirrors spec.md §6's documented default (limit 50).
func DefaultOptions() Options {
	return Options{Limit: 50}
}

// Acquirer fetches a fresh Snapshot. It is implemented by the extraction
// layer (extract.go) which talks to a backend.Backend; kept as an interface
// here so Cache has no import-time dependency on the backend package.
type Acquirer interface {
	Acquire(ctx context.Context, opts Options) (*Snapshot, error)
}

// Cache wraps an Acquirer with a staleness window, matching spec.md §3's
// CachedSnapshot value: cached == nil iff cachedAt == 0. It is not safe for
// concurrent use — the owning runtime is the sole writer, per spec.md §3's
// ownership rule ("the snapshot cache is per-runtime and not thread-safe").
type Cache struct {
	acquirer Acquirer
	maxAge   time.Duration

	cached    *Snapshot
	cachedAt  time.Time
	cachedURL string

	now func() time.Time
}

// NewCache constructs a Cache around the given Acquirer with the given
// staleness window.
func NewCache(acquirer Acquirer, maxAge time.Duration) *Cache {
	return &Cache{acquirer: acquirer, maxAge: maxAge, now: time.Now}
}

// AgeMs returns how stale the cached snapshot is, or an effectively-infinite
// duration when the cache is empty.
func (c *Cache) AgeMs() int64 {
	if c.cached == nil {
		return int64(^uint64(0) >> 1)
	}
	return c.now().Sub(c.cachedAt).Milliseconds()
}

// Get returns the cached snapshot when its age is within maxAge and
// forceRefresh is false; otherwise it re-acquires via the Acquirer and
// replaces the cache.
func (c *Cache) Get(ctx context.Context, opts Options, forceRefresh bool) (*Snapshot, error) {
	if !forceRefresh && c.cached != nil {
		age := c.now().Sub(c.cachedAt)
		if age <= c.maxAge {
			return c.cached, nil
		}
	}

	snap, err := c.acquirer.Acquire(ctx, opts)
	if err != nil {
		return nil, err
	}

	c.cached = snap
	c.cachedAt = c.now()
	c.cachedURL = snap.URL
	return snap, nil
}

// Invalidate zeros the cache. Calling it twice in a row is equivalent to
// calling it once.
func (c *Cache) Invalidate() {
	c.cached = nil
	c.cachedAt = time.Time{}
	c.cachedURL = ""
}

// Peek returns whatever is currently cached without triggering acquisition.
func (c *Cache) Peek() *Snapshot {
	return c.cached
}

// SetClock overrides the time source, for deterministic staleness tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}
