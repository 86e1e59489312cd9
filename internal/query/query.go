// Package query caches remote reads and coordinates their invalidation.
//
// Entries are addressed by a Key made of a resource name and an optional
// filter. Invalidating a key marks every entry it prefixes as stale, so a
// successful mutation can force dependent reads to hit the backend again:
//
//	c := query.NewCache()
//	builds, err := query.Fetch(ctx, c, query.KeyBuilds(nil), query.DefaultOptions(), listBuilds)
//	...
//	c.Invalidate(query.KeyBuilds(nil)) // every builds entry, filtered or not
package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fflux/internal/debug"
)

const (
	// DefaultRetry is the number of extra attempts a failing fetch gets.
	DefaultRetry = 3
	// DefaultRetryDelay is the wait before the first retry; later waits double.
	DefaultRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 30 * time.Second
)

const (
	ResourceDeviceProfile = "deviceProfile"
	ResourceBuilds        = "builds"
	ResourceBuild         = "build"
)

var logf = debug.Scope("query").Logf

// Key identifies a cached read.
type Key struct {
	Resource string
	Filter   string
	Filtered bool
}

// KeyDeviceProfile addresses the caller's device profile.
func KeyDeviceProfile() Key {
	return Key{Resource: ResourceDeviceProfile}
}

// KeyBuilds addresses a build list. A nil filter is the unfiltered list and,
// as an invalidation key, covers every filtered list too.
func KeyBuilds(filter *string) Key {
	if filter == nil {
		return Key{Resource: ResourceBuilds}
	}
	return Key{Resource: ResourceBuilds, Filter: *filter, Filtered: true}
}

// KeyBuild addresses a single build.
func KeyBuild(id string) Key {
	return Key{Resource: ResourceBuild, Filter: id, Filtered: true}
}

// HasPrefix reports whether k falls under prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if k.Resource != prefix.Resource {
		return false
	}
	if !prefix.Filtered {
		return true
	}
	return k.Filtered && k.Filter == prefix.Filter
}

func (k Key) String() string {
	if !k.Filtered {
		return k.Resource
	}
	return fmt.Sprintf("%s[%s]", k.Resource, k.Filter)
}

// Options controls a single Fetch.
type Options struct {
	// Disabled skips the fetch and returns the zero value.
	Disabled bool
	// Retry is the number of extra attempts after a failure.
	Retry int
	// RetryDelay is the wait before the first retry.
	RetryDelay time.Duration
}

// DefaultOptions enables the fetch with the default retry policy.
func DefaultOptions() Options {
	return Options{Retry: DefaultRetry, RetryDelay: DefaultRetryDelay}
}

type entry struct {
	value     any
	fetchedAt time.Time
	stale     bool
}

type call struct {
	done  chan struct{}
	value any
	err   error
}

// Cache stores fetched values. The zero value is not usable; call NewCache.
type Cache struct {
	mu       sync.Mutex
	entries  map[Key]*entry
	inflight map[Key]*call

	staleTime time.Duration
	now       func() time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithStaleTime expires entries d after they were fetched. Zero keeps them
// fresh until invalidated.
func WithStaleTime(d time.Duration) CacheOption {
	return func(c *Cache) { c.staleTime = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache returns an empty cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries:  make(map[Key]*entry),
		inflight: make(map[Key]*call),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the cached value for key when it is fresh, otherwise runs fn
// and caches a successful result. Concurrent fetches of one key share a
// single call to fn.
func Fetch[T any](ctx context.Context, c *Cache, key Key, opts Options, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if opts.Disabled {
		return zero, nil
	}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.freshLocked(e) {
		c.mu.Unlock()
		v, _ := e.value.(T)
		return v, nil
	}
	if cl, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-cl.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		if cl.err != nil {
			return zero, cl.err
		}
		v, _ := cl.value.(T)
		return v, nil
	}
	cl := &call{done: make(chan struct{})}
	c.inflight[key] = cl
	c.mu.Unlock()

	value, err := runWithRetry(ctx, key, opts, fn)

	c.mu.Lock()
	delete(c.inflight, key)
	if err == nil {
		c.entries[key] = &entry{value: value, fetchedAt: c.now()}
	}
	cl.value, cl.err = value, err
	c.mu.Unlock()
	close(cl.done)

	if err != nil {
		return zero, err
	}
	return value, nil
}

func runWithRetry[T any](ctx context.Context, key Key, opts Options, fn func(context.Context) (T, error)) (T, error) {
	delay := opts.RetryDelay
	for attempt := 0; ; attempt++ {
		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		if attempt >= opts.Retry || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logf("fetch %s failed after %d attempt(s): %v", key, attempt+1, err)
			return value, err
		}
		logf("fetch %s attempt %d failed, retrying in %s: %v", key, attempt+1, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

func (c *Cache) freshLocked(e *entry) bool {
	if e.stale {
		return false
	}
	if c.staleTime > 0 && c.now().Sub(e.fetchedAt) >= c.staleTime {
		return false
	}
	return true
}

// Peek returns the cached value for key, fresh or stale.
func Peek[T any](c *Cache, key Key) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	v, ok := e.value.(T)
	return v, ok
}

// Set stores value under key as freshly fetched.
func (c *Cache) Set(key Key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{value: value, fetchedAt: c.now()}
}

// Invalidate marks every entry under prefix stale and returns how many it
// touched. Stale entries are refetched on their next read.
func (c *Cache) Invalidate(prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.entries {
		if k.HasPrefix(prefix) {
			e.stale = true
			n++
		}
	}
	logf("invalidated %d entries under %s", n, prefix)
	return n
}

// Remove drops every entry under prefix.
func (c *Cache) Remove(prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k := range c.entries {
		if k.HasPrefix(prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
