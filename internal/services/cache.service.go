package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"watchpost/internal/telemetry"
)

// ProbeFunc is a slow keyed data source. It must honour ctx cancellation
// where it can; the cache gives up on it after the configured timeout either way.
type ProbeFunc[V any] func(ctx context.Context, key string) (V, error)

// ErrProbeTimeout is recorded as the last error of an attempt that outlived its timeout.
var ErrProbeTimeout = errors.New("probe timed out")

// CacheOptions tunes a RevalidatingCache
type CacheOptions struct {
	// Timeout bounds every probe attempt. Zero means 10 seconds.
	Timeout time.Duration
	// WarmConcurrency bounds Warm. Zero means 4.
	WarmConcurrency int
}

// EntryInfo is a read-only view of one cache entry
type EntryInfo struct {
	Key         string    `json:"key"`
	HasValue    bool      `json:"has_value"`
	CapturedAt  time.Time `json:"captured_at"`
	Refreshing  bool      `json:"refreshing"`
	LastAttempt time.Time `json:"last_attempt"`
	LastError   string    `json:"last_error,omitempty"`

	// ProbeRunning stays true after a timeout until the abandoned probe returns.
	ProbeRunning bool `json:"probe_running"`
}

// cacheEntry holds the last good value separately from the outcome of the
// last attempt, so a failing probe never destroys data. refreshing covers
// an attempt until its outcome is recorded; running covers the probe call
// itself, which can outlive a timed-out attempt.
type cacheEntry[V any] struct {
	mu          sync.Mutex
	value       V
	hasValue    bool
	capturedAt  time.Time
	refreshing  bool
	running     bool
	generation  uint64
	lastAttempt time.Time
	lastErr     error
}

// begin marks a new attempt and returns its generation. Caller holds e.mu.
func (e *cacheEntry[V]) begin(now time.Time) uint64 {
	e.refreshing = true
	e.running = true
	e.generation++
	e.lastAttempt = now
	return e.generation
}

// busy reports whether an attempt or its probe call is still going. Caller holds e.mu.
func (e *cacheEntry[V]) busy() bool {
	return e.refreshing || e.running
}

// probeReturned clears running once the probe call has come back.
func (e *cacheEntry[V]) probeReturned() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

// RevalidatingCache serves the last known value for a key immediately and
// refreshes stale keys in the background, with at most one probe in flight
// per key.
type RevalidatingCache[V any] struct {
	name   string
	probe  ProbeFunc[V]
	opts   CacheOptions
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.RWMutex // guards the map only, never held while probing
	entries map[string]*cacheEntry[V]

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRevalidatingCache creates a cache named name (used in logs and metrics)
// in front of probe.
func NewRevalidatingCache[V any](name string, probe ProbeFunc[V], opts CacheOptions, logger zerolog.Logger) *RevalidatingCache[V] {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.WarmConcurrency <= 0 {
		opts.WarmConcurrency = 4
	}
	base, cancel := context.WithCancel(context.Background())
	return &RevalidatingCache[V]{
		name:    name,
		probe:   probe,
		opts:    opts,
		logger:  logger.With().Str("component", "cache").Str("cache", name).Logger(),
		now:     time.Now,
		entries: make(map[string]*cacheEntry[V]),
		base:    base,
		cancel:  cancel,
	}
}

// entry returns the entry for key, creating an empty one on first use.
func (c *RevalidatingCache[V]) entry(key string) *cacheEntry[V] {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok = c.entries[key]; !ok {
		e = &cacheEntry[V]{}
		c.entries[key] = e
	}
	return e
}

// Get returns the cached value for key without waiting on the probe. A
// fresh value is returned as is. Otherwise a background refresh is started
// unless one is already running, and the stale value (or placeholder, if
// the key never succeeded) is returned straight away. A probe abandoned by
// its timeout still counts as running, so a hung probe is never doubled up.
func (c *RevalidatingCache[V]) Get(key string, ttl time.Duration, placeholder V) V {
	e := c.entry(key)
	now := c.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.hasValue && now.Sub(e.capturedAt) < ttl {
		telemetry.CacheReads.WithLabelValues(c.name, "fresh").Inc()
		return e.value
	}

	if !e.busy() {
		gen := e.begin(now)
		c.wg.Add(1)
		go c.refresh(key, e, gen)
	}

	if !e.hasValue {
		telemetry.CacheReads.WithLabelValues(c.name, "placeholder").Inc()
		return placeholder
	}
	telemetry.CacheReads.WithLabelValues(c.name, "stale").Inc()
	return e.value
}

// refresh runs one probe attempt for key and records its outcome on e,
// unless a later attempt has superseded it.
func (c *RevalidatingCache[V]) refresh(key string, e *cacheEntry[V], gen uint64) {
	defer c.wg.Done()

	value, elapsed, err := c.invoke(c.base, key, e.probeReturned)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation != gen {
		return
	}
	e.refreshing = false
	c.record(key, e, value, err, elapsed)
}

// invoke runs the probe under its timeout. A probe that ignores ctx is
// abandoned when the timeout fires; its eventual result is dropped.
// returned is called from the probe goroutine once the probe is back.
func (c *RevalidatingCache[V]) invoke(parent context.Context, key string, returned func()) (V, time.Duration, error) {
	ctx, cancel := context.WithTimeout(parent, c.opts.Timeout)
	defer cancel()

	type result struct {
		value V
		err   error
	}
	done := make(chan result, 1)
	start := time.Now()

	go func() {
		defer returned()
		defer func() {
			if r := recover(); r != nil {
				var zero V
				done <- result{zero, fmt.Errorf("probe panicked: %v", r)}
			}
		}()
		v, err := c.probe(ctx, key)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.value, time.Since(start), r.err
	case <-ctx.Done():
		var zero V
		err := ErrProbeTimeout
		if errors.Is(ctx.Err(), context.Canceled) {
			err = ctx.Err()
		}
		return zero, time.Since(start), err
	}
}

// record stores a probe outcome. Caller holds e.mu.
func (c *RevalidatingCache[V]) record(key string, e *cacheEntry[V], value V, err error, elapsed time.Duration) {
	if err != nil {
		e.lastErr = err
		telemetry.ProbeFailures.WithLabelValues(c.name).Inc()
		telemetry.ProbeDuration.WithLabelValues(c.name, "error").Observe(elapsed.Seconds())
		c.logger.Warn().Err(err).Str("key", key).Dur("elapsed", elapsed).Bool("has_stale", e.hasValue).Msg("probe failed, keeping previous value")
		return
	}
	e.value = value
	e.hasValue = true
	e.capturedAt = c.now()
	e.lastErr = nil
	telemetry.ProbeDuration.WithLabelValues(c.name, "ok").Observe(elapsed.Seconds())
	c.logger.Debug().Str("key", key).Dur("elapsed", elapsed).Msg("probe refreshed")
}

// Warm runs one blocking round of probes for keys so the first reads after
// startup are not served placeholders. Probe failures are logged and leave
// the key empty; only context cancellation is returned as an error.
func (c *RevalidatingCache[V]) Warm(ctx context.Context, keys []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.WarmConcurrency)

	for _, key := range keys {
		e := c.entry(key)
		e.mu.Lock()
		if e.busy() {
			e.mu.Unlock()
			continue
		}
		gen := e.begin(c.now())
		e.mu.Unlock()

		g.Go(func() error {
			value, elapsed, err := c.invoke(gctx, key, e.probeReturned)
			e.mu.Lock()
			if e.generation == gen {
				e.refreshing = false
				c.record(key, e, value, err, elapsed)
			}
			e.mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return ctx.Err()
}

// Info returns a snapshot of the entry for key.
func (c *RevalidatingCache[V]) Info(key string) (EntryInfo, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return EntryInfo{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	info := EntryInfo{
		Key:          key,
		HasValue:     e.hasValue,
		CapturedAt:   e.capturedAt,
		Refreshing:   e.refreshing,
		LastAttempt:  e.lastAttempt,
		ProbeRunning: e.running,
	}
	if e.lastErr != nil {
		info.LastError = e.lastErr.Error()
	}
	return info, true
}

// Entries returns Info for every known key, sorted by key.
func (c *RevalidatingCache[V]) Entries() []EntryInfo {
	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.RUnlock()
	sort.Strings(keys)

	out := make([]EntryInfo, 0, len(keys))
	for _, k := range keys {
		if info, ok := c.Info(k); ok {
			out = append(out, info)
		}
	}
	return out
}

// Name returns the cache name
func (c *RevalidatingCache[V]) Name() string {
	return c.name
}

// Close cancels in-flight probes and waits for their handlers to finish.
func (c *RevalidatingCache[V]) Close() {
	c.cancel()
	c.wg.Wait()
}
