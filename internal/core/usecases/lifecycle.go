package usecases

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/hazwanj/jalanku/internal/core/ports"
	"github.com/hazwanj/jalanku/internal/pkg/metrics"
)

// Lifecycle owns the cross-cutting request discipline shared by the
// resolvers: per-slot debounce timers, per-slot generation counters
// with cancellation of superseded in-flight work, and a short-TTL
// read-through cache of recent results keyed by normalized input.
//
// A "slot" is a logical request lane ("suggest:destination",
// "route", ...). Issuing new work in a slot cancels the previous
// in-flight work in that slot, and any late completion carrying a
// stale generation is discarded instead of applied.
type Lifecycle struct {
	debounce time.Duration
	cacheTTL time.Duration
	cache    ports.CacheService

	mu      sync.Mutex
	timers  map[string]*time.Timer
	gens    map[string]uint64
	cancels map[string]context.CancelFunc
}

// NewLifecycle creates a Lifecycle. cache may be nil, in which case the
// TTL cache is disabled and every request goes to the cascade.
func NewLifecycle(cache ports.CacheService, debounce, cacheTTL time.Duration) *Lifecycle {
	if debounce <= 0 {
		debounce = 275 * time.Millisecond
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Lifecycle{
		debounce: debounce,
		cacheTTL: cacheTTL,
		cache:    cache,
		timers:   make(map[string]*time.Timer),
		gens:     make(map[string]uint64),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Debounce schedules fn to run after the debounce interval. A newer
// call for the same slot resets the timer, so only the final call in a
// burst of keystrokes actually runs.
func (l *Lifecycle) Debounce(slot string, fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if t, ok := l.timers[slot]; ok {
		t.Stop()
	}
	l.timers[slot] = time.AfterFunc(l.debounce, fn)
}

// Begin starts a new generation for the slot: the previous in-flight
// context for the slot is cancelled, and the returned context is
// cancelled in turn when a newer Begin supersedes it. Callers must
// check Current before applying a completion.
func (l *Lifecycle) Begin(ctx context.Context, slot string) (context.Context, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cancel, ok := l.cancels[slot]; ok {
		cancel()
	}

	l.gens[slot]++
	gen := l.gens[slot]

	ctx, cancel := context.WithCancel(ctx)
	l.cancels[slot] = cancel
	return ctx, gen
}

// Current reports whether gen is still the newest generation for the
// slot. A false return means the response belongs to a superseded
// request and must be discarded.
func (l *Lifecycle) Current(slot string, gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.gens[slot] == gen
	if !current {
		metrics.StaleDrops.WithLabelValues(slot).Inc()
	}
	return current
}

// Reset cancels all in-flight work and pending debounce timers. Used
// when the owning session goes away (e.g. a WebSocket disconnect).
func (l *Lifecycle) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for slot, t := range l.timers {
		t.Stop()
		delete(l.timers, slot)
	}
	for slot, cancel := range l.cancels {
		cancel()
		delete(l.cancels, slot)
	}
}

// ReleasePrefix cancels in-flight work and pending timers for every
// slot under the prefix and forgets their generations. Used when one
// session's slots ("ws:<conn>:...") go away without tearing down the
// shared lifecycle.
func (l *Lifecycle) ReleasePrefix(prefix string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for slot, t := range l.timers {
		if strings.HasPrefix(slot, prefix) {
			t.Stop()
			delete(l.timers, slot)
		}
	}
	for slot, cancel := range l.cancels {
		if strings.HasPrefix(slot, prefix) {
			cancel()
			delete(l.cancels, slot)
		}
	}
	for slot := range l.gens {
		if strings.HasPrefix(slot, prefix) {
			delete(l.gens, slot)
		}
	}
}

// GetCached loads a recent result into v. Returns false on miss,
// expiry, or decode failure; cache problems never fail a request.
func (l *Lifecycle) GetCached(ctx context.Context, key string, v any) bool {
	if l.cache == nil {
		return false
	}
	data, err := l.cache.Get(ctx, key)
	if err != nil || len(data) == 0 {
		metrics.CacheMisses.WithLabelValues("lifecycle").Inc()
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false
	}
	metrics.CacheHits.WithLabelValues("lifecycle").Inc()
	return true
}

// PutCached stores a result under the configured TTL. Concurrent writes
// for the same key are idempotent (same query, same normalized result),
// so last-write-wins is fine.
func (l *Lifecycle) PutCached(ctx context.Context, key string, v any) {
	if l.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = l.cache.Set(ctx, key, data, int(l.cacheTTL.Seconds()))
}

// NormalizeKey builds a cache key from a request kind and its input,
// lowercased with whitespace collapsed so that "Bau " and "bau" share
// an entry.
func NormalizeKey(kind, input string) string {
	return kind + ":" + strings.Join(strings.Fields(strings.ToLower(input)), " ")
}
