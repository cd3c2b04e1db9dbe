// Package locks provides per-key mutual exclusion for repository
// operations. Operations sharing a key execute in a strict total order;
// operations on different keys run fully concurrently.
//
// Acquisition is context-aware: callers bound their wait with a context
// deadline instead of blocking forever behind a stuck holder. Entries
// are reference counted and evicted when the last interested goroutine
// releases, so the registry does not grow with the set of repositories
// ever seen.
package locks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultHoldWarnThreshold is how long a lock may be held before the
// registry logs it as a liveness problem. A holder past this threshold
// is starving every future operation on its repository.
const DefaultHoldWarnThreshold = 30 * time.Second

// AcquireTimeoutError reports a lock acquisition abandoned because the
// caller's context expired while another operation held the key.
type AcquireTimeoutError struct {
	Key string
	Err error // underlying context error
}

func (e *AcquireTimeoutError) Error() string {
	return fmt.Sprintf("timed out acquiring repository lock %q: %v", e.Key, e.Err)
}

func (e *AcquireTimeoutError) Unwrap() error { return e.Err }

// entry is one keyed lock. The semaphore channel holds at most one
// token; owning the token means owning the lock.
type entry struct {
	sem  chan struct{}
	refs int
}

// Registry is a process-wide map from lock key to lock.
// The zero value is not usable; construct with NewRegistry.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry

	logger        *slog.Logger
	warnThreshold time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for liveness warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithHoldWarnThreshold overrides the hold duration that triggers a
// liveness log. Useful in tests.
func WithHoldWarnThreshold(d time.Duration) Option {
	return func(r *Registry) { r.warnThreshold = d }
}

// NewRegistry creates an empty lock registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries:       make(map[string]*entry),
		logger:        slog.Default(),
		warnThreshold: DefaultHoldWarnThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire takes the lock for key, waiting until it is free or ctx is
// done. On success it returns a release function that must be called
// exactly once, on every exit path.
//
// Acquisition order under contention is whatever order the runtime
// wakes waiters in; the only guarantee is that a waiter with a live
// context eventually acquires.
func (r *Registry) Acquire(ctx context.Context, key string) (release func(), err error) {
	e := r.retain(key)

	select {
	case e.sem <- struct{}{}:
		// Lock owned.
	case <-ctx.Done():
		r.release(key, e)
		return nil, &AcquireTimeoutError{Key: key, Err: ctx.Err()}
	}

	acquired := time.Now()
	watchdog := time.AfterFunc(r.warnThreshold, func() {
		r.logger.Error("repository lock held past liveness threshold",
			"key", key,
			"threshold", r.warnThreshold)
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			watchdog.Stop()
			if held := time.Since(acquired); held > r.warnThreshold {
				r.logger.Error("repository lock released after liveness threshold",
					"key", key,
					"held", held)
			}
			<-e.sem
			r.release(key, e)
		})
	}, nil
}

// Do runs fn while holding the lock for key. The lock is released on
// every exit path and fn's error is propagated unchanged.
func (r *Registry) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	release, err := r.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// Len returns the number of live lock entries. Used by tests to verify
// eviction.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// retain gets or creates the entry for key and bumps its refcount.
// Creation is atomic under the registry mutex: two goroutines touching
// a fresh key for the first time observe the same entry.
func (r *Registry) retain(key string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		r.entries[key] = e
	}
	e.refs++
	return e
}

// release drops one reference and evicts the entry at zero.
func (r *Registry) release(key string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(r.entries, key)
	}
}
