// Package locking provides the in-process per-resource locks that
// serialize trade attempts within one bot process.
package locking

import (
	"context"
	"sync"
)

// Registry hands out one lock per resource key. Locks are created
// lazily on first use and never removed; the key space (platform,
// asset pairs) is small and fixed for the life of the process.
type Registry struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewRegistry builds an empty registry. Callers share one instance by
// injection; the package has no global state.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]chan struct{})}
}

func (r *Registry) lockFor(key string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = make(chan struct{}, 1)
		r.locks[key] = l
	}
	return l
}

// TryAcquire takes the lock for key without waiting. On success the
// returned release function is safe to call more than once.
func (r *Registry) TryAcquire(key string) (release func(), ok bool) {
	l := r.lockFor(key)
	select {
	case l <- struct{}{}:
		return r.releaser(l), true
	default:
		return nil, false
	}
}

// Acquire blocks until the lock for key is held or ctx is done.
func (r *Registry) Acquire(ctx context.Context, key string) (release func(), err error) {
	l := r.lockFor(key)
	select {
	case l <- struct{}{}:
		return r.releaser(l), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) releaser(l chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() { <-l })
	}
}
