// Package dedupe tracks idempotency keys so a retried score submission is
// recorded at most once.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

const defaultMaxKeys = 50_000

// Tracker remembers claimed keys.
type Tracker interface {
	// Claim records key and reports whether it was new. A false result means
	// the key was already claimed and the caller must not repeat the write.
	Claim(ctx context.Context, key string) bool

	// Release forgets key so the write it guarded can be retried. Used when the
	// guarded write failed after a successful Claim.
	Release(ctx context.Context, key string)

	Size() int64
}

// memoryTracker keeps up to maxKeys keys and evicts the oldest claim first.
// maxKeys <= 0 means unbounded.
type memoryTracker struct {
	mu      sync.Mutex
	keys    map[string]*list.Element
	order   *list.List // front is newest
	maxKeys int
}

// NewTracker creates an in-memory tracker.
func NewTracker(opts ...Option) Tracker {
	t := &memoryTracker{
		keys:    make(map[string]*list.Element),
		order:   list.New(),
		maxKeys: defaultMaxKeys,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *memoryTracker) Claim(_ context.Context, key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.keys[key]; ok {
		return false
	}
	if t.maxKeys > 0 && t.order.Len() >= t.maxKeys {
		oldest := t.order.Back()
		t.order.Remove(oldest)
		delete(t.keys, oldest.Value.(string))
	}
	t.keys[key] = t.order.PushFront(key)
	return true
}

func (t *memoryTracker) Release(_ context.Context, key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.keys[key]; ok {
		t.order.Remove(el)
		delete(t.keys, key)
	}
}

func (t *memoryTracker) Size() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int64(t.order.Len())
}
