package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/codequest/internal/domain/model"
	"github.com/okian/codequest/pkg/metrics"
)

const storeMemory = "memory"

type progressKey struct {
	userID   string
	category string
}

type ledgerTree struct {
	root *node
}

// MemoryStore keeps progress and the ledger in process memory. It serves
// development and tests; nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	progress map[progressKey]model.ProgressRecord
	ledgers  map[string]*ledgerTree
	seq      int64
	seed     uint64
	now      func() time.Time
	closed   bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		progress: make(map[progressKey]model.ProgressRecord),
		ledgers:  make(map[string]*ledgerTree),
		seed:     uint64(time.Now().UnixNano()),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Store.
func (s *MemoryStore) Name() string { return storeMemory }

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("%w: %w", model.ErrStorageUnavailable, ErrClosed)
	}
	return nil
}

// Close implements Store. Later calls fail with model.ErrStorageUnavailable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Get implements ProgressStore.
func (s *MemoryStore) Get(_ context.Context, userID, category string) (model.ProgressRecord, error) {
	defer observe("get")()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.ProgressRecord{}, fmt.Errorf("%w: %w", model.ErrStorageUnavailable, ErrClosed)
	}
	rec, ok := s.progress[progressKey{userID, category}]
	if !ok {
		return model.DefaultProgress(), nil
	}
	return rec.Clone(), nil
}

// Save implements ProgressStore.
func (s *MemoryStore) Save(_ context.Context, userID, category string, rec model.ProgressRecord) error {
	defer observe("save")()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: %w", model.ErrStorageUnavailable, ErrClosed)
	}
	key := progressKey{userID, category}
	s.putLocked(key, s.progress[key].Version+1, rec)
	return nil
}

// CompareAndSwap implements ProgressStore.
func (s *MemoryStore) CompareAndSwap(_ context.Context, userID, category string, expectedVersion int64, rec model.ProgressRecord) (bool, error) {
	defer observe("cas")()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, fmt.Errorf("%w: %w", model.ErrStorageUnavailable, ErrClosed)
	}
	key := progressKey{userID, category}
	if s.progress[key].Version != expectedVersion {
		return false, nil
	}
	s.putLocked(key, expectedVersion+1, rec)
	return true, nil
}

func (s *MemoryStore) putLocked(key progressKey, version int64, rec model.ProgressRecord) {
	stored := rec.Clone()
	stored.Version = version
	stored.UpdatedAt = s.now().UTC()
	s.progress[key] = stored
}

// Append implements Ledger in O(log n) expected time.
func (s *MemoryStore) Append(_ context.Context, entry model.ScoreEntry) (model.ScoreEntry, error) {
	defer observe("append")()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.ScoreEntry{}, fmt.Errorf("%w: %w", model.ErrStorageUnavailable, ErrClosed)
	}
	s.seq++
	entry.Seq = s.seq
	tree, ok := s.ledgers[entry.Category]
	if !ok {
		tree = &ledgerTree{}
		s.ledgers[entry.Category] = tree
	}
	tree.root = insert(tree.root, entry, splitmix64(s.seed+uint64(entry.Seq)))
	return entry, nil
}

// TopN implements Ledger.
func (s *MemoryStore) TopN(_ context.Context, category string, n int) ([]model.ScoreEntry, error) {
	defer observe("top_n")()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("%w: %w", model.ErrStorageUnavailable, ErrClosed)
	}
	tree, ok := s.ledgers[category]
	if !ok {
		return []model.ScoreEntry{}, nil
	}
	out := make([]model.ScoreEntry, 0, min(n, nsize(tree.root)))
	collectTopN(tree.root, n, &out)
	return out, nil
}

// Count implements Ledger.
func (s *MemoryStore) Count(_ context.Context, category string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("%w: %w", model.ErrStorageUnavailable, ErrClosed)
	}
	tree, ok := s.ledgers[category]
	if !ok {
		return 0, nil
	}
	return int64(nsize(tree.root)), nil
}

func observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.RecordStoreLatency(storeMemory, op, time.Since(start))
	}
}
