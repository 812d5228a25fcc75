package repository

import "time"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithClock overrides the time source used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSeed fixes the treap priority seed for reproducible layouts in tests.
func WithSeed(seed uint64) Option {
	return func(s *MemoryStore) {
		s.seed = seed
	}
}
