// Package cache holds short-lived leaderboard snapshots in front of the ledger.
// The ledger stays the source of truth; a cache failure never fails a request.
package cache

import (
	"context"

	"github.com/okian/codequest/internal/domain/model"
)

// Leaderboard caches the top entries of a category.
type Leaderboard interface {
	// Get returns the cached snapshot and whether one was present.
	Get(ctx context.Context, category string) ([]model.ScoreEntry, bool, error)
	// Set stores a snapshot for category.
	Set(ctx context.Context, category string, entries []model.ScoreEntry) error
	// Invalidate drops the snapshot for category.
	Invalidate(ctx context.Context, category string) error
	// Close releases the cache's resources.
	Close() error
}

// Nop never holds anything; every Get is a miss.
type Nop struct{}

var _ Leaderboard = Nop{}

// Get implements Leaderboard.
func (Nop) Get(context.Context, string) ([]model.ScoreEntry, bool, error) { return nil, false, nil }

// Set implements Leaderboard.
func (Nop) Set(context.Context, string, []model.ScoreEntry) error { return nil }

// Invalidate implements Leaderboard.
func (Nop) Invalidate(context.Context, string) error { return nil }

// Close implements Leaderboard.
func (Nop) Close() error { return nil }
