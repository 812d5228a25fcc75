// Package repository defines the progress store and score ledger contracts
// and an in-memory implementation of both.
package repository

import (
	"context"

	"github.com/okian/codequest/internal/domain/model"
)

// ProgressStore maps (user, category) to a progress record.
type ProgressStore interface {
	// Get returns the stored record or model.DefaultProgress when none exists.
	// Absence is not an error.
	Get(ctx context.Context, userID, category string) (model.ProgressRecord, error)

	// Save overwrites the record unconditionally (last writer wins).
	Save(ctx context.Context, userID, category string, rec model.ProgressRecord) error

	// CompareAndSwap writes rec only if the stored version equals expectedVersion
	// (0 means no row yet). The stored version becomes expectedVersion+1.
	// Returns false without error when another writer got there first.
	CompareAndSwap(ctx context.Context, userID, category string, expectedVersion int64, rec model.ProgressRecord) (bool, error)
}

// Ledger is the append-only score ledger.
type Ledger interface {
	// Append stores entry and returns it with its sequence number set.
	// Either the whole entry is stored or nothing is.
	Append(ctx context.Context, entry model.ScoreEntry) (model.ScoreEntry, error)

	// TopN returns up to n entries for category ordered by score desc,
	// then SubmittedAt asc, then Seq asc.
	TopN(ctx context.Context, category string, n int) ([]model.ScoreEntry, error)

	// Count returns the number of entries recorded for category.
	Count(ctx context.Context, category string) (int64, error)
}

// Store is a durable backend serving both contracts.
type Store interface {
	ProgressStore
	Ledger

	// Name identifies the backend in logs and metrics.
	Name() string
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases the backend's resources.
	Close() error
}
