// Package postgres implements repository.Store on PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okian/codequest/internal/adapters/repository"
	"github.com/okian/codequest/internal/domain/model"
	"github.com/okian/codequest/pkg/metrics"
)

const storeName = "postgres"

// Config holds PostgreSQL connection configuration.
type Config struct {
	DSN         string
	MaxConns    int32
	MinConns    int32
	MaxLifetime time.Duration
}

// Store implements repository.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ repository.Store = (*Store)(nil)

// Open connects, pings and returns a store. Call Migrate before first use.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}
	poolConfig.MaxConns = 25
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	poolConfig.MaxConnLifetime = 30 * time.Minute
	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: create pool: %w", model.ErrStorageUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %w", model.ErrStorageUnavailable, err)
	}
	return &Store{pool: pool}, nil
}

// Pool exposes the pool for migrations.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Name implements repository.Store.
func (s *Store) Name() string { return storeName }

// Ping implements repository.Store.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close implements repository.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Get implements repository.ProgressStore.
func (s *Store) Get(ctx context.Context, userID, category string) (model.ProgressRecord, error) {
	defer observe("get")()

	var (
		unlocked  int
		levelsRaw []byte
		version   int64
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT unlocked_level, completed_levels, version, updated_at
		FROM progress
		WHERE user_id = $1 AND category = $2
	`, userID, category).Scan(&unlocked, &levelsRaw, &version, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DefaultProgress(), nil
	}
	if err != nil {
		return model.ProgressRecord{}, unavailable("get progress", err)
	}

	var levels []int
	if err := json.Unmarshal(levelsRaw, &levels); err != nil {
		return model.ProgressRecord{}, unavailable("decode completed levels", err)
	}
	rec := model.ProgressFromLevels(unlocked, levels)
	rec.Version = version
	rec.UpdatedAt = updatedAt.UTC()
	return rec, nil
}

// Save implements repository.ProgressStore.
func (s *Store) Save(ctx context.Context, userID, category string, rec model.ProgressRecord) error {
	defer observe("save")()

	levels, err := json.Marshal(rec.Completed())
	if err != nil {
		return fmt.Errorf("encode completed levels: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO progress (user_id, category, unlocked_level, completed_levels, version, updated_at)
		VALUES ($1, $2, $3, $4, 1, NOW())
		ON CONFLICT (user_id, category) DO UPDATE
		SET unlocked_level = EXCLUDED.unlocked_level,
		    completed_levels = EXCLUDED.completed_levels,
		    version = progress.version + 1,
		    updated_at = NOW()
	`, userID, category, rec.UnlockedLevel, levels)
	if err != nil {
		return unavailable("save progress", err)
	}
	return nil
}

// CompareAndSwap implements repository.ProgressStore.
func (s *Store) CompareAndSwap(ctx context.Context, userID, category string, expectedVersion int64, rec model.ProgressRecord) (bool, error) {
	defer observe("cas")()

	levels, err := json.Marshal(rec.Completed())
	if err != nil {
		return false, fmt.Errorf("encode completed levels: %w", err)
	}

	var query string
	args := []any{userID, category, rec.UnlockedLevel, levels}
	if expectedVersion == 0 {
		query = `
			INSERT INTO progress (user_id, category, unlocked_level, completed_levels, version, updated_at)
			VALUES ($1, $2, $3, $4, 1, NOW())
			ON CONFLICT (user_id, category) DO NOTHING`
	} else {
		query = `
			UPDATE progress
			SET unlocked_level = $3, completed_levels = $4, version = version + 1, updated_at = NOW()
			WHERE user_id = $1 AND category = $2 AND version = $5`
		args = append(args, expectedVersion)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, unavailable("swap progress", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Append implements repository.Ledger.
func (s *Store) Append(ctx context.Context, entry model.ScoreEntry) (model.ScoreEntry, error) {
	defer observe("append")()

	err := s.pool.QueryRow(ctx, `
		INSERT INTO score_entries (id, user_id, username, category, score, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq
	`, entry.ID, entry.UserID, entry.Username, entry.Category, entry.Score, entry.SubmittedAt).Scan(&entry.Seq)
	if err != nil {
		return model.ScoreEntry{}, unavailable("append score", err)
	}
	return entry, nil
}

// TopN implements repository.Ledger.
func (s *Store) TopN(ctx context.Context, category string, n int) ([]model.ScoreEntry, error) {
	defer observe("top_n")()

	if n < 1 {
		return nil, repository.ErrInvalidLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT seq, id, user_id, username, category, score, submitted_at
		FROM score_entries
		WHERE category = $1
		ORDER BY score DESC, submitted_at ASC, seq ASC
		LIMIT $2
	`, category, n)
	if err != nil {
		return nil, unavailable("query top scores", err)
	}
	defer rows.Close()

	out := make([]model.ScoreEntry, 0, n)
	for rows.Next() {
		var e model.ScoreEntry
		if err := rows.Scan(&e.Seq, &e.ID, &e.UserID, &e.Username, &e.Category, &e.Score, &e.SubmittedAt); err != nil {
			return nil, unavailable("scan score", err)
		}
		e.SubmittedAt = e.SubmittedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate scores", err)
	}
	return out, nil
}

// Count implements repository.Ledger.
func (s *Store) Count(ctx context.Context, category string) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM score_entries WHERE category = $1`, category).Scan(&n); err != nil {
		return 0, unavailable("count scores", err)
	}
	return n, nil
}

func unavailable(op string, err error) error {
	metrics.RecordErrorByComponent(storeName, "unavailable")
	return fmt.Errorf("%w: %s: %w", model.ErrStorageUnavailable, op, err)
}

func observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.RecordStoreLatency(storeName, op, time.Since(start))
	}
}
