// Package sqlite implements repository.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/codequest/internal/adapters/repository"
	"github.com/okian/codequest/internal/domain/model"
	"github.com/okian/codequest/pkg/metrics"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

const storeName = "sqlite"

// Store implements repository.Store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ repository.Store = (*Store)(nil)

// Open creates the database file if needed and applies the connection pragmas.
// Call Migrate before first use.
func Open(path string) (*Store, error) {
	if err := ensureDir(path); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStorageUnavailable, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", model.ErrStorageUnavailable, err)
	}
	// SQLite has a single writer; one connection keeps pragmas and
	// serializes compare-and-swap without busy retries.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: apply pragmas: %w", model.ErrStorageUnavailable, err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// DB returns the underlying *sql.DB for raw queries.
func (s *Store) DB() *sql.DB { return s.db }

// Name implements repository.Store.
func (s *Store) Name() string { return storeName }

// Ping implements repository.Store.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close implements repository.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get implements repository.ProgressStore.
func (s *Store) Get(ctx context.Context, userID, category string) (model.ProgressRecord, error) {
	defer observe("get")()

	var (
		unlocked  int
		levelsRaw string
		version   int64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT unlocked_level, completed_levels, version, updated_at
		FROM progress
		WHERE user_id = ? AND category = ?
	`, userID, category).Scan(&unlocked, &levelsRaw, &version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultProgress(), nil
	}
	if err != nil {
		return model.ProgressRecord{}, unavailable("get progress", err)
	}

	var levels []int
	if err := json.Unmarshal([]byte(levelsRaw), &levels); err != nil {
		return model.ProgressRecord{}, unavailable("decode completed levels", err)
	}
	rec := model.ProgressFromLevels(unlocked, levels)
	rec.Version = version
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return rec, nil
}

// Save implements repository.ProgressStore.
func (s *Store) Save(ctx context.Context, userID, category string, rec model.ProgressRecord) error {
	defer observe("save")()

	levels, err := json.Marshal(rec.Completed())
	if err != nil {
		return fmt.Errorf("encode completed levels: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO progress (user_id, category, unlocked_level, completed_levels, version, updated_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT (user_id, category) DO UPDATE
		SET unlocked_level = excluded.unlocked_level,
		    completed_levels = excluded.completed_levels,
		    version = progress.version + 1,
		    updated_at = excluded.updated_at
	`, userID, category, rec.UnlockedLevel, string(levels), s.now().UnixNano())
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

	var res sql.Result
	if expectedVersion == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO progress (user_id, category, unlocked_level, completed_levels, version, updated_at)
			VALUES (?, ?, ?, ?, 1, ?)
			ON CONFLICT (user_id, category) DO NOTHING
		`, userID, category, rec.UnlockedLevel, string(levels), s.now().UnixNano())
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE progress
			SET unlocked_level = ?, completed_levels = ?, version = version + 1, updated_at = ?
			WHERE user_id = ? AND category = ? AND version = ?
		`, rec.UnlockedLevel, string(levels), s.now().UnixNano(), userID, category, expectedVersion)
	}
	if err != nil {
		return false, unavailable("swap progress", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("swap progress", err)
	}
	return n == 1, nil
}

// Append implements repository.Ledger.
func (s *Store) Append(ctx context.Context, entry model.ScoreEntry) (model.ScoreEntry, error) {
	defer observe("append")()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO score_entries (id, user_id, username, category, score, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.UserID, entry.Username, entry.Category, entry.Score, entry.SubmittedAt.UnixNano())
	if err != nil {
		return model.ScoreEntry{}, unavailable("append score", err)
	}
	if entry.Seq, err = res.LastInsertId(); err != nil {
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, user_id, username, category, score, submitted_at
		FROM score_entries
		WHERE category = ?
		ORDER BY score DESC, submitted_at ASC, seq ASC
		LIMIT ?
	`, category, n)
	if err != nil {
		return nil, unavailable("query top scores", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]model.ScoreEntry, 0, n)
	for rows.Next() {
		var (
			e  model.ScoreEntry
			at int64
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.UserID, &e.Username, &e.Category, &e.Score, &at); err != nil {
			return nil, unavailable("scan score", err)
		}
		e.SubmittedAt = time.Unix(0, at).UTC()
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
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM score_entries WHERE category = ?`, category).Scan(&n); err != nil {
		return 0, unavailable("count scores", err)
	}
	return n, nil
}

// applyPragmas configures SQLite for a single-process service.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// ensureDir creates the parent directory of path if it doesn't exist.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
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
