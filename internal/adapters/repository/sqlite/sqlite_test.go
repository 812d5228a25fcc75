package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/okian/codequest/internal/adapters/repository"
	"github.com/okian/codequest/internal/adapters/repository/repotest"
	"github.com/okian/codequest/internal/adapters/repository/sqlite"
	"github.com/okian/codequest/internal/domain/model"
	"github.com/okian/codequest/pkg/logger"
)

func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "data", "codequest.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	if err := s.Migrate(context.Background(), logger.Nop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestSQLiteStore_Suite(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repository.Store {
		return openTestStore(t)
	})
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)
	t.Cleanup(func() { _ = s.Close() })

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL = 1
	}
	for _, tt := range tests {
		var got string
		if err := s.DB().QueryRow("PRAGMA " + tt.pragma).Scan(&got); err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(context.Background(), nil); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var n int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 recorded migration, got %d", n)
	}
}

func TestProgressSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "codequest.db")

	s, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Migrate(ctx, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := s.Save(ctx, "u1", "java", model.ProgressFromLevels(3, []int{1, 2})); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = s.Close()

	s, err = sqlite.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	rec, err := s.Get(ctx, "u1", "java")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.UnlockedLevel != 3 || len(rec.Completed()) != 2 {
		t.Errorf("unexpected record after reopen: %+v", rec)
	}
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	s := openTestStore(t)
	_ = s.Close()

	_, err := s.Get(context.Background(), "u1", "java")
	if !errors.Is(err, model.ErrStorageUnavailable) {
		t.Errorf("expected storage unavailable, got %v", err)
	}
}
