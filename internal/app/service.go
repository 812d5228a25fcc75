// Package service orchestrates progression, the score ledger and code
// execution behind the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/codequest/internal/adapters/cache"
	"github.com/okian/codequest/internal/adapters/challenge"
	"github.com/okian/codequest/internal/adapters/repository"
	"github.com/okian/codequest/internal/adapters/sandbox"
	"github.com/okian/codequest/internal/domain/dedupe"
	"github.com/okian/codequest/internal/domain/gate"
	"github.com/okian/codequest/internal/domain/model"
	"github.com/okian/codequest/internal/domain/scoring"
	"github.com/okian/codequest/pkg/logger"
	"github.com/okian/codequest/pkg/metrics"
)

const (
	defaultMaxLimit   = 10
	defaultCASRetries = 5
)

// ErrDuplicateSubmission reports a score submission whose idempotency key was
// already recorded. Nothing is appended.
var ErrDuplicateSubmission = errors.New("duplicate score submission")

type submissionKeyCtx struct{}

// WithSubmissionKey attaches a client idempotency key to ctx. SubmitScore
// records at most one entry per user and key.
func WithSubmissionKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, submissionKeyCtx{}, key)
}

func submissionKey(ctx context.Context) string {
	k, _ := ctx.Value(submissionKeyCtx{}).(string)
	return k
}

// LevelView is the answer to a level request. Challenge is nil when the level
// is locked or the category has no content for it.
type LevelView struct {
	Decision  gate.Decision
	Challenge *model.ChallengeRecord
}

// Service implements the API dependencies.
type Service struct {
	store      repository.Store
	cache      cache.Leaderboard
	executor   sandbox.Executor
	catalog    challenge.Catalog
	policy     scoring.Policy
	dedupe     dedupe.Tracker
	categories model.CategorySet

	maxLimit   int
	casRetries int
	now        func() time.Time

	// ledgerGen counts appends per category so a top-N read that raced a
	// submission does not write its older snapshot back to the cache.
	ledgerGen map[string]*atomic.Uint64

	log logger.Logger
}

// New constructs a Service over store. Categories default to java and php.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		cache:      cache.Nop{},
		policy:     scoring.NewReportedPolicy(),
		categories: model.NewCategorySet("java", "php"),
		maxLimit:   defaultMaxLimit,
		casRetries: defaultCASRetries,
		now:        time.Now,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("service")
	s.ledgerGen = make(map[string]*atomic.Uint64, s.categories.Len())
	for _, cat := range s.categories.Names() {
		s.ledgerGen[cat] = new(atomic.Uint64)
	}
	return s
}

// Categories returns the configured category set.
func (s *Service) Categories() model.CategorySet { return s.categories }

// MaxLimit returns the top-N cap.
func (s *Service) MaxLimit() int { return s.maxLimit }

// Progress returns the caller's record for category, defaulted when absent.
func (s *Service) Progress(ctx context.Context, p model.Principal, category string) (model.ProgressRecord, error) {
	if !p.Authenticated() {
		return model.ProgressRecord{}, model.ErrNotAuthenticated
	}
	cat, err := s.categories.Canonical(category)
	if err != nil {
		return model.ProgressRecord{}, err
	}
	rec, err := s.store.Get(ctx, p.UserID, cat)
	if err != nil {
		return model.ProgressRecord{}, s.storageErr(ctx, "get progress", err)
	}
	metrics.RecordProgressRead()
	return rec, nil
}

// RequestLevel decides whether the caller may attempt level. A locked level is
// a normal outcome, not an error.
func (s *Service) RequestLevel(ctx context.Context, p model.Principal, category string, level int) (LevelView, error) {
	if !p.Authenticated() {
		return LevelView{}, model.ErrNotAuthenticated
	}
	cat, err := s.categories.Canonical(category)
	if err != nil {
		return LevelView{}, err
	}
	if err := model.ValidateLevel(level); err != nil {
		return LevelView{}, err
	}
	rec, err := s.store.Get(ctx, p.UserID, cat)
	if err != nil {
		return LevelView{}, s.storageErr(ctx, "get progress", err)
	}

	d := gate.Decide(rec, level)
	metrics.RecordLevelDecision(cat, d.Outcome.String())
	view := LevelView{Decision: d}
	if !d.Allowed() || s.catalog == nil {
		return view, nil
	}

	ch, err := s.catalog.Challenge(ctx, cat, level)
	switch {
	case err == nil:
		view.Challenge = &ch
	case errors.Is(err, model.ErrChallengeNotFound):
		s.log.Debug(ctx, "no challenge content for level",
			logger.String("category", cat), logger.Int("level", level))
	default:
		return LevelView{}, err
	}
	return view, nil
}

// CompleteLevel records level as completed and unlocks the next one. Concurrent
// completions for the same pair are serialized by compare-and-swap and retried
// up to the configured bound.
func (s *Service) CompleteLevel(ctx context.Context, p model.Principal, category string, level int) (model.ProgressRecord, error) {
	if !p.Authenticated() {
		return model.ProgressRecord{}, model.ErrNotAuthenticated
	}
	cat, err := s.categories.Canonical(category)
	if err != nil {
		return model.ProgressRecord{}, err
	}
	if err := model.ValidateLevel(level); err != nil {
		return model.ProgressRecord{}, err
	}

	for attempt := 1; attempt <= s.casRetries; attempt++ {
		cur, err := s.store.Get(ctx, p.UserID, cat)
		if err != nil {
			return model.ProgressRecord{}, s.storageErr(ctx, "get progress", err)
		}
		next, err := gate.Complete(cur, level)
		if err != nil {
			return model.ProgressRecord{}, err
		}
		if cur.Version > 0 && next.UnlockedLevel == cur.UnlockedLevel && cur.HasCompleted(level) {
			return cur, nil
		}

		next.UpdatedAt = s.now().UTC()
		ok, err := s.store.CompareAndSwap(ctx, p.UserID, cat, cur.Version, next)
		if err != nil {
			return model.ProgressRecord{}, s.storageErr(ctx, "save progress", err)
		}
		if ok {
			next.Version = cur.Version + 1
			metrics.RecordLevelCompletion(cat)
			s.log.Debug(ctx, "level completed",
				logger.String("user", p.UserID),
				logger.String("category", cat),
				logger.Int("level", level),
				logger.Int("unlocked", next.UnlockedLevel))
			return next, nil
		}
		metrics.RecordCASConflict()
		s.log.Debug(ctx, "progress update conflicted, retrying",
			logger.String("user", p.UserID),
			logger.String("category", cat),
			logger.Int("attempt", attempt))
	}

	metrics.RecordErrorByComponent("service", "cas_exhausted")
	return model.ProgressRecord{}, fmt.Errorf("%w: progress update conflicted %d times", model.ErrStorageUnavailable, s.casRetries)
}

// SubmitScore appends one ledger entry for the caller. level is 0 when unknown.
// A repeated idempotency key (see WithSubmissionKey) yields ErrDuplicateSubmission.
func (s *Service) SubmitScore(ctx context.Context, p model.Principal, category string, level, reported int) (entry model.ScoreEntry, err error) {
	if !p.Authenticated() {
		return model.ScoreEntry{}, model.ErrNotAuthenticated
	}
	cat, err := s.categories.Canonical(category)
	if err != nil {
		return model.ScoreEntry{}, err
	}
	if err := model.ValidateScore(reported); err != nil {
		return model.ScoreEntry{}, err
	}
	if level < 0 {
		return model.ScoreEntry{}, fmt.Errorf("%w: level must not be negative, got %d", model.ErrInvalidInput, level)
	}

	if key := submissionKey(ctx); key != "" && s.dedupe != nil {
		key = p.UserID + "/" + key
		if !s.dedupe.Claim(ctx, key) {
			metrics.RecordDuplicateSubmission(cat)
			s.log.Debug(ctx, "duplicate score submission ignored",
				logger.String("user", p.UserID), logger.String("category", cat))
			return model.ScoreEntry{}, ErrDuplicateSubmission
		}
		defer func() {
			if err != nil {
				s.dedupe.Release(ctx, key)
			}
		}()
	}

	score, err := s.policy.Score(ctx, scoring.Input{
		UserID:   p.UserID,
		Category: cat,
		Level:    level,
		Reported: reported,
	})
	if err != nil {
		return model.ScoreEntry{}, err
	}
	if err := model.ValidateScore(score); err != nil {
		return model.ScoreEntry{}, fmt.Errorf("scoring policy: %w", err)
	}

	username := p.Username
	if username == "" {
		username = p.UserID
	}
	// Postgres keeps microseconds; truncating keeps every backend's ordering identical.
	entry, err = s.store.Append(ctx, model.ScoreEntry{
		ID:          uuid.NewString(),
		UserID:      p.UserID,
		Username:    username,
		Category:    cat,
		Score:       score,
		SubmittedAt: s.now().UTC().Truncate(time.Microsecond),
	})
	if err != nil {
		return model.ScoreEntry{}, s.storageErr(ctx, "append score", err)
	}
	metrics.RecordScoreSubmission(cat)
	s.ledgerGen[cat].Add(1)

	if err := s.cache.Invalidate(ctx, cat); err != nil {
		metrics.RecordErrorByComponent("cache", "invalidate")
		s.log.Warn(ctx, "leaderboard cache invalidation failed",
			logger.String("category", cat), logger.Error(err))
	}
	if n, err := s.store.Count(ctx, cat); err == nil {
		metrics.UpdateLedgerSize(cat, n)
	}
	return entry, nil
}

// TopN returns up to n best entries for category. n is capped at the
// configured maximum.
func (s *Service) TopN(ctx context.Context, category string, n int) ([]model.ScoreEntry, error) {
	cat, err := s.categories.Canonical(category)
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", model.ErrInvalidInput, n)
	}
	if n > s.maxLimit {
		n = s.maxLimit
	}
	metrics.RecordLeaderboardRead(cat)

	cached, ok, err := s.cache.Get(ctx, cat)
	switch {
	case err != nil:
		metrics.RecordCacheLookup("error")
		s.log.Warn(ctx, "leaderboard cache read failed",
			logger.String("category", cat), logger.Error(err))
	case ok:
		metrics.RecordCacheLookup("hit")
		return head(cached, n), nil
	default:
		metrics.RecordCacheLookup("miss")
	}

	// The snapshot always holds maxLimit entries so any n can be served from it.
	gen := s.ledgerGen[cat].Load()
	entries, err := s.store.TopN(ctx, cat, s.maxLimit)
	if err != nil {
		return nil, s.storageErr(ctx, "top n", err)
	}
	if s.ledgerGen[cat].Load() != gen {
		s.log.Debug(ctx, "ledger changed during read, not caching snapshot", logger.String("category", cat))
		return head(entries, n), nil
	}
	if err := s.cache.Set(ctx, cat, entries); err != nil {
		metrics.RecordErrorByComponent("cache", "set")
		s.log.Warn(ctx, "leaderboard cache write failed",
			logger.String("category", cat), logger.Error(err))
	}
	return head(entries, n), nil
}

// Execute runs the caller's program in the sandbox.
func (s *Service) Execute(ctx context.Context, p model.Principal, req model.ExecutionRequest) (model.ExecutionResult, error) {
	if !p.Authenticated() {
		return model.ExecutionResult{}, model.ErrNotAuthenticated
	}
	lang, err := s.categories.Canonical(req.Language)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	if s.executor == nil {
		return model.ExecutionResult{}, fmt.Errorf("%w: no sandbox configured", model.ErrExecutionUnavailable)
	}
	req.Language = lang
	return s.executor.Run(ctx, req)
}

// Daily returns today's quest for category.
func (s *Service) Daily(ctx context.Context, category string) (model.ChallengeRecord, error) {
	cat, err := s.categories.Canonical(category)
	if err != nil {
		return model.ChallengeRecord{}, err
	}
	if s.catalog == nil {
		return model.ChallengeRecord{}, fmt.Errorf("%w: no challenge content", model.ErrChallengeNotFound)
	}
	return s.catalog.Daily(ctx, cat, s.now())
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return s.storageErr(ctx, "ping", err)
	}
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	ledger := make(map[string]int64, s.categories.Len())
	for _, cat := range s.categories.Names() {
		n, err := s.store.Count(ctx, cat)
		if err != nil {
			s.log.Warn(ctx, "ledger count failed", logger.String("category", cat), logger.Error(err))
			continue
		}
		ledger[cat] = n
		metrics.UpdateLedgerSize(cat, n)
	}
	return map[string]interface{}{
		"store":               s.store.Name(),
		"categories":          s.categories.Names(),
		"ledgerEntries":       ledger,
		"leaderboardMaxLimit": s.maxLimit,
		"casRetries":          s.casRetries,
		"executionEnabled":    s.executor != nil,
		"challengesEnabled":   s.catalog != nil,
		"dedupeKeys":          dedupeSize(s.dedupe),
	}
}

func dedupeSize(t dedupe.Tracker) int64 {
	if t == nil {
		return 0
	}
	return t.Size()
}

// Close releases the cache and the store.
func (s *Service) Close() error {
	return errors.Join(s.cache.Close(), s.store.Close())
}

func (s *Service) storageErr(ctx context.Context, op string, err error) error {
	metrics.RecordErrorByComponent("store", op)
	s.log.Error(ctx, "store call failed",
		logger.String("store", s.store.Name()),
		logger.String("op", op),
		logger.Error(err))
	if errors.Is(err, model.ErrStorageUnavailable) || errors.Is(err, model.ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", model.ErrStorageUnavailable, op, err)
}

func head(entries []model.ScoreEntry, n int) []model.ScoreEntry {
	if len(entries) > n {
		entries = entries[:n]
	}
	out := make([]model.ScoreEntry, len(entries))
	copy(out, entries)
	return out
}
