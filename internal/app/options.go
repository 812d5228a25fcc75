package service

import (
	"time"

	"github.com/okian/codequest/internal/adapters/cache"
	"github.com/okian/codequest/internal/adapters/challenge"
	"github.com/okian/codequest/internal/adapters/sandbox"
	"github.com/okian/codequest/internal/domain/dedupe"
	"github.com/okian/codequest/internal/domain/model"
	"github.com/okian/codequest/internal/domain/scoring"
	"github.com/okian/codequest/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithCategories sets the enumerated category set.
func WithCategories(set model.CategorySet) Option {
	return func(s *Service) {
		if set.Len() > 0 {
			s.categories = set
		}
	}
}

// WithCache puts a snapshot cache in front of the ledger's top-N query.
func WithCache(c cache.Leaderboard) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithExecutor sets the sandbox executor. Without one Execute is unavailable.
func WithExecutor(e sandbox.Executor) Option {
	return func(s *Service) {
		s.executor = e
	}
}

// WithCatalog sets the challenge supply. Without one no challenge content is served.
func WithCatalog(c challenge.Catalog) Option {
	return func(s *Service) {
		s.catalog = c
	}
}

// WithScoringPolicy sets the policy deciding recorded scores.
func WithScoringPolicy(p scoring.Policy) Option {
	return func(s *Service) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithDeduper enables idempotency keys on score submissions.
func WithDeduper(t dedupe.Tracker) Option {
	return func(s *Service) {
		s.dedupe = t
	}
}

// WithMaxLimit caps top-N queries.
func WithMaxLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithCASRetries bounds optimistic retries when completions race.
func WithCASRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.casRetries = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
