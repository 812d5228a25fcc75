package main

import (
	"context"
	"fmt"

	"github.com/okian/codequest/internal/adapters/cache"
	"github.com/okian/codequest/internal/adapters/challenge"
	"github.com/okian/codequest/internal/adapters/repository"
	"github.com/okian/codequest/internal/adapters/repository/postgres"
	"github.com/okian/codequest/internal/adapters/repository/sqlite"
	"github.com/okian/codequest/internal/adapters/sandbox"
	app "github.com/okian/codequest/internal/app"
	"github.com/okian/codequest/internal/config"
	"github.com/okian/codequest/internal/domain/dedupe"
	"github.com/okian/codequest/internal/domain/model"
	"github.com/okian/codequest/internal/domain/scoring"
	"github.com/okian/codequest/pkg/logger"
)

// buildService opens every backend named by cfg and assembles the service.
// On error everything opened so far is closed.
func buildService(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Service, error) {
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	lb, err := openCache(ctx, cfg, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	catalog, err := loadCatalog(ctx, cfg, log)
	if err != nil {
		_ = lb.Close()
		_ = store.Close()
		return nil, err
	}

	executor, err := newExecutor(cfg, log)
	if err != nil {
		_ = lb.Close()
		_ = store.Close()
		return nil, err
	}

	opts := []app.Option{
		app.WithLogger(log),
		app.WithCategories(model.NewCategorySet(cfg.Categories...)),
		app.WithCache(lb),
		app.WithExecutor(executor),
		app.WithScoringPolicy(newPolicy(cfg)),
		app.WithMaxLimit(cfg.LeaderboardMaxLimit),
		app.WithCASRetries(cfg.ProgressCASRetries),
		app.WithDeduper(dedupe.NewTracker(dedupe.WithMaxKeys(cfg.SubmissionDedupeKeys))),
	}
	if catalog != nil {
		opts = append(opts, app.WithCatalog(catalog))
	}
	return app.New(store, opts...), nil
}

// openStore opens the configured backend and applies pending migrations.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		log.Warn(ctx, "using in-memory store; progress and scores are lost on restart")
		return repository.NewMemoryStore(), nil

	case config.StoreSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx, log); err != nil {
			_ = s.Close()
			return nil, err
		}
		log.Info(ctx, "using sqlite store", logger.String("path", cfg.SQLitePath))
		return s, nil

	case config.StorePostgres:
		s, err := postgres.Open(ctx, postgres.Config{
			DSN:      cfg.PostgresDSN,
			MaxConns: int32(cfg.PostgresMaxConns), //nolint:gosec // validated config value
		})
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, s.Pool(), log); err != nil {
			_ = s.Close()
			return nil, err
		}
		log.Info(ctx, "using postgres store")
		return s, nil

	default:
		return nil, fmt.Errorf("%w: unknown store %q", config.ErrInvalidConfig, cfg.Store)
	}
}

// openCache connects Redis when configured. Without it the ledger is read directly.
func openCache(ctx context.Context, cfg *config.Config, log logger.Logger) (cache.Leaderboard, error) {
	if cfg.RedisAddr == "" {
		return cache.Nop{}, nil
	}
	r, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
		cache.WithTTL(cfg.LeaderboardCacheTTL()))
	if err != nil {
		return nil, err
	}
	log.Info(ctx, "leaderboard cache enabled",
		logger.String("redis", cfg.RedisAddr),
		logger.Duration("ttl", cfg.LeaderboardCacheTTL()))
	return r, nil
}

// loadCatalog reads challenge content. A nil catalog disables challenges.
func loadCatalog(ctx context.Context, cfg *config.Config, log logger.Logger) (challenge.Catalog, error) {
	if cfg.ChallengesDir == "" {
		return nil, nil
	}
	c := challenge.NewYAMLCatalog(challenge.WithLogger(log))
	if err := c.LoadDir(ctx, cfg.ChallengesDir); err != nil {
		return nil, err
	}
	for _, cat := range cfg.Categories {
		if c.Levels(cat) == 0 {
			log.Warn(ctx, "category has no challenge levels", logger.String("category", cat))
		}
	}
	return c, nil
}

func newExecutor(cfg *config.Config, log logger.Logger) (sandbox.Executor, error) {
	var backend sandbox.Backend
	switch cfg.SandboxProvider {
	case config.SandboxPiston:
		backend = sandbox.NewPiston(cfg.SandboxURL)
	case config.SandboxGoJudge:
		backend = sandbox.NewGoJudge(cfg.SandboxURL)
	default:
		return nil, fmt.Errorf("%w: unknown sandbox_provider %q", config.ErrInvalidConfig, cfg.SandboxProvider)
	}

	runtimes := make(map[string]sandbox.Runtime, len(cfg.Runtimes))
	for cat, rt := range cfg.Runtimes {
		runtimes[cat] = sandbox.Runtime{Language: rt.Language, Version: rt.Version}
	}
	return sandbox.NewProxy(backend, runtimes,
		sandbox.WithTimeout(cfg.ExecutionTimeout()),
		sandbox.WithMaxInFlight(cfg.ExecutionMaxInFlight),
		sandbox.WithPayloadLimits(cfg.MaxSourceBytes, cfg.MaxStdinBytes),
		sandbox.WithLogger(log),
	), nil
}

func newPolicy(cfg *config.Config) scoring.Policy {
	return scoring.NewReportedPolicy(
		scoring.WithCeiling(cfg.ScoreCeiling),
		scoring.WithCategoryWeights(cfg.ScoreWeights, 1),
	)
}
