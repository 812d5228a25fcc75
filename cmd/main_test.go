package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/codequest/internal/adapters/cache"
	"github.com/okian/codequest/internal/adapters/identity"
	"github.com/okian/codequest/internal/config"
	"github.com/okian/codequest/internal/domain/model"
	"github.com/okian/codequest/internal/domain/scoring"
	"github.com/okian/codequest/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

const testSecret = "cmd-test-secret-0123456789"

func TestRootCommand(t *testing.T) {
	convey.Convey("Given the root command", t, func() {
		root := newRootCmd()

		convey.Convey("Then it exposes serve, migrate and token", func() {
			names := map[string]bool{}
			for _, c := range root.Commands() {
				names[c.Name()] = true
			}
			convey.So(names["serve"], convey.ShouldBeTrue)
			convey.So(names["migrate"], convey.ShouldBeTrue)
			convey.So(names["token"], convey.ShouldBeTrue)
			convey.So(root.PersistentFlags().Lookup("config"), convey.ShouldNotBeNil)
		})
	})
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("CODEQUEST_JWT_SECRET", testSecret)
	t.Setenv("CODEQUEST_STORE", "memory")

	convey.Convey("Given the token command", t, func() {
		root := newRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)

		convey.Convey("When minting a token for a user", func() {
			root.SetArgs([]string{"token", "--user", "u-42", "--name", "ada"})
			err := root.ExecuteContext(context.Background())

			convey.Convey("Then the printed token verifies to that user", func() {
				convey.So(err, convey.ShouldBeNil)
				auth := identity.NewAuthenticator(testSecret, identity.WithIssuer("codequest"))
				p, err := auth.Verify(context.Background(), strings.TrimSpace(out.String()))
				convey.So(err, convey.ShouldBeNil)
				convey.So(p.UserID, convey.ShouldEqual, "u-42")
				convey.So(p.Username, convey.ShouldEqual, "ada")
			})
		})

		convey.Convey("When the user flag is missing", func() {
			root.SetArgs([]string{"token"})
			root.SetErr(&bytes.Buffer{})
			convey.So(root.ExecuteContext(context.Background()), convey.ShouldNotBeNil)
		})
	})
}

func TestMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "quest.db")
	t.Setenv("CODEQUEST_JWT_SECRET", testSecret)
	t.Setenv("CODEQUEST_STORE", "sqlite")
	t.Setenv("CODEQUEST_SQLITE_PATH", dbPath)
	t.Setenv(configEnvVar, "")

	convey.Convey("Given a fresh sqlite path", t, func() {
		convey.Convey("When migrate runs twice", func() {
			for i := 0; i < 2; i++ {
				root := newRootCmd()
				root.SetArgs([]string{"migrate"})
				convey.So(root.ExecuteContext(context.Background()), convey.ShouldBeNil)
			}

			convey.Convey("Then the database file exists", func() {
				_, err := os.Stat(dbPath)
				convey.So(err, convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given a config file that does not exist", t, func() {
		root := newRootCmd()
		root.SetErr(&bytes.Buffer{})
		root.SetArgs([]string{"migrate", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
		err := root.ExecuteContext(context.Background())
		convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		_ = os.Unsetenv(configEnvVar)
	})
}

func TestBuildService(t *testing.T) {
	ctx := context.Background()
	log := logger.Nop()

	convey.Convey("Given an in-memory configuration with shipped challenges", t, func() {
		cfg := config.New()
		cfg.Store = config.StoreMemory
		cfg.JWTSecret = testSecret
		cfg.ChallengesDir = filepath.Join("..", "challenges")

		svc, err := buildService(ctx, cfg, log)
		convey.So(err, convey.ShouldBeNil)
		defer func() { _ = svc.Close() }()

		convey.Convey("Then the service is fully wired", func() {
			stats := svc.GetStats(ctx)
			convey.So(stats["store"], convey.ShouldEqual, "memory")
			convey.So(stats["executionEnabled"], convey.ShouldBeTrue)
			convey.So(stats["challengesEnabled"], convey.ShouldBeTrue)
			convey.So(svc.Ping(ctx), convey.ShouldBeNil)

			view, err := svc.RequestLevel(ctx, model.Principal{UserID: "u-1"}, "php", 1)
			convey.So(err, convey.ShouldBeNil)
			convey.So(view.Challenge, convey.ShouldNotBeNil)
		})
	})

	convey.Convey("Given optional backends left unset", t, func() {
		cfg := config.New()

		convey.Convey("Then the cache is a no-op", func() {
			lb, err := openCache(ctx, cfg, log)
			convey.So(err, convey.ShouldBeNil)
			convey.So(lb, convey.ShouldHaveSameTypeAs, cache.Nop{})
		})

		convey.Convey("Then no challenges directory means no catalog", func() {
			cfg.ChallengesDir = ""
			c, err := loadCatalog(ctx, cfg, log)
			convey.So(err, convey.ShouldBeNil)
			convey.So(c, convey.ShouldBeNil)
		})
	})

	convey.Convey("Given each sandbox provider", t, func() {
		cfg := config.New()
		for _, p := range []string{config.SandboxPiston, config.SandboxGoJudge} {
			cfg.SandboxProvider = p
			e, err := newExecutor(cfg, log)
			convey.So(err, convey.ShouldBeNil)
			convey.So(e, convey.ShouldNotBeNil)
		}

		cfg.SandboxProvider = "docker"
		_, err := newExecutor(cfg, log)
		convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
	})

	convey.Convey("Given an unknown store", t, func() {
		cfg := config.New()
		cfg.Store = "mongo"
		_, err := openStore(ctx, cfg, log)
		convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
	})

	convey.Convey("Given score settings", t, func() {
		cfg := config.New()
		cfg.ScoreCeiling = 50
		cfg.ScoreWeights = map[string]float64{"java": 2}
		p := newPolicy(cfg)

		convey.Convey("Then the policy weights and caps", func() {
			php, err := p.Score(ctx, scoringInput("php", 40))
			convey.So(err, convey.ShouldBeNil)
			convey.So(php, convey.ShouldEqual, 40)
			java, err := p.Score(ctx, scoringInput("java", 40))
			convey.So(err, convey.ShouldBeNil)
			convey.So(java, convey.ShouldEqual, 50)
		})
	})
}

func scoringInput(category string, reported int) scoring.Input {
	return scoring.Input{UserID: "u-1", Category: category, Level: 1, Reported: reported}
}
