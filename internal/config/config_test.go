package config_test

import (
	"errors"
	"testing"

	"github.com/okian/codequest/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":5000")
			convey.So(cfg.Store, convey.ShouldEqual, config.StoreSQLite)
			convey.So(cfg.Categories, convey.ShouldResemble, []string{"java", "php"})
			convey.So(cfg.LeaderboardMaxLimit, convey.ShouldEqual, 10)
			convey.So(cfg.SandboxProvider, convey.ShouldEqual, config.SandboxPiston)
			convey.So(cfg.Runtimes["java"].Language, convey.ShouldEqual, "java")
			convey.So(cfg.ExecutionTimeout().Seconds(), convey.ShouldEqual, 10)
		})

		convey.Convey("Then validation demands a jwt secret", func() {
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "jwt_secret")
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a valid config", t, func() {
		cfg := config.New()
		cfg.JWTSecret = "0123456789abcdef"
		convey.So(cfg.Validate(), convey.ShouldBeNil)

		convey.Convey("When the store is unknown", func() {
			cfg.Store = "mongo"
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When postgres is selected without a dsn", func() {
			cfg.Store = config.StorePostgres
			convey.So(cfg.Validate().Error(), convey.ShouldContainSubstring, "postgres_dsn")
		})

		convey.Convey("When a category has no runtime", func() {
			cfg.Categories = append(cfg.Categories, "Go")
			convey.So(cfg.Validate().Error(), convey.ShouldContainSubstring, `"go"`)
		})

		convey.Convey("When categories are empty", func() {
			cfg.Categories = nil
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When the sandbox provider is unknown", func() {
			cfg.SandboxProvider = "judge0"
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When the execution timeout is not positive", func() {
			cfg.ExecutionTimeoutMS = 0
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When the dedupe bound is negative", func() {
			cfg.SubmissionDedupeKeys = -1
			convey.So(cfg.Validate().Error(), convey.ShouldContainSubstring, "submission_dedupe_keys")
		})
	})
}
