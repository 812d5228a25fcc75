package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/codequest/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

const testSecret = "test-secret-0123456789"

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()
		_ = os.Setenv("CODEQUEST_JWT_SECRET", testSecret)

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":5000")
				convey.So(cfg.Categories, convey.ShouldResemble, []string{"java", "php"})
				convey.So(cfg.JWTSecret, convey.ShouldEqual, testSecret)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("CODEQUEST_ADDR", ":8080")
			_ = os.Setenv("CODEQUEST_STORE", "memory")
			_ = os.Setenv("CODEQUEST_EXECUTION_TIMEOUT_MS", "2500")
			_ = os.Setenv("CODEQUEST_CATEGORIES", " java , php ,java")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
				convey.So(cfg.ExecutionTimeoutMS, convey.ShouldEqual, 2500)
				convey.So(cfg.Categories, convey.ShouldResemble, []string{"java", "php"})
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
store: memory
categories: [java, php, go]
runtimes:
  java: {language: java, version: "15.0.2"}
  php: {language: php, version: "8.2.3"}
  go: {language: go, version: "1.16.2"}
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("CODEQUEST_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values replace the defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.Categories, convey.ShouldResemble, []string{"java", "php", "go"})
				convey.So(cfg.Runtimes["go"].Version, convey.ShouldEqual, "1.16.2")
				convey.So(cfg.Runtimes["java"].Version, convey.ShouldEqual, "15.0.2")
			})

			convey.Convey("And env still wins over the file", func() {
				_ = os.Setenv("CODEQUEST_ADDR", ":7070")
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
			})
		})

		convey.Convey("When a shorter category list comes from env", func() {
			_ = os.Setenv("CODEQUEST_CATEGORIES", "php")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it replaces the default list instead of merging", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Categories, convey.ShouldResemble, []string{"php"})
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("CODEQUEST_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("CODEQUEST_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("CODEQUEST_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("CODEQUEST_EXECUTION_TIMEOUT_MS", "soon")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the jwt secret is missing", func() {
			_ = os.Unsetenv("CODEQUEST_JWT_SECRET")

			_, err := config.Load(ctx)

			convey.Convey("Then validation rejects the config", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	for _, envVar := range []string{
		"CODEQUEST_CONFIG",
		"CODEQUEST_ADDR",
		"CODEQUEST_STORE",
		"CODEQUEST_CATEGORIES",
		"CODEQUEST_EXECUTION_TIMEOUT_MS",
		"CODEQUEST_JWT_SECRET",
	} {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "codequest-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
