package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/loopfeed/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.CacheBackend, convey.ShouldEqual, "memory")
				convey.So(cfg.Relays, convey.ShouldResemble, []string{"wss://relay.divine.video"})
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("LOOPFEED_ADDR", ":8080")
			_ = os.Setenv("LOOPFEED_RELAYS", "wss://a.example, wss://b.example")
			_ = os.Setenv("LOOPFEED_RANK_HINTS", "false")
			_ = os.Setenv("LOOPFEED_TAG_FEED_TIMEOUT_MS", "20000")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.Relays, convey.ShouldResemble, []string{"wss://a.example", "wss://b.example"})
				convey.So(cfg.RankHints, convey.ShouldBeFalse)
				convey.So(cfg.TagFeedTimeoutMS, convey.ShouldEqual, 20000)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
relays:
  - wss://file.example
default_page_size: 30
cache_backend: sqlite
`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("LOOPFEED_CONFIG", tmpFile)
			_ = os.Setenv("LOOPFEED_ADDR", ":8080")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")                                   // env
				convey.So(cfg.Relays, convey.ShouldResemble, []string{"wss://file.example"})       // file
				convey.So(cfg.DefaultPageSize, convey.ShouldEqual, 30)                             // file
				convey.So(cfg.CacheBackend, convey.ShouldEqual, "sqlite")                          // file
				convey.So(cfg.RecentRefreshSec, convey.ShouldEqual, config.New().RecentRefreshSec) // default
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("LOOPFEED_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("LOOPFEED_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("LOOPFEED_DEFAULT_PAGE_SIZE", "not_a_number")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with an unknown cache backend", func() {
			_ = os.Setenv("LOOPFEED_CACHE_BACKEND", "redis")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "cache_backend")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"LOOPFEED_CONFIG",
		"LOOPFEED_ADDR",
		"LOOPFEED_RELAYS",
		"LOOPFEED_RANK_HINTS",
		"LOOPFEED_TAG_FEED_TIMEOUT_MS",
		"LOOPFEED_DEFAULT_PAGE_SIZE",
		"LOOPFEED_CACHE_BACKEND",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "loopfeed-config-*.yaml")
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
