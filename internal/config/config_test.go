package config_test

import (
	"errors"
	"testing"

	"github.com/okian/loopfeed/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.DefaultPageSize, convey.ShouldEqual, 20)
			convey.So(cfg.TrendingInitialPageSize, convey.ShouldBeLessThan, cfg.TrendingPageSize)
			convey.So(cfg.TagFeedTimeoutMS, convey.ShouldBeGreaterThan, cfg.FeedTimeoutMS)
			convey.So(cfg.PersonalizedRefreshSec, convey.ShouldEqual, 600)
			convey.So(cfg.RecentRefreshSec, convey.ShouldEqual, 30)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given configs violating constraints", t, func() {
		cases := []struct {
			name   string
			mutate func(*config.Config)
		}{
			{"empty addr", func(c *config.Config) { c.Addr = "" }},
			{"no relays", func(c *config.Config) { c.Relays = nil }},
			{"zero page size", func(c *config.Config) { c.DefaultPageSize = 0 }},
			{"max below default", func(c *config.Config) { c.MaxPageSize = 5 }},
			{"zero timeout", func(c *config.Config) { c.FeedTimeoutMS = 0 }},
			{"unknown backend", func(c *config.Config) { c.CacheBackend = "redis" }},
		}
		for _, tc := range cases {
			cfg := config.New()
			tc.mutate(cfg)

			convey.Convey("Then validation should fail for "+tc.name, func() {
				err := cfg.Validate()
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}
