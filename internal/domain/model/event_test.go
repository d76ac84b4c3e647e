package model_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	model "github.com/okian/loopfeed/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

var publisher = strings.Repeat("ab", 32)

func TestParseAddress(t *testing.T) {
	convey.Convey("Given address references", t, func() {
		convey.Convey("When the reference is well formed", func() {
			addr, err := model.ParseAddress("34236:" + strings.ToUpper(publisher) + ":clip:with:colons")

			convey.Convey("Then kind, publisher and slug should be extracted", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(addr.Kind, convey.ShouldEqual, model.KindShortVideo)
				convey.So(addr.Publisher, convey.ShouldEqual, publisher)
				convey.So(addr.Slug, convey.ShouldEqual, "clip:with:colons")
			})

			convey.Convey("And String should round trip", func() {
				again, err := model.ParseAddress(addr.String())
				convey.So(err, convey.ShouldBeNil)
				convey.So(again, convey.ShouldResemble, addr)
			})
		})

		convey.Convey("When the reference is malformed", func() {
			for _, ref := range []string{
				"",
				"34236:" + publisher,
				"1:" + publisher + ":slug",
				"x:" + publisher + ":slug",
				"34236:nothex:slug",
				"34236:" + publisher + ": ",
			} {
				_, err := model.ParseAddress(ref)
				convey.So(errors.Is(err, model.ErrBadAddress), convey.ShouldBeTrue)
			}
		})
	})
}

func TestFeedItem(t *testing.T) {
	convey.Convey("Given a feed item built from a content event", t, func() {
		created := time.Unix(1_700_000_000, 0)
		item := model.NewFeedItem(model.ContentEvent{
			ID:        "e1",
			Slug:      "v1",
			CreatedAt: created,
			Counters:  model.Counters{Loops: 7},
			Hashtags:  []string{"cats"},
		}, 0)

		convey.Convey("Then the effective timestamp should start at creation", func() {
			convey.So(item.EffectiveAt, convey.ShouldEqual, created)
			convey.So(item.Score, convey.ShouldEqual, 7)
			_, ok := item.LatestRepost()
			convey.So(ok, convey.ShouldBeFalse)
		})

		convey.Convey("When reposts arrive out of order", func() {
			t3 := created.Add(3 * time.Hour)
			item.AddRepost(model.RepostEntry{Actor: "u3", RepostedAt: t3, EventID: "r3"})
			item.AddRepost(model.RepostEntry{Actor: "u2", RepostedAt: created.Add(time.Hour), EventID: "r2"})
			item.AddRepost(model.RepostEntry{Actor: "u0", RepostedAt: created.Add(-time.Hour), EventID: "r0"})

			convey.Convey("Then the effective timestamp should be the latest repost", func() {
				convey.So(item.Reposts, convey.ShouldHaveLength, 3)
				convey.So(item.EffectiveAt, convey.ShouldEqual, t3)
				latest, ok := item.LatestRepost()
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(latest.EventID, convey.ShouldEqual, "r3")
			})

			convey.Convey("And never earlier than creation", func() {
				convey.So(item.EffectiveAt.Before(item.CreatedAt), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When cloning", func() {
			item.AddRepost(model.RepostEntry{Actor: "u2", RepostedAt: created.Add(time.Hour)})
			clone := item.Clone()
			item.AddRepost(model.RepostEntry{Actor: "u3", RepostedAt: created.Add(2 * time.Hour)})
			item.Hashtags[0] = "dogs"

			convey.Convey("Then the clone should not observe later mutation", func() {
				convey.So(clone.Reposts, convey.ShouldHaveLength, 1)
				convey.So(clone.Hashtags, convey.ShouldResemble, []string{"cats"})
			})
		})

		convey.Convey("When the publisher reports negative loops", func() {
			ev := model.ContentEvent{Counters: model.Counters{Loops: -50}}

			convey.Convey("Then loops should clamp to zero", func() {
				convey.So(ev.Loops(), convey.ShouldEqual, 0)
			})
		})
	})
}

func TestRankModes(t *testing.T) {
	convey.Convey("Given feed types", t, func() {
		convey.So(model.DefaultRankMode(model.FeedDiscovery), convey.ShouldEqual, model.RankTop)
		convey.So(model.DefaultRankMode(model.FeedTrending), convey.ShouldEqual, model.RankHot)
		convey.So(model.DefaultRankMode(model.FeedTag), convey.ShouldEqual, model.RankHot)
		convey.So(model.DefaultRankMode(model.FeedPersonalized), convey.ShouldEqual, model.RankChronological)
		convey.So(model.DefaultRankMode(model.FeedRecent), convey.ShouldEqual, model.RankChronological)
		convey.So(model.RankHot.IsHint(), convey.ShouldBeTrue)
		convey.So(model.RankPopular.IsHint(), convey.ShouldBeFalse)
		convey.So(model.RankMode("viral").Valid(), convey.ShouldBeFalse)
		convey.So(model.FeedType("inbox").Valid(), convey.ShouldBeFalse)
	})
}
