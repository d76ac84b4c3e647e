package ranking_test

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/loopfeed/internal/domain/model"
	"github.com/okian/loopfeed/internal/domain/ranking"
	"github.com/okian/loopfeed/internal/testutil"
)

func item(slug string, seq int, loops int64, created time.Duration) *model.FeedItem {
	return model.NewFeedItem(model.ContentEvent{
		Slug:      slug,
		CreatedAt: testutil.Base.Add(created),
		Counters:  model.Counters{Loops: loops},
	}, seq)
}

func order(items []*model.FeedItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Slug
	}
	return out
}

func TestComparators(t *testing.T) {
	Convey("Given items with mixed recency and loops", t, func() {
		reposted := item("c", 2, 1, 0)
		reposted.AddRepost(model.RepostEntry{Actor: "u", RepostedAt: testutil.Base.Add(5 * time.Hour)})
		items := func() []*model.FeedItem {
			return []*model.FeedItem{
				item("a", 0, 10, time.Hour),
				item("b", 1, 3, 2*time.Hour),
				reposted,
				item("d", 3, 10, 3*time.Hour),
				item("e", 4, -7, 4*time.Hour),
			}
		}

		Convey("Then chronological should use the effective timestamp", func() {
			So(order(ranking.Rank(items(), ranking.Chronological, 0)), ShouldResemble, []string{"c", "e", "d", "b", "a"})
		})

		Convey("Then popularity should use loops and break ties by recency", func() {
			So(order(ranking.Rank(items(), ranking.Popularity, 0)), ShouldResemble, []string{"d", "a", "b", "c", "e"})
		})

		Convey("Then insertion should keep the store order", func() {
			So(order(ranking.Rank(items(), ranking.Insertion, 0)), ShouldResemble, []string{"a", "b", "c", "d", "e"})
		})

		Convey("Then rank should truncate to the page size", func() {
			So(order(ranking.Rank(items(), ranking.Chronological, 2)), ShouldResemble, []string{"c", "e"})
		})
	})
}

func TestComparatorTotality(t *testing.T) {
	Convey("Given many items with colliding keys", t, func() {
		var items []*model.FeedItem
		for i := 0; i < 30; i++ {
			it := item(fmt.Sprintf("s%d", i), i, int64(i%3), time.Duration(i%4)*time.Hour)
			it.Score = int64(i % 5)
			items = append(items, it)
		}

		comparators := []struct {
			name string
			less ranking.Comparator
		}{
			{"chronological", ranking.Chronological},
			{"popularity", ranking.Popularity},
			{"engagement", ranking.Engagement},
			{"insertion", ranking.Insertion},
		}
		for _, c := range comparators {
			less := c.less
			Convey("Then "+c.name+" should order every distinct pair exactly one way", func() {
				for _, a := range items {
					So(less(a, a), ShouldBeFalse)
					for _, b := range items {
						if a == b {
							continue
						}
						So(less(a, b) != less(b, a), ShouldBeTrue)
					}
				}
			})
		}
	})
}

func TestEngagementFallback(t *testing.T) {
	Convey("Given a store that ignored the rank hint", t, func() {
		items := []*model.FeedItem{
			item("v1", 0, 2, time.Hour),
			item("v2", 1, 10, 0),
		}

		Convey("When interaction counts are applied", func() {
			ranking.ApplyEngagement(items, map[string]int64{"v1": 3})
			ranked := ranking.Rank(items, ranking.Engagement, 0)

			Convey("Then scores should add loops and interactions", func() {
				So(ranked[0].Slug, ShouldEqual, "v2")
				So(ranked[0].Score, ShouldEqual, 10)
				So(ranked[1].Score, ShouldEqual, 5)
				So(ranked[1].Interactions, ShouldEqual, 3)
			})
		})
	})

	Convey("Given an item whose loop counter is near the int64 limit", t, func() {
		items := []*model.FeedItem{
			item("huge", 0, math.MaxInt64-1, 0),
			item("small", 1, 1, 0),
		}
		ranking.ApplyEngagement(items, map[string]int64{"huge": 5, "small": 2})

		Convey("Then its score should saturate instead of wrapping", func() {
			So(items[0].Score, ShouldEqual, int64(math.MaxInt64))
			So(items[1].Score, ShouldEqual, 3)
			So(ranking.Rank(items, ranking.Engagement, 0)[0].Slug, ShouldEqual, "huge")
		})
	})
}

func TestLooksChronological(t *testing.T) {
	Convey("Given returned batches", t, func() {
		ev := func(ts int64) *nostr.Event { return &nostr.Event{CreatedAt: nostr.Timestamp(ts)} }

		So(ranking.LooksChronological(nil), ShouldBeFalse)
		So(ranking.LooksChronological([]*nostr.Event{ev(5)}), ShouldBeFalse)
		So(ranking.LooksChronological([]*nostr.Event{ev(5), ev(5), ev(3)}), ShouldBeTrue)
		So(ranking.LooksChronological([]*nostr.Event{ev(3), ev(5), ev(1)}), ShouldBeFalse)
	})
}
