package validate_test

import (
	"math"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/loopfeed/internal/domain/model"
	"github.com/okian/loopfeed/internal/domain/validate"
	"github.com/okian/loopfeed/internal/testutil"
)

func TestValidateContent(t *testing.T) {
	Convey("Given a well formed video event", t, func() {
		ev := testutil.Video("alice", "v1",
			testutil.WithLoops(42),
			testutil.WithHashtag("#Cats"),
			testutil.WithHashtag("cats"),
		)
		ev.Tags = append(ev.Tags,
			nostr.Tag{"imeta", "url https://cdn.example/v1.mp4", "fallback https://mirror.example/v1.mp4", "duration 6.5"},
			nostr.Tag{"verification", "verified_mobile"},
			nostr.Tag{"proofmode", `{"sig":"x"}`},
			nostr.Tag{"origin", "vine", "abc", "https://vine.co/v/abc"},
		)

		v := validate.Validate(ev)

		Convey("Then it should be accepted as content", func() {
			So(v.Rejected(), ShouldBeFalse)
			So(v.Interaction, ShouldBeNil)
			So(v.Content, ShouldNotBeNil)
			So(v.Content.Slug, ShouldEqual, "v1")
			So(v.Content.Publisher, ShouldEqual, testutil.Key("alice"))
			So(v.Content.CreatedAt, ShouldEqual, testutil.Base)
		})

		Convey("Then media should come from the first imeta url", func() {
			So(v.Content.MediaURL, ShouldEqual, "https://media.example/v1.mp4")
			So(v.Content.FallbackURLs, ShouldResemble, []string{
				"https://cdn.example/v1.mp4",
				"https://mirror.example/v1.mp4",
			})
			So(v.Content.ThumbnailURL, ShouldEqual, "https://media.example/v1.jpg")
			So(v.Content.Duration, ShouldEqual, 6500*time.Millisecond)
		})

		Convey("Then counters, hashtags and metadata should be parsed", func() {
			So(v.Content.Counters.Loops, ShouldEqual, 42)
			So(v.Content.Hashtags, ShouldResemble, []string{"cats"})
			So(v.Content.Proof, ShouldResemble, &model.Proof{Level: "verified_mobile", Data: `{"sig":"x"}`})
			So(v.Content.Origin, ShouldResemble, &model.Origin{Platform: "vine", ExternalID: "abc", URL: "https://vine.co/v/abc"})
		})

		Convey("When validated twice", func() {
			again := validate.Validate(ev)

			Convey("Then the verdicts should be identical", func() {
				So(again, ShouldResemble, v)
			})
		})
	})

	Convey("Given counters outside the int64 range", t, func() {
		ev := testutil.Video("alice", "v1")
		ev.Tags = append(ev.Tags,
			nostr.Tag{"loops", "1e30"},
			nostr.Tag{"views", "-1e30"},
			nostr.Tag{"likes", "99999999999999999999"},
			nostr.Tag{"reposts", "12.7"},
		)

		v := validate.Validate(ev)

		Convey("Then they should saturate at the limits", func() {
			So(v.Content, ShouldNotBeNil)
			So(v.Content.Counters.Loops, ShouldEqual, int64(math.MaxInt64))
			So(v.Content.Loops(), ShouldEqual, int64(math.MaxInt64))
			So(v.Content.Counters.Views, ShouldEqual, int64(math.MinInt64))
			So(v.Content.Counters.Likes, ShouldEqual, int64(math.MaxInt64))
			So(v.Content.Counters.Reposts, ShouldEqual, 12)
		})
	})

	Convey("Given a video with only a streaming manifest", t, func() {
		ev := testutil.Video("alice", "v2", testutil.WithoutMedia())
		ev.Tags = append(ev.Tags, nostr.Tag{"streaming", "https://cdn.example/v2.m3u8"})

		v := validate.Validate(ev)

		Convey("Then the manifest should be used as media", func() {
			So(v.Rejected(), ShouldBeFalse)
			So(v.Content.MediaURL, ShouldEqual, "https://cdn.example/v2.m3u8")
		})
	})

	Convey("Given a video with a plain url tag", t, func() {
		ev := testutil.Video("alice", "v3", testutil.WithoutMedia())
		ev.Tags = append(ev.Tags, nostr.Tag{"url", "https://cdn.example/v3.mp4"})

		Convey("Then the url tag should be used as media", func() {
			So(validate.Validate(ev).Content.MediaURL, ShouldEqual, "https://cdn.example/v3.mp4")
		})
	})
}

func TestValidateRejections(t *testing.T) {
	Convey("Given invalid events", t, func() {
		noSlug := testutil.Video("alice", "")
		noMedia := testutil.Video("alice", "v1", testutil.WithoutMedia())
		relativeMedia := testutil.Video("alice", "v1", testutil.WithoutMedia())
		relativeMedia.Tags = append(relativeMedia.Tags, nostr.Tag{"url", "/v1.mp4"})
		note := &nostr.Event{Kind: 1, Content: "hello"}
		badRepost := testutil.Repost("bob", "alice", "v1", time.Hour)
		badRepost.Tags = nostr.Tags{{"a", "34236:nothex:v1"}}
		noTarget := testutil.Reaction("bob", "alice", "v1", "+")
		noTarget.Tags = nil

		cases := []struct {
			name   string
			ev     *nostr.Event
			reason validate.Reason
		}{
			{"nil", nil, validate.ReasonNilEvent},
			{"text note", note, validate.ReasonWrongKind},
			{"missing slug", noSlug, validate.ReasonMissingSlug},
			{"missing media", noMedia, validate.ReasonMissingMedia},
			{"relative media", relativeMedia, validate.ReasonMissingMedia},
			{"malformed reference", badRepost, validate.ReasonBadReference},
			{"missing reference", noTarget, validate.ReasonBadReference},
		}

		for _, tc := range cases {
			Convey("When validating "+tc.name, func() {
				v := validate.Validate(tc.ev)

				Convey("Then it should be rejected with "+string(tc.reason), func() {
					So(v.Rejected(), ShouldBeTrue)
					So(v.Reason, ShouldEqual, tc.reason)
					So(v.Content, ShouldBeNil)
					So(v.Interaction, ShouldBeNil)
				})
			})
		}
	})
}

func TestValidateInteractions(t *testing.T) {
	Convey("Given interaction events", t, func() {
		Convey("When validating a repost", func() {
			ev := testutil.Repost("bob", "alice", "v1", time.Hour)
			v := validate.Validate(ev)

			Convey("Then the target address should be parsed", func() {
				So(v.Rejected(), ShouldBeFalse)
				So(v.Interaction.Kind, ShouldEqual, model.InteractionRepost)
				So(v.Interaction.Actor, ShouldEqual, testutil.Key("bob"))
				So(v.Interaction.Target.String(), ShouldEqual, testutil.VideoAddress("alice", "v1"))
				So(v.Interaction.CreatedAt, ShouldEqual, testutil.Base.Add(time.Hour))
				So(v.Interaction.Embedded, ShouldBeEmpty)
			})
		})

		Convey("When a repost embeds the reposted event", func() {
			ev := testutil.Repost("bob", "alice", "v1", time.Hour)
			ev.Content = `{"kind":34236}`

			Convey("Then the embedded event should be kept", func() {
				So(validate.Validate(ev).Interaction.Embedded, ShouldEqual, `{"kind":34236}`)
			})
		})

		Convey("When validating reactions", func() {
			like := validate.Validate(testutil.Reaction("bob", "alice", "v1", "+"))
			dislike := validate.Validate(testutil.Reaction("bob", "alice", "v1", "-"))

			Convey("Then sentiment should follow the content", func() {
				So(like.Interaction.Kind, ShouldEqual, model.InteractionReaction)
				So(like.Interaction.Sentiment, ShouldEqual, 1)
				So(dislike.Interaction.Sentiment, ShouldEqual, -1)
			})
		})

		Convey("When a comment references its root with an upper case tag", func() {
			ev := &nostr.Event{
				ID:      "c1",
				PubKey:  testutil.Key("carol"),
				Kind:    model.KindComment,
				Content: "nice",
				Tags:    nostr.Tags{{"A", testutil.VideoAddress("alice", "v1")}},
			}
			v := validate.Validate(ev)

			Convey("Then the root should be the target", func() {
				So(v.Rejected(), ShouldBeFalse)
				So(v.Interaction.Kind, ShouldEqual, model.InteractionComment)
				So(v.Interaction.Body, ShouldEqual, "nice")
				So(v.Interaction.Target.Slug, ShouldEqual, "v1")
			})
		})

		Convey("When validating a zap receipt", func() {
			ev := &nostr.Event{
				ID:   "z1",
				Kind: model.KindZapReceipt,
				Tags: nostr.Tags{{"a", testutil.VideoAddress("alice", "v1")}},
			}

			Convey("Then it should be an interaction", func() {
				So(validate.Validate(ev).Interaction.Kind, ShouldEqual, model.InteractionZapReceipt)
			})
		})
	})
}
