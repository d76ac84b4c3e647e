// Package testutil builds raw network events for tests.
package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/okian/loopfeed/internal/domain/model"
)

// Base is the reference creation time used by fixtures.
var Base = time.Unix(1_700_000_000, 0) //nolint:gochecknoglobals // fixture constant

// Key derives a stable 64-char hex key from a short name like "alice".
func Key(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])
}

// At returns Base shifted by d as a network timestamp.
func At(d time.Duration) nostr.Timestamp {
	return nostr.Timestamp(Base.Add(d).Unix())
}

// VideoOption customizes a video fixture.
type VideoOption func(*nostr.Event)

// WithLoops sets the loops counter tag.
func WithLoops(n int64) VideoOption {
	return func(ev *nostr.Event) {
		ev.Tags = append(ev.Tags, nostr.Tag{"loops", strconv.FormatInt(n, 10)})
	}
}

// WithHashtag adds a "t" tag.
func WithHashtag(t string) VideoOption {
	return func(ev *nostr.Event) {
		ev.Tags = append(ev.Tags, nostr.Tag{"t", t})
	}
}

// WithCreatedAt sets the creation offset from Base.
func WithCreatedAt(d time.Duration) VideoOption {
	return func(ev *nostr.Event) { ev.CreatedAt = At(d) }
}

// WithID overrides the transport id.
func WithID(id string) VideoOption {
	return func(ev *nostr.Event) { ev.ID = id }
}

// WithoutMedia strips all media tags.
func WithoutMedia() VideoOption {
	return func(ev *nostr.Event) {
		kept := ev.Tags[:0]
		for _, t := range ev.Tags {
			if t[0] != "imeta" {
				kept = append(kept, t)
			}
		}
		ev.Tags = kept
	}
}

// Video builds a short video event with a slug, an imeta media tag and a title.
func Video(publisher, slug string, opts ...VideoOption) *nostr.Event {
	ev := &nostr.Event{
		ID:        eventID("video", publisher, slug),
		PubKey:    Key(publisher),
		CreatedAt: At(0),
		Kind:      model.KindShortVideo,
		Tags: nostr.Tags{
			{"d", slug},
			{"title", "clip " + slug},
			{"imeta", "url https://media.example/" + slug + ".mp4", "m video/mp4", "image https://media.example/" + slug + ".jpg"},
		},
	}
	for _, opt := range opts {
		opt(ev)
	}
	return ev
}

// VideoAddress is the address of Video(publisher, slug).
func VideoAddress(publisher, slug string) string {
	return fmt.Sprintf("%d:%s:%s", model.KindShortVideo, Key(publisher), slug)
}

// Repost builds a generic repost of publisher's slug by actor at Base+d.
func Repost(actor, publisher, slug string, d time.Duration) *nostr.Event {
	return &nostr.Event{
		ID:        eventID("repost", actor, publisher, slug, d.String()),
		PubKey:    Key(actor),
		CreatedAt: At(d),
		Kind:      model.KindGenericRepost,
		Tags: nostr.Tags{
			{"a", VideoAddress(publisher, slug)},
			{"k", strconv.Itoa(model.KindShortVideo)},
		},
	}
}

// Reaction builds a like ("+") or dislike ("-") of publisher's slug.
func Reaction(actor, publisher, slug, content string) *nostr.Event {
	return &nostr.Event{
		ID:        eventID("reaction", actor, publisher, slug, content),
		PubKey:    Key(actor),
		CreatedAt: At(time.Minute),
		Kind:      model.KindReaction,
		Content:   content,
		Tags:      nostr.Tags{{"a", VideoAddress(publisher, slug)}},
	}
}

func eventID(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
