// Package validate turns raw network events into typed content or interaction
// events. Validate is total and pure: every input yields exactly one verdict.
package validate

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/okian/loopfeed/internal/domain/model"
)

// Reason names why an event was rejected.
type Reason string

// Rejection reasons.
const (
	ReasonNilEvent     Reason = "nil_event"
	ReasonWrongKind    Reason = "wrong_kind"
	ReasonMissingSlug  Reason = "missing_slug"
	ReasonMissingMedia Reason = "missing_media"
	ReasonBadReference Reason = "bad_reference"
)

// Verdict is a tagged union: exactly one of Content, Interaction or Reason is set.
type Verdict struct {
	Content     *model.ContentEvent
	Interaction *model.InteractionEvent
	Reason      Reason
}

// Rejected reports whether the event was excluded.
func (v Verdict) Rejected() bool { return v.Reason != "" }

func reject(r Reason) Verdict { return Verdict{Reason: r} }

// Validate classifies a raw event.
func Validate(ev *nostr.Event) Verdict {
	if ev == nil {
		return reject(ReasonNilEvent)
	}
	switch {
	case model.IsVideoKind(ev.Kind):
		return content(ev)
	case ev.Kind == model.KindRepost, ev.Kind == model.KindGenericRepost:
		return interaction(ev, model.InteractionRepost)
	case ev.Kind == model.KindReaction:
		return interaction(ev, model.InteractionReaction)
	case ev.Kind == model.KindComment:
		return interaction(ev, model.InteractionComment)
	case ev.Kind == model.KindZapReceipt:
		return interaction(ev, model.InteractionZapReceipt)
	}
	return reject(ReasonWrongKind)
}

func content(ev *nostr.Event) Verdict {
	slug := strings.TrimSpace(firstValue(ev.Tags, "d"))
	if slug == "" {
		return reject(ReasonMissingSlug)
	}

	c := &model.ContentEvent{
		ID:        ev.ID,
		Slug:      slug,
		Kind:      ev.Kind,
		Publisher: strings.ToLower(ev.PubKey),
		CreatedAt: ev.CreatedAt.Time(),
		Body:      ev.Content,
		Title:     firstValue(ev.Tags, "title"),
	}

	var media []string
	for _, tag := range ev.Tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "imeta":
			m := parseIMeta(tag[1:])
			media = append(media, m["url"]...)
			media = append(media, m["fallback"]...)
			if c.StreamingURL == "" {
				c.StreamingURL = firstHTTP(append(m["hls"], m["streaming"]...))
			}
			if c.ThumbnailURL == "" {
				c.ThumbnailURL = firstHTTP(append(m["image"], m["thumb"]...))
			}
			if c.Duration == 0 && len(m["duration"]) > 0 {
				c.Duration = parseSeconds(m["duration"][0])
			}
		case "url":
			media = append(media, tag[1])
		case "streaming":
			if c.StreamingURL == "" && isHTTP(tag[1]) {
				c.StreamingURL = tag[1]
			}
		case "thumb", "image":
			if c.ThumbnailURL == "" && isHTTP(tag[1]) {
				c.ThumbnailURL = tag[1]
			}
		case "duration":
			if c.Duration == 0 {
				c.Duration = parseSeconds(tag[1])
			}
		case "t":
			c.Hashtags = appendHashtag(c.Hashtags, tag[1])
		case "loops":
			c.Counters.Loops = parseCount(tag[1])
		case "views":
			c.Counters.Views = parseCount(tag[1])
		case "likes":
			c.Counters.Likes = parseCount(tag[1])
		case "reposts":
			c.Counters.Reposts = parseCount(tag[1])
		case "comments":
			c.Counters.Comments = parseCount(tag[1])
		case "verification":
			c.Proof = proof(c.Proof)
			c.Proof.Level = tag[1]
		case "proofmode":
			c.Proof = proof(c.Proof)
			c.Proof.Data = tag[1]
		case "origin":
			c.Origin = &model.Origin{Platform: tag[1], ExternalID: at(tag, 2), URL: at(tag, 3)}
		}
	}

	for _, u := range media {
		if !isHTTP(u) {
			continue
		}
		if c.MediaURL == "" {
			c.MediaURL = u
		} else if u != c.MediaURL && !contains(c.FallbackURLs, u) {
			c.FallbackURLs = append(c.FallbackURLs, u)
		}
	}
	if c.MediaURL == "" {
		c.MediaURL = c.StreamingURL
	}
	if c.MediaURL == "" {
		return reject(ReasonMissingMedia)
	}
	return Verdict{Content: c}
}

func interaction(ev *nostr.Event, kind model.InteractionKind) Verdict {
	target, ok := targetOf(ev.Tags)
	if !ok {
		return reject(ReasonBadReference)
	}
	i := &model.InteractionEvent{
		ID:        ev.ID,
		Kind:      kind,
		Actor:     strings.ToLower(ev.PubKey),
		Target:    target,
		CreatedAt: ev.CreatedAt.Time(),
	}
	switch kind {
	case model.InteractionReaction:
		i.Sentiment = 1
		if strings.TrimSpace(ev.Content) == "-" {
			i.Sentiment = -1
		}
	case model.InteractionComment:
		i.Body = ev.Content
	case model.InteractionRepost:
		if strings.HasPrefix(strings.TrimSpace(ev.Content), "{") {
			i.Embedded = ev.Content
		}
	}
	return Verdict{Interaction: i}
}

// targetOf returns the first video address in "a" tags, or the root "A" tag
// used by threaded comments.
func targetOf(tags nostr.Tags) (model.Address, bool) {
	for _, name := range []string{"a", "A"} {
		for _, tag := range tags {
			if len(tag) < 2 || tag[0] != name {
				continue
			}
			if addr, err := model.ParseAddress(tag[1]); err == nil {
				return addr, true
			}
		}
	}
	return model.Address{}, false
}

// parseIMeta splits NIP-92 "key value" entries.
func parseIMeta(entries []string) map[string][]string {
	out := make(map[string][]string, len(entries))
	for _, e := range entries {
		key, value, ok := strings.Cut(strings.TrimSpace(e), " ")
		if !ok {
			continue
		}
		out[key] = append(out[key], strings.TrimSpace(value))
	}
	return out
}

func firstValue(tags nostr.Tags, name string) string {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

func firstHTTP(values []string) string {
	for _, v := range values {
		if isHTTP(v) {
			return v
		}
	}
	return ""
}

func isHTTP(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "https" || u.Scheme == "http"
}

func parseCount(s string) int64 {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	switch {
	case err != nil, math.IsNaN(f), math.IsInf(f, 0):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

func appendHashtag(tags []string, raw string) []string {
	t := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "#"))
	if t == "" || contains(tags, t) {
		return tags
	}
	return append(tags, t)
}

func proof(p *model.Proof) *model.Proof {
	if p == nil {
		return &model.Proof{}
	}
	return p
}

func at(tag nostr.Tag, i int) string {
	if i < len(tag) {
		return tag[i]
	}
	return ""
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
