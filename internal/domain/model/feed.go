package model

import "time"

// RepostEntry records one rebroadcast of a feed item.
type RepostEntry struct {
	Actor      string
	RepostedAt time.Time
	EventID    string
}

// FeedItem aggregates a content event with the reposts seen for it in one run.
type FeedItem struct {
	ContentEvent

	Reposts []RepostEntry
	// EffectiveAt is max(CreatedAt, latest repost time).
	EffectiveAt time.Time
	// Score is the effective engagement score used by popularity rankings.
	Score int64
	// Interactions counts reactions, reposts and zaps found by fallback ranking.
	Interactions int64
	// Sequence is the insertion order within the run.
	Sequence int
}

// NewFeedItem starts an aggregate from a content event.
func NewFeedItem(ev ContentEvent, sequence int) *FeedItem {
	return &FeedItem{
		ContentEvent: ev,
		EffectiveAt:  ev.CreatedAt,
		Score:        ev.Loops(),
		Sequence:     sequence,
	}
}

// AddRepost appends a repost entry and advances EffectiveAt when the repost
// is newer than anything seen so far.
func (f *FeedItem) AddRepost(e RepostEntry) {
	f.Reposts = append(f.Reposts, e)
	if e.RepostedAt.After(f.EffectiveAt) {
		f.EffectiveAt = e.RepostedAt
	}
}

// LatestRepost returns the most recent repost entry.
func (f *FeedItem) LatestRepost() (RepostEntry, bool) {
	if len(f.Reposts) == 0 {
		return RepostEntry{}, false
	}
	latest := f.Reposts[0]
	for _, r := range f.Reposts[1:] {
		if r.RepostedAt.After(latest.RepostedAt) {
			latest = r
		}
	}
	return latest, true
}

// Clone returns a copy that shares nothing mutable with f.
func (f *FeedItem) Clone() FeedItem {
	out := *f
	out.Reposts = append([]RepostEntry(nil), f.Reposts...)
	out.FallbackURLs = append([]string(nil), f.FallbackURLs...)
	out.Hashtags = append([]string(nil), f.Hashtags...)
	if f.Proof != nil {
		p := *f.Proof
		out.Proof = &p
	}
	if f.Origin != nil {
		o := *f.Origin
		out.Origin = &o
	}
	return out
}

// Loops returns the publisher-supplied loop count, clamped at zero.
func (c *ContentEvent) Loops() int64 {
	if c.Counters.Loops < 0 {
		return 0
	}
	return c.Counters.Loops
}
