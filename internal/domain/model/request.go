package model

import "time"

// FeedType selects how a feed's candidate set is chosen.
type FeedType string

// Feed types.
const (
	FeedDiscovery    FeedType = "discovery"
	FeedPersonalized FeedType = "personalized"
	FeedTrending     FeedType = "trending"
	FeedTag          FeedType = "tag"
	FeedAuthor       FeedType = "author"
	FeedRecent       FeedType = "recent"
	FeedLookup       FeedType = "lookup"
)

// Valid reports whether t is a known feed type.
func (t FeedType) Valid() bool {
	switch t {
	case FeedDiscovery, FeedPersonalized, FeedTrending, FeedTag, FeedAuthor, FeedRecent, FeedLookup:
		return true
	}
	return false
}

// RankMode selects the ordering of a feed.
type RankMode string

// Rank modes. Hot, top, rising and controversial are server-side hints.
const (
	RankChronological RankMode = "chronological"
	RankPopular       RankMode = "popular"
	RankHot           RankMode = "hot"
	RankTop           RankMode = "top"
	RankRising        RankMode = "rising"
	RankControversial RankMode = "controversial"
)

// Valid reports whether m is a known rank mode.
func (m RankMode) Valid() bool {
	switch m {
	case RankChronological, RankPopular, RankHot, RankTop, RankRising, RankControversial:
		return true
	}
	return false
}

// IsHint reports whether the mode is a server-side rank hint.
func (m RankMode) IsHint() bool {
	switch m {
	case RankHot, RankTop, RankRising, RankControversial:
		return true
	}
	return false
}

// DefaultRankMode returns the rank mode used when a request names none.
func DefaultRankMode(t FeedType) RankMode {
	switch t {
	case FeedDiscovery:
		return RankTop
	case FeedTrending, FeedTag:
		return RankHot
	default:
		return RankChronological
	}
}

// Request describes one feed page to load.
type Request struct {
	Type     FeedType
	Tag      string
	Author   string
	Viewer   string
	PageSize int
	// Cursor is an exclusive upper bound on creation time; nil means most recent.
	Cursor   *time.Time
	RankMode RankMode
	// IDs selects a direct lookup of specific events.
	IDs []string
}

// Page is one ranked slice of a feed.
type Page struct {
	Items      []FeedItem
	HasMore    bool
	NextCursor *time.Time
}
