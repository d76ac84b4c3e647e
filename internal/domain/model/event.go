// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Event kinds understood by the engine.
const (
	KindRepost        = 6
	KindReaction      = 7
	KindGenericRepost = 16
	KindComment       = 1111
	KindContactList   = 3
	KindZapReceipt    = 9735
	KindVideo         = 34235 // NIP-71 addressable video
	KindShortVideo    = 34236 // NIP-71 addressable short-form (vertical) video
)

// VideoKinds lists the content event kinds, most common first.
var VideoKinds = []int{KindShortVideo, KindVideo} //nolint:gochecknoglobals // read-only kind table

// IsVideoKind reports whether kind is a content event kind.
func IsVideoKind(kind int) bool {
	return kind == KindShortVideo || kind == KindVideo
}

// ErrBadAddress is returned when a target reference cannot be parsed.
var ErrBadAddress = errors.New("malformed address")

// Address points at an addressable content event: kind, publisher and slug.
type Address struct {
	Kind      int
	Publisher string
	Slug      string
}

// String renders the address in its "kind:pubkey:slug" tag form.
func (a Address) String() string {
	return strconv.Itoa(a.Kind) + ":" + a.Publisher + ":" + a.Slug
}

// ParseAddress parses a "kind:pubkey:slug" reference. The slug may itself
// contain colons. Only video kinds with a 32-byte hex publisher are accepted.
func ParseAddress(s string) (Address, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Address{}, fmt.Errorf("%w: %q", ErrBadAddress, s)
	}
	kind, err := strconv.Atoi(parts[0])
	if err != nil || !IsVideoKind(kind) {
		return Address{}, fmt.Errorf("%w: kind %q", ErrBadAddress, parts[0])
	}
	if !IsHexKey(parts[1]) {
		return Address{}, fmt.Errorf("%w: publisher %q", ErrBadAddress, parts[1])
	}
	if strings.TrimSpace(parts[2]) == "" {
		return Address{}, fmt.Errorf("%w: empty slug", ErrBadAddress)
	}
	return Address{Kind: kind, Publisher: strings.ToLower(parts[1]), Slug: parts[2]}, nil
}

// IsHexKey reports whether s is a 64 character hex string.
func IsHexKey(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// Counters are the engagement numbers a publisher denormalized onto the event.
// They are not corroborated by the network.
type Counters struct {
	Loops    int64
	Views    int64
	Likes    int64
	Reposts  int64
	Comments int64
}

// Proof carries authenticity metadata (e.g. ProofMode capture attestations).
type Proof struct {
	Level string // e.g. "verified_mobile", "verified_web", "basic_proof"
	Data  string // opaque manifest, usually JSON
}

// Origin marks content migrated from another platform.
type Origin struct {
	Platform   string
	ExternalID string
	URL        string
}

// ContentEvent is one published video.
type ContentEvent struct {
	ID        string // transport id, changes on republish
	Slug      string // content-stable identifier ("d" tag), the aggregation key
	Kind      int
	Publisher string
	CreatedAt time.Time
	Body      string

	MediaURL     string
	FallbackURLs []string
	StreamingURL string
	ThumbnailURL string
	Title        string
	Duration     time.Duration
	Hashtags     []string

	Counters Counters
	Proof    *Proof
	Origin   *Origin
}

// Address returns the addressable reference for the event.
func (c *ContentEvent) Address() Address {
	return Address{Kind: c.Kind, Publisher: c.Publisher, Slug: c.Slug}
}

// InteractionKind enumerates interaction event variants.
type InteractionKind string

// Interaction variants.
const (
	InteractionRepost     InteractionKind = "repost"
	InteractionReaction   InteractionKind = "reaction"
	InteractionComment    InteractionKind = "comment"
	InteractionZapReceipt InteractionKind = "zap_receipt"
)

// InteractionEvent is a reference from one identity to a content event.
type InteractionEvent struct {
	ID        string
	Kind      InteractionKind
	Actor     string
	Target    Address
	CreatedAt time.Time

	// Sentiment is +1 or -1 for reactions, 0 otherwise.
	Sentiment int
	// Body holds comment text.
	Body string
	// Embedded is the reposted event carried in a repost's content, when present.
	// It has not been validated.
	Embedded string
}
