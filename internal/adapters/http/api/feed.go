package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/loopfeed/internal/domain/model"
)

// FeedHandler serves single feed pages.
type FeedHandler struct {
	loader FeedLoader
}

// NewFeedHandler creates a new feed handler.
func NewFeedHandler(loader FeedLoader) *FeedHandler {
	return &FeedHandler{loader: loader}
}

// HandleGetFeed handles GET /feed requests.
//
// Query parameters: type, tag, author, viewer, rank, limit, cursor (unix
// seconds) and ids (comma separated or repeated).
func (h *FeedHandler) HandleGetFeed(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r.URL.Query())
	if err != nil {
		writeFailure(w, err)
		return
	}
	page, err := h.loader.LoadFeed(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(page))
}

func parseRequest(q url.Values) (model.Request, error) {
	req := model.Request{
		Type:     model.FeedType(strings.ToLower(strings.TrimSpace(q.Get("type")))),
		Tag:      q.Get("tag"),
		Author:   q.Get("author"),
		Viewer:   q.Get("viewer"),
		RankMode: model.RankMode(strings.ToLower(strings.TrimSpace(q.Get("rank")))),
	}
	for _, v := range q["ids"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				req.IDs = append(req.IDs, id)
			}
		}
	}
	if len(req.IDs) > 0 && req.Type == "" {
		req.Type = model.FeedLookup
	}
	if req.Type == "" {
		req.Type = model.FeedRecent
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return model.Request{}, fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest)
		}
		req.PageSize = n
	}
	if v := q.Get("cursor"); v != "" {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil || secs <= 0 {
			return model.Request{}, fmt.Errorf("%w: cursor must be unix seconds", ErrBadRequest)
		}
		c := time.Unix(secs, 0)
		req.Cursor = &c
	}
	return req, nil
}

type repostJSON struct {
	Actor      string    `json:"actor"`
	RepostedAt time.Time `json:"reposted_at"`
}

type itemJSON struct {
	ID           string       `json:"id"`
	Address      string       `json:"address"`
	Slug         string       `json:"slug"`
	Kind         int          `json:"kind"`
	Publisher    string       `json:"publisher"`
	CreatedAt    time.Time    `json:"created_at"`
	EffectiveAt  time.Time    `json:"effective_at"`
	Title        string       `json:"title,omitempty"`
	Body         string       `json:"body,omitempty"`
	MediaURL     string       `json:"media_url"`
	FallbackURLs []string     `json:"fallback_urls,omitempty"`
	StreamingURL string       `json:"streaming_url,omitempty"`
	ThumbnailURL string       `json:"thumbnail_url,omitempty"`
	DurationSec  float64      `json:"duration_seconds,omitempty"`
	Hashtags     []string     `json:"hashtags,omitempty"`
	Loops        int64        `json:"loops"`
	Likes        int64        `json:"likes"`
	Views        int64        `json:"views"`
	Score        int64        `json:"score"`
	Interactions int64        `json:"interactions,omitempty"`
	ProofLevel   string       `json:"proof_level,omitempty"`
	OriginURL    string       `json:"origin_url,omitempty"`
	Reposts      []repostJSON `json:"reposts,omitempty"`
}

type pageJSON struct {
	Items      []itemJSON `json:"items"`
	HasMore    bool       `json:"has_more"`
	NextCursor *int64     `json:"next_cursor,omitempty"`
}

func toPage(p model.Page) pageJSON {
	out := pageJSON{Items: make([]itemJSON, 0, len(p.Items)), HasMore: p.HasMore}
	for i := range p.Items {
		out.Items = append(out.Items, toItem(&p.Items[i]))
	}
	if p.NextCursor != nil {
		c := p.NextCursor.Unix()
		out.NextCursor = &c
	}
	return out
}

func toItem(it *model.FeedItem) itemJSON {
	out := itemJSON{
		ID:           it.ID,
		Address:      it.Address().String(),
		Slug:         it.Slug,
		Kind:         it.Kind,
		Publisher:    it.Publisher,
		CreatedAt:    it.CreatedAt.UTC(),
		EffectiveAt:  it.EffectiveAt.UTC(),
		Title:        it.Title,
		Body:         it.Body,
		MediaURL:     it.MediaURL,
		FallbackURLs: it.FallbackURLs,
		StreamingURL: it.StreamingURL,
		ThumbnailURL: it.ThumbnailURL,
		DurationSec:  it.Duration.Seconds(),
		Hashtags:     it.Hashtags,
		Loops:        it.Loops(),
		Likes:        it.Counters.Likes,
		Views:        it.Counters.Views,
		Score:        it.Score,
		Interactions: it.Interactions,
	}
	if it.Proof != nil {
		out.ProofLevel = it.Proof.Level
	}
	if it.Origin != nil {
		out.OriginURL = it.Origin.URL
	}
	for _, rp := range it.Reposts {
		out.Reposts = append(out.Reposts, repostJSON{Actor: rp.Actor, RepostedAt: rp.RepostedAt.UTC()})
	}
	return out
}
