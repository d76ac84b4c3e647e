package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/loopfeed/internal/domain/model"
)

// SessionsHandler exposes refreshing feed sessions.
type SessionsHandler struct {
	sessions SessionManager
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(sessions SessionManager) *SessionsHandler {
	return &SessionsHandler{sessions: sessions}
}

// openRequest is the body of POST /sessions. Field names match the /feed query.
type openRequest struct {
	Type   string   `json:"type"`
	Tag    string   `json:"tag"`
	Author string   `json:"author"`
	Viewer string   `json:"viewer"`
	Rank   string   `json:"rank"`
	Limit  int      `json:"limit"`
	IDs    []string `json:"ids"`
}

func (o openRequest) values() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("type", o.Type)
	set("tag", o.Tag)
	set("author", o.Author)
	set("viewer", o.Viewer)
	set("rank", o.Rank)
	if o.Limit != 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if len(o.IDs) > 0 {
		q.Set("ids", strings.Join(o.IDs, ","))
	}
	return q
}

type sessionJSON struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Refreshing bool      `json:"refreshing"`
	LoadedAt   time.Time `json:"loaded_at"`
	Page       pageJSON  `json:"page"`
}

// HandleOpen handles POST /sessions.
func (h *SessionsHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	var body openRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFailure(w, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	req, err := parseRequest(body.values())
	if err != nil {
		writeFailure(w, err)
		return
	}
	sess, err := h.sessions.OpenSession(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionView(sess))
}

// HandleGet handles GET /sessions/{id} and returns the latest page.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Session(r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess))
}

// HandleRefetch handles POST /sessions/{id}/refetch.
func (h *SessionsHandler) HandleRefetch(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Session(r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	if _, err := sess.Refetch(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess))
}

// HandleClose handles DELETE /sessions/{id}.
func (h *SessionsHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.CloseSession(r.PathValue("id")); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sessionLike interface {
	ID() string
	Request() model.Request
	Refreshing() bool
	Latest() (model.Page, time.Time)
}

func sessionView(s sessionLike) sessionJSON {
	page, loadedAt := s.Latest()
	return sessionJSON{
		ID:         s.ID(),
		Type:       string(s.Request().Type),
		Refreshing: s.Refreshing(),
		LoadedAt:   loadedAt.UTC(),
		Page:       toPage(page),
	}
}
