// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/okian/loopfeed/internal/app"
	"github.com/okian/loopfeed/internal/domain/model"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	FeedLoader
	SessionManager
}

// FeedLoader loads one page of a feed.
type FeedLoader interface {
	LoadFeed(ctx context.Context, req model.Request) (model.Page, error)
}

// SessionManager owns refreshing feed sessions.
type SessionManager interface {
	OpenSession(ctx context.Context, req model.Request, opts ...service.SessionOption) (*service.Session, error)
	Session(id string) (*service.Session, error)
	CloseSession(id string) error
}

// Server wires HTTP routes for the feed API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	feedHandler     *FeedHandler
	sessionsHandler *SessionsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		feedHandler:     NewFeedHandler(deps),
		sessionsHandler: NewSessionsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /feed", MetricsMiddleware(s.feedHandler.HandleGetFeed, "feed"))
	mux.HandleFunc("POST /sessions", MetricsMiddleware(s.sessionsHandler.HandleOpen, "sessions"))
	mux.HandleFunc("GET /sessions/{id}", MetricsMiddleware(s.sessionsHandler.HandleGet, "sessions"))
	mux.HandleFunc("POST /sessions/{id}/refetch", MetricsMiddleware(s.sessionsHandler.HandleRefetch, "sessions"))
	mux.HandleFunc("DELETE /sessions/{id}", MetricsMiddleware(s.sessionsHandler.HandleClose, "sessions"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Retry   bool   `json:"retry"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, retry bool, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg, Retry: retry})
}

// writeFailure classifies err and writes the matching error response.
func writeFailure(w http.ResponseWriter, err error) {
	status, code, retry := classify(err)
	writeError(w, status, code, retry, err)
}
