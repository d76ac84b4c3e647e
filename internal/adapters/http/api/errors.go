package api

import (
	"errors"
	"net/http"

	service "github.com/okian/loopfeed/internal/app"
	"github.com/okian/loopfeed/internal/feed"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

// Error codes returned in error bodies.
const (
	codeBadRequest  = "bad_request"
	codeNotFound    = "not_found"
	codeUnavailable = "unavailable"
	codeUpstream    = "upstream_error"
	codeInternal    = "internal_error"
	codeSessionGone = "session_closed"
)

// classify maps service and engine errors to an HTTP status, an error code
// and whether the client may retry.
func classify(err error) (status int, code string, retry bool) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, feed.ErrInvalidRequest):
		return http.StatusBadRequest, codeBadRequest, false
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, codeNotFound, false
	case errors.Is(err, service.ErrSessionClosed):
		return http.StatusGone, codeSessionGone, false
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, codeUnavailable, true
	case errors.Is(err, feed.ErrPrimaryQuery), errors.Is(err, feed.ErrFollowSet):
		return http.StatusBadGateway, codeUpstream, true
	}
	return http.StatusInternalServerError, codeInternal, false
}
