package service

import "errors"

// Sentinel errors returned by the service layer.
var (
	ErrNotStarted      = errors.New("service not started")
	ErrSessionClosed   = errors.New("feed session closed")
	ErrSessionNotFound = errors.New("feed session not found")
	ErrUnknownBackend  = errors.New("unknown cache backend")
)
