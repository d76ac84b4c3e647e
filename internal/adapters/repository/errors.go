package repository

import "errors"

// Sentinel kinds for cache errors.
var (
	ErrCacheMiss   = errors.New("cache miss")
	ErrCacheClosed = errors.New("cache closed")
)
